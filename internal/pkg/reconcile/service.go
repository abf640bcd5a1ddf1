package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"

	"github.com/voxanalyze/voxy/internal/pkg/broadcast"
	"github.com/voxanalyze/voxy/internal/pkg/callevent"
	"github.com/voxanalyze/voxy/internal/pkg/messages"
	"github.com/voxanalyze/voxy/internal/pkg/persistence"
	"github.com/voxanalyze/voxy/internal/pkg/status"
)

// DB provides call event persistence
type DB interface {
	LoadLastTurn(ctx context.Context, callID string) (*persistence.Turn, error)
	InsertTurn(ctx context.Context, turn *persistence.Turn) error
	UpdateTurnText(ctx context.Context, id int64, text string) error
	LoadCallStatus(ctx context.Context, callID string) (*persistence.CallStatus, error)
	UpsertCallStatus(ctx context.Context, item *persistence.CallStatus) error
	InsertReport(ctx context.Context, report *persistence.Report) error
}

// MsgSender sends messages to queue
type MsgSender interface {
	SendMessage(ctx context.Context, msg amessages.Message, queue string) error
}

// Notifier pushes events to live dashboard listeners
type Notifier interface {
	BroadcastJSON(v interface{})
}

// Data keeps the service dependencies
type Data struct {
	DB        DB
	MsgSender MsgSender
	Notifier  Notifier
}

// Service reconciles telephony webhook events into call state
type Service struct {
	db        DB
	msgSender MsgSender
	notifier  Notifier
	// nowFn is replaceable in tests
	nowFn func() time.Time
}

// NewService creates a reconcile service
func NewService(data *Data) (*Service, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	return &Service{db: data.DB, msgSender: data.MsgSender, notifier: data.Notifier,
		nowFn: time.Now}, nil
}

func validate(data *Data) error {
	if data.DB == nil {
		return fmt.Errorf("no db")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.Notifier == nil {
		return fmt.Errorf("no notifier")
	}
	return nil
}

// Handle processes one parsed webhook event
func (s *Service) Handle(ctx context.Context, ev *callevent.Event) error {
	switch ev.Type {
	case callevent.TypeTranscript:
		return s.handleTranscript(ctx, ev)
	case callevent.TypeStatusUpdate:
		return s.mergeStatus(ctx, ev.CallID, status.From(ev.Status))
	case callevent.TypeEndOfCallReport:
		return s.handleEndOfCall(ctx, ev)
	case callevent.TypeConversationUpdate, callevent.TypeSpeechUpdate:
		// any conversation activity implies a live call
		return s.mergeStatus(ctx, ev.CallID, status.InProgress)
	}
	goapp.Log.Debug().Str("type", ev.Type).Msg("ignoring event")
	return nil
}

// handleTranscript appends a final transcript chunk. Consecutive chunks of
// the same role are merged into the last turn, a role change starts a new one.
func (s *Service) handleTranscript(ctx context.Context, ev *callevent.Event) error {
	if !ev.FinalTranscript() {
		return nil
	}
	if ev.CallID == "" {
		goapp.Log.Warn().Msg("transcript without call ID")
		return nil
	}
	last, err := s.db.LoadLastTurn(ctx, ev.CallID)
	if err != nil {
		return fmt.Errorf("can't load last turn: %w", err)
	}
	if last != nil && last.Role == ev.Role {
		text := strings.TrimSpace(last.Text) + " " + strings.TrimSpace(ev.Transcript)
		if err := s.db.UpdateTurnText(ctx, last.ID, text); err != nil {
			return fmt.Errorf("can't merge turn: %w", err)
		}
	} else if err := s.db.InsertTurn(ctx, &persistence.Turn{CallID: ev.CallID, Role: ev.Role,
		Text: ev.Transcript}); err != nil {
		return fmt.Errorf("can't insert turn: %w", err)
	}
	// a transcript chunk also signals an active call
	return s.mergeStatus(ctx, ev.CallID, status.InProgress)
}

// mergeStatus applies the monotonic status state machine and persists
// the result, ended is terminal
func (s *Service) mergeStatus(ctx context.Context, callID string, incoming status.Status) error {
	if callID == "" {
		goapp.Log.Warn().Msg("status update without call ID")
		return nil
	}
	if incoming == status.Unknown {
		goapp.Log.Debug().Str("callID", callID).Msg("ignoring status update")
		return nil
	}
	current, err := s.db.LoadCallStatus(ctx, callID)
	if err != nil {
		return fmt.Errorf("can't load call status: %w", err)
	}
	currentSt := status.Unknown
	if current != nil {
		currentSt = status.From(current.Status)
	}
	merged := status.Merge(currentSt, incoming)
	if current != nil && merged == currentSt {
		return nil
	}
	goapp.Log.Info().Str("callID", callID).Str("status", merged.String()).Msg("call status")
	if err := s.db.UpsertCallStatus(ctx, &persistence.CallStatus{CallID: callID,
		Status: merged.String()}); err != nil {
		return fmt.Errorf("can't upsert call status: %w", err)
	}
	return nil
}

// handleEndOfCall runs the ordered end of call sequence:
// notify listeners first, then schedule recording processing,
// then save the report and force the terminal status.
func (s *Service) handleEndOfCall(ctx context.Context, ev *callevent.Event) error {
	s.notifier.BroadcastJSON(broadcast.NewCallEnded(ev.CallID, ev.EndedReason, ev.Duration))

	if ev.RecordingURL != "" {
		filename := fmt.Sprintf("vapi_call_%s.wav", s.nowFn().Format("20060102_150405"))
		msg := &messages.ProcessMessage{QueueMessage: amessages.QueueMessage{ID: ev.CallID},
			Filename: filename, RecordingURL: ev.RecordingURL}
		if err := s.msgSender.SendMessage(ctx, msg, messages.Process); err != nil {
			goapp.Log.Error().Err(err).Str("callID", ev.CallID).Msg("can't schedule recording processing")
		} else {
			goapp.Log.Info().Str("callID", ev.CallID).Str("filename", filename).Msg("scheduled recording processing")
		}
	} else {
		goapp.Log.Info().Str("callID", ev.CallID).Msg("no recording URL, skipping processing")
	}

	if err := s.db.InsertReport(ctx, &persistence.Report{CallID: ev.CallID,
		EndedReason: ev.EndedReason, Summary: ev.Summary, RecordingURL: ev.RecordingURL,
		Duration: ev.Duration, Cost: ev.Cost}); err != nil {
		return fmt.Errorf("can't insert report: %w", err)
	}
	if err := s.db.UpsertCallStatus(ctx, &persistence.CallStatus{CallID: ev.CallID,
		Status: status.Ended.String()}); err != nil {
		return fmt.Errorf("can't upsert call status: %w", err)
	}
	return nil
}
