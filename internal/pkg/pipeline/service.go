package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"

	"github.com/voxanalyze/voxy/internal/pkg/analyze"
	tapi "github.com/voxanalyze/voxy/internal/pkg/asr/api"
	"github.com/voxanalyze/voxy/internal/pkg/broadcast"
	"github.com/voxanalyze/voxy/internal/pkg/messages"
	"github.com/voxanalyze/voxy/internal/pkg/persistence"
	"github.com/voxanalyze/voxy/internal/pkg/utils"
	"github.com/voxanalyze/voxy/internal/pkg/utils/handler"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// DB provides call persistence
type DB interface {
	LoadCallByFilename(ctx context.Context, filename string) (*persistence.Call, error)
	InsertCall(ctx context.Context, call *persistence.Call) (int64, error)
}

// Filer loads and saves audio files
type Filer interface {
	LoadFile(ctx context.Context, fileName string) (io.ReadSeekCloser, error)
	SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64) error
}

// Transcriber provides transcription with diarization
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, language string, speakers int) (*tapi.Result, error)
}

// Analyzer provides transcript analysis
type Analyzer interface {
	Analyze(ctx context.Context, text string, segments []persistence.Segment) (*analyze.Result, error)
}

// Drive mirrors recordings into the storage folder
type Drive interface {
	Upload(ctx context.Context, name, folderID, mimeType string, r io.Reader) (string, error)
	DownloadURL(fileID string) string
}

// Notifier pushes progress events to live dashboard listeners
type Notifier interface {
	BroadcastJSON(v interface{})
}

// Downloader fetches recordings by URL
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	MsgSender   MsgSender
	DB          DB
	Filer       Filer
	Transcriber Transcriber
	Analyzer    Analyzer
	Drive       Drive
	Notifier    Notifier
	Downloader  Downloader
	FolderID    string
	// MarkSeenFn stops the watcher from reprocessing mirrored recordings
	MarkSeenFn func(id string)
	Testing    bool
}

// StartWorkerService starts the queue listener running audio processing jobs,
// returns channel closed when all workers exit
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		messages.Process: handler.Create(data, handleProcess, handler.DefaultOpts[messages.ProcessMessage]().
			WithTimeout(time.Minute*120).WithBackoff(handler.DefaultBackoffOrTest(data.Testing))),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Process),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("process-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

// handleProcess runs one audio file through the full pipeline:
// fetch, transcribe, analyze, persist, notify. A call record keyed by the
// same filename short circuits the job, so redelivery is harmless.
func handleProcess(ctx context.Context, m *messages.ProcessMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("filename", m.Filename).Msg("handling process")
	existing, err := data.DB.LoadCallByFilename(ctx, m.Filename)
	if err != nil {
		return fmt.Errorf("can't check call: %w", err)
	}
	if existing != nil {
		goapp.Log.Info().Str("filename", m.Filename).Int64("callID", existing.ID).Msg("already processed")
		return nil
	}
	notifyStep(data, broadcast.StepDownload, broadcast.StatusStarted, "Fetching "+m.Filename, m.FileID)
	audio, audioURL, err := fetchAudio(ctx, m, data)
	if err != nil {
		notifyStep(data, broadcast.StepDownload, broadcast.StatusError, err.Error(), m.FileID)
		return fmt.Errorf("can't fetch audio: %w", err)
	}

	notifyStep(data, broadcast.StepTranscribe, broadcast.StatusStarted, "Transcribing "+m.Filename, m.FileID)
	tr, err := data.Transcriber.Transcribe(ctx, bytes.NewReader(audio), m.Language, m.Speakers)
	if err != nil {
		notifyStep(data, broadcast.StepTranscribe, broadcast.StatusError, err.Error(), m.FileID)
		return fmt.Errorf("can't transcribe: %w", err)
	}

	notifyStep(data, broadcast.StepAnalyze, broadcast.StatusStarted, "Analyzing "+m.Filename, m.FileID)
	segments := toSegments(tr.Utterances)
	aRes, err := data.Analyzer.Analyze(ctx, tr.Text, segments)
	if err != nil {
		notifyStep(data, broadcast.StepAnalyze, broadcast.StatusError, err.Error(), m.FileID)
		return fmt.Errorf("can't analyze: %w", err)
	}
	resolved, speakerCount := analyze.ResolveSpeakers(segments, aRes.Speakers)

	notifyStep(data, broadcast.StepSave, broadcast.StatusStarted, "Saving "+m.Filename, m.FileID)
	existing, err = data.DB.LoadCallByFilename(ctx, m.Filename)
	if err != nil {
		return fmt.Errorf("can't check call: %w", err)
	}
	if existing != nil {
		goapp.Log.Info().Str("filename", m.Filename).Int64("callID", existing.ID).Msg("already processed")
		return nil
	}
	call := &persistence.Call{Filename: m.Filename, Transcript: tr.Text,
		Sentiment: aRes.Sentiment, Tags: aRes.Tags, Summary: aRes.Summary,
		Duration: int(tr.Duration), AudioURL: audioURL,
		Diarization: resolved, SpeakerCount: speakerCount}
	id, err := data.DB.InsertCall(ctx, call)
	if err != nil {
		notifyStep(data, broadcast.StepSave, broadcast.StatusError, err.Error(), m.FileID)
		return fmt.Errorf("can't insert call: %w", err)
	}
	goapp.Log.Info().Int64("callID", id).Str("filename", m.Filename).Msg("call saved")

	err = data.MsgSender.SendMessage(ctx, &amessages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: strconv.FormatInt(id, 10)},
		Type:         amessages.InformTypeFinished, At: time.Now()}, messages.Inform)
	if err != nil {
		goapp.Log.Error().Err(err).Int64("callID", id).Msg("can't send inform msg")
	}
	notifyStep(data, broadcast.StepDone, broadcast.StatusCompleted, "Processed "+m.Filename, m.FileID)
	return nil
}

// fetchAudio loads job audio from the filer or downloads the recording.
// Downloaded recordings are stored in the filer and mirrored to the
// storage folder best effort.
func fetchAudio(ctx context.Context, m *messages.ProcessMessage, data *ServiceData) ([]byte, string, error) {
	if m.StoredName != "" {
		file, err := data.Filer.LoadFile(ctx, m.StoredName)
		if err != nil {
			return nil, "", fmt.Errorf("can't load file: %w", err)
		}
		defer file.Close()
		audio, err := io.ReadAll(file)
		if err != nil {
			return nil, "", fmt.Errorf("can't read file: %w", err)
		}
		audioURL := ""
		if m.FileID != "" {
			audioURL = data.Drive.DownloadURL(m.FileID)
		}
		return audio, audioURL, nil
	}
	if m.RecordingURL == "" {
		return nil, "", fmt.Errorf("no audio source")
	}
	audio, err := data.Downloader.Fetch(ctx, m.RecordingURL)
	if err != nil {
		return nil, "", fmt.Errorf("can't download recording: %w", err)
	}
	storedName, err := utils.SafeFileName(m.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("can't make safe name: %w", err)
	}
	if err := data.Filer.SaveFile(ctx, storedName, bytes.NewReader(audio), int64(len(audio))); err != nil {
		return nil, "", fmt.Errorf("can't save file: %w", err)
	}
	audioURL := m.RecordingURL
	fileID, err := data.Drive.Upload(ctx, m.Filename, data.FolderID, utils.AudioContentType(m.Filename), bytes.NewReader(audio))
	if err != nil {
		goapp.Log.Warn().Err(err).Str("filename", m.Filename).Msg("can't mirror recording")
	} else {
		audioURL = data.Drive.DownloadURL(fileID)
		if data.MarkSeenFn != nil {
			data.MarkSeenFn(fileID)
		}
	}
	return audio, audioURL, nil
}

func toSegments(utterances []tapi.Utterance) []persistence.Segment {
	res := make([]persistence.Segment, 0, len(utterances))
	for _, u := range utterances {
		res = append(res, persistence.Segment{Speaker: u.Speaker, Text: u.Text,
			Start: u.Start, End: u.End})
	}
	return res
}

func notifyStep(data *ServiceData, step, status, message, fileID string) {
	data.Notifier.BroadcastJSON(broadcast.ProgressEvent{Step: step, Status: status,
		Message: message, FileID: fileID})
}

func validate(data *ServiceData) error {
	if data.GueClient == nil {
		return fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return fmt.Errorf("no worker count provided")
	}
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Filer == nil {
		return fmt.Errorf("no Filer")
	}
	if data.Transcriber == nil {
		return fmt.Errorf("no Transcriber")
	}
	if data.Analyzer == nil {
		return fmt.Errorf("no Analyzer")
	}
	if data.Drive == nil {
		return fmt.Errorf("no Drive")
	}
	if data.Notifier == nil {
		return fmt.Errorf("no Notifier")
	}
	if data.Downloader == nil {
		return fmt.Errorf("no Downloader")
	}
	return nil
}
