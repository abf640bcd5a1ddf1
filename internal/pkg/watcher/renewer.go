package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"

	dapi "github.com/voxanalyze/voxy/internal/pkg/drive/api"
)

// Channels provides push notification channel management
type Channels interface {
	Watch(ctx context.Context, channelID, callbackURL, cursor string) (*dapi.Channel, error)
	Stop(ctx context.Context, channelID, resourceID string) error
}

// Renewer keeps one push notification channel alive.
// Provider channels expire after about a week, so a fresh one is
// registered before that and the old one is stopped best effort.
type Renewer struct {
	drive       Channels
	callbackURL string
	cursorFn    func() string
	interval    time.Duration

	lock    sync.Mutex
	current *dapi.Channel
	// timeAfter is replaceable in tests
	timeAfter func(time.Duration) <-chan time.Time
}

// RenewerData keeps the renewer dependencies
type RenewerData struct {
	Drive       Channels
	CallbackURL string
	CursorFn    func() string
	Interval    time.Duration
}

// NewRenewer creates a channel renewer
func NewRenewer(data *RenewerData) (*Renewer, error) {
	if data.Drive == nil {
		return nil, fmt.Errorf("no drive")
	}
	if data.CallbackURL == "" {
		return nil, fmt.Errorf("no callbackURL")
	}
	if data.CursorFn == nil {
		return nil, fmt.Errorf("no cursorFn")
	}
	res := &Renewer{drive: data.Drive, callbackURL: data.CallbackURL,
		cursorFn: data.CursorFn, interval: data.Interval, timeAfter: time.After}
	if res.interval <= 0 {
		res.interval = time.Hour * 24 * 6
	}
	return res, nil
}

// Renew registers a fresh channel and stops the previous one
func (r *Renewer) Renew(ctx context.Context) error {
	old := r.channel()
	ch, err := r.drive.Watch(ctx, uuid.NewString(), r.callbackURL, r.cursorFn())
	if err != nil {
		return fmt.Errorf("can't register channel: %w", err)
	}
	r.setChannel(ch)
	goapp.Log.Info().Str("ID", ch.ID).Int64("expiration", ch.Expiration).Msg("channel registered")
	if old != nil {
		if err := r.drive.Stop(ctx, old.ID, old.ResourceID); err != nil {
			goapp.Log.Warn().Err(err).Str("ID", old.ID).Msg("can't stop old channel")
		}
	}
	return nil
}

// Start runs the periodic renew loop until ctx is done
func (r *Renewer) Start(ctx context.Context) {
	go func() {
		goapp.Log.Info().Dur("interval", r.interval).Msg("starting channel renewer")
		for {
			if err := r.Renew(ctx); err != nil {
				goapp.Log.Error().Err(err).Msg("channel renew failed")
			}
			select {
			case <-ctx.Done():
				goapp.Log.Info().Msg("stopping channel renewer")
				return
			case <-r.timeAfter(r.interval):
			}
		}
	}()
}

func (r *Renewer) channel() *dapi.Channel {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.current
}

func (r *Renewer) setChannel(ch *dapi.Channel) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.current = ch
}
