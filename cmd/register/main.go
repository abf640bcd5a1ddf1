package main

import (
	"context"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"

	"github.com/voxanalyze/voxy/internal/pkg/drive"
)

// one shot utility: registers a storage push notification channel
// pointing at the dashboard callback URL
func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	driveCl, err := drive.NewClient(cfg.GetString("drive.url"), cfg.GetString("drive.token"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init drive client")
	}
	callbackURL := cfg.GetString("drive.callbackUrl")
	if callbackURL == "" {
		goapp.Log.Fatal().Msg("no drive.callbackUrl")
	}

	ctx, cancelFunc := context.WithTimeout(context.Background(), time.Second*30)
	defer cancelFunc()

	cursor, err := driveCl.StartPageToken(ctx)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't get start page token")
	}
	ch, err := driveCl.Watch(ctx, uuid.NewString(), callbackURL, cursor)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't register channel")
	}
	goapp.Log.Info().Str("ID", ch.ID).Str("resourceID", ch.ResourceID).
		Int64("expiration", ch.Expiration).Str("cursor", cursor).Msg("channel registered")
}
