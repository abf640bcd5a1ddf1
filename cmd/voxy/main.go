package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	ainform "github.com/airenas/async-api/pkg/inform"
	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"

	"github.com/voxanalyze/voxy/internal/pkg/analyze"
	"github.com/voxanalyze/voxy/internal/pkg/asr"
	"github.com/voxanalyze/voxy/internal/pkg/broadcast"
	"github.com/voxanalyze/voxy/internal/pkg/dashboard"
	"github.com/voxanalyze/voxy/internal/pkg/drive"
	"github.com/voxanalyze/voxy/internal/pkg/inform"
	"github.com/voxanalyze/voxy/internal/pkg/pipeline"
	"github.com/voxanalyze/voxy/internal/pkg/postgres"
	"github.com/voxanalyze/voxy/internal/pkg/reconcile"
	"github.com/voxanalyze/voxy/internal/pkg/utils"
	"github.com/voxanalyze/voxy/internal/pkg/watcher"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	go utils.RunPerfEndpoint()

	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	gueClient, err := gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	msgSender, err := postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	filer, err := miniofs.NewFiler(ctx, miniofs.Options{Bucket: cfg.GetString("filer.bucket"),
		URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init filer")
	}

	driveCl, err := drive.NewClient(cfg.GetString("drive.url"), cfg.GetString("drive.token"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init drive client")
	}
	asrCl, err := asr.NewClient(cfg.GetString("asr.url"), cfg.GetString("asr.key"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init asr client")
	}

	var completer analyze.Completer
	if key := cfg.GetString("llm.key"); key != "" {
		llm, err := analyze.NewLLM(cfg.GetString("llm.url"), key, cfg.GetString("llm.model"))
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init llm client")
		}
		completer = llm
	} else {
		goapp.Log.Warn().Msg("no llm key, keyword analysis only")
	}
	analyzer := analyze.NewService(completer)

	hub := broadcast.NewHub(cfg.GetInt("broadcast.queueSize"))
	folderID := cfg.GetString("drive.folderID")

	watcherSrv, err := watcher.NewService(&watcher.Data{Drive: driveCl, DB: db, Filer: filer,
		MsgSender: msgSender, FolderID: folderID,
		CheckInterval: cfg.GetDuration("watcher.checkInterval")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init watcher")
	}

	reconciler, err := reconcile.NewService(&reconcile.Data{DB: db, MsgSender: msgSender, Notifier: hub})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init reconciler")
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	pipelineDone, err := pipeline.StartWorkerService(ctx, &pipeline.ServiceData{
		GueClient: gueClient, WorkerCount: cfg.GetInt("worker.count"),
		MsgSender: msgSender, DB: db, Filer: filer, Transcriber: asrCl,
		Analyzer: analyzer, Drive: driveCl, Notifier: hub,
		Downloader: pipeline.NewFetcher(), FolderID: folderID,
		MarkSeenFn: watcherSrv.MarkSeen, Testing: cfg.GetBool("worker.testing")})
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start pipeline workers")
	}

	informData := &inform.ServiceData{GueClient: gueClient,
		WorkerCount: cfg.GetInt("worker.count"), DB: db,
		Testing: cfg.GetBool("worker.testing")}
	informData.EmailMaker, err = inform.NewCallEmailMaker(cfg.GetString("smtp.from"), cfg.GetString("mail.to"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init email maker")
	}
	if cfg.GetString("smtp.fakeUrl") == "" {
		goapp.Log.Info().Str("sender", "real").Msg("smtp")
		informData.EmailSender, err = ainform.NewSimpleEmailSender(cfg)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init email sender")
		}
	} else {
		goapp.Log.Info().Str("sender", "fake").Msg("smtp")
		informData.EmailSender, err = inform.NewFakeEmailSender(cfg)
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init fake email sender")
		}
	}
	informDone, err := inform.StartWorkerService(ctx, informData)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start inform workers")
	}

	if err := watcherSrv.Init(ctx); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init watcher")
	}
	watcherSrv.Start(ctx)

	if callbackURL := cfg.GetString("drive.callbackUrl"); callbackURL != "" {
		renewer, err := watcher.NewRenewer(&watcher.RenewerData{Drive: driveCl,
			CallbackURL: callbackURL, CursorFn: watcherSrv.Cursor,
			Interval: cfg.GetDuration("drive.renewInterval")})
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init channel renewer")
		}
		renewer.Start(ctx)
	} else {
		goapp.Log.Warn().Msg("no drive callback URL, periodic scans only")
	}

	printBanner()

	go func() {
		err := dashboard.StartWebServer(&dashboard.Data{Port: cfg.GetInt("port"),
			DB: db, Filer: filer, MsgSender: msgSender, Drive: driveCl,
			Events: reconciler, Scanner: watcherSrv, Hub: hub,
			Analyzer: analyzer, FolderID: folderID})
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't start web server")
		}
	}()

	/////////////////////// Waiting for terminate
	waitCh := make(chan os.Signal, 2)
	signal.Notify(waitCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-waitCh:
		goapp.Log.Info().Msg("Got exit signal")
	case <-pipelineDone:
		goapp.Log.Info().Msg("Service exit")
	case <-informDone:
		goapp.Log.Info().Msg("Service exit")
	}
	cancelFunc()
	for _, ch := range []chan struct{}{pipelineDone, informDone} {
		select {
		case <-ch:
		case <-time.After(time.Second * 15):
			goapp.Log.Warn().Msg("Timeout gracefull shutdown")
		}
	}
	goapp.Log.Info().Msg("All code returned. Now exit. Bye")
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
 _   ______ _  ____  __
| | / / __ \ |/ /\ \/ /
| |/ / /_/ /   /  \  /
|___/\____/_/|_|  /_/   v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/voxanalyze/voxy"))
}
