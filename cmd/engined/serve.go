package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mediaengine/engine/internal/api"
	"github.com/mediaengine/engine/internal/config"
	"github.com/mediaengine/engine/internal/eventbus"
	"github.com/mediaengine/engine/internal/faces"
	"github.com/mediaengine/engine/internal/lifecycle"
	"github.com/mediaengine/engine/internal/logging"
	"github.com/mediaengine/engine/internal/ml"
	"github.com/mediaengine/engine/internal/pipeline"
	"github.com/mediaengine/engine/internal/scanner"
	"github.com/mediaengine/engine/internal/search"
	"github.com/mediaengine/engine/internal/store"
)

// shutdownGrace bounds how long running jobs get to reach their next
// cooperative checkpoint before the process exits anyway.
const shutdownGrace = 3 * time.Second

// warmShardCount is how many open vector shards the Searcher keeps
// warm between queries.
const warmShardCount = 64

func newServeCmd() *cobra.Command {
	var (
		configFile string
		dataRoot   string
		parentPID  int
		logLevel   string
		debug      bool
		devOrigin  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the engine and serve the localhost API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultEngineConfig()
			if configFile != "" {
				var err error
				if cfg, err = config.LoadFile(configFile); err != nil {
					return err
				}
			}
			if dataRoot != "" {
				cfg.DataRoot = dataRoot
			}
			if debug {
				cfg.Debug = true
			}
			if devOrigin != "" {
				cfg.DevOrigin = devOrigin
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.EnsureLayout(); err != nil {
				return err
			}
			if parentPID == 0 {
				parentPID = os.Getppid()
			}
			return serve(cmd.Context(), cfg, parentPID, logLevel)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&dataRoot, "data-root", "", "engine data root (default: ~/.media-engine)")
	cmd.Flags().IntVar(&parentPID, "parent-pid", 0, "supervising shell PID for the watchdog (default: this process's parent)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging and the dev CORS origin")
	cmd.Flags().StringVar(&devOrigin, "dev-origin", "", "extra CORS origin allowed in debug mode")
	return cmd
}

func serve(ctx context.Context, cfg config.EngineConfig, parentPID int, logLevel string) error {
	logCfg := logging.DefaultConfig(cfg.DataRoot)
	logCfg.Level = logLevel
	if cfg.Debug {
		logCfg.Level = "debug"
	}
	log, closeLogs, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	defer closeLogs()

	// Startup protocol: at most one engine per data root.
	acquired, err := lifecycle.Acquire(ctx, cfg.DataRoot, lifecycle.PortRange{
		Low:  cfg.PortRangeLow,
		High: cfg.PortRangeHigh,
	}, parentPID, lifecycle.DefaultHealthProbe(nil))
	if err != nil {
		return err
	}
	defer acquired.Manager.Release()

	st, err := store.Open(ctx, cfg.DBPath())
	if err != nil {
		return err
	}
	defer st.Close()

	fts, err := store.OpenTranscriptIndex(filepath.Join(cfg.DataRoot, "ftsindex"))
	if err != nil {
		return err
	}
	defer fts.Close()

	shards, err := store.NewShardStore(cfg.ShardsDir(), warmShardCount)
	if err != nil {
		return err
	}
	defer shards.Close()

	bus := eventbus.New()
	defer bus.Close()

	// Consistency repair runs before the first request is served.
	report, err := lifecycle.Repair(ctx, st, cfg, log)
	if err != nil {
		return fmt.Errorf("consistency repair: %w", err)
	}
	log.Info("consistency repair complete", "report", report.String())
	bus.Publish(eventbus.Event{Type: eventbus.EventConsistencyRepair, Payload: eventbus.ConsistencyRepairPayload{
		ItemsRequeued:       report.ItemsRequeued,
		JobsMarkedLost:      report.JobsMarkedLost,
		StaleArtifactsFound: report.StaleArtifactsFound,
		OrphanFilesDeleted:  report.OrphanFilesDeleted,
		TempFilesPurged:     report.TempFilesPurged,
	}})

	settings, err := config.NewLiveSettings(ctx, st, store.MarshalSettings, store.UnmarshalSettings)
	if err != nil {
		return err
	}

	models := ml.NewCache(
		func(ctx context.Context) (ml.SpeechRecognizer, error) { return ml.NewStaticSpeechRecognizer(), nil },
		func(ctx context.Context) (ml.VisualEmbedder, error) { return ml.NewStaticVisualEmbedder(), nil },
		func(ctx context.Context) (ml.TextEmbedder, error) { return ml.NewStaticTextEmbedder(), nil },
		func(ctx context.Context) (ml.ObjectDetector, error) { return ml.NewStaticObjectDetector(), nil },
		func(ctx context.Context) (ml.FaceModel, error) { return ml.NewStaticFaceModel(), nil },
	)
	defer models.Close()

	downloads := ml.NewDownloader(cfg.ModelsDir(), nil, bus)

	learner := faces.New(st, log)
	scn := scanner.New(st, scanner.NewExecProber(), bus, log)
	searcher := search.New(st, shards, fts, models, log)

	rt := &pipeline.Runtime{
		Store:     st,
		Config:    cfg,
		Settings:  settings,
		Models:    models,
		Shards:    shards,
		FTS:       fts,
		Audio:     pipeline.NewExecAudioExtractor(),
		Frames:    pipeline.NewExecFrameSampler(),
		Segmenter: pipeline.NewWavSegmenter(),
		Faces:     learner,
		Bus:       bus,
		Log:       log,
	}
	coordinator := pipeline.NewCoordinator(rt)

	serveCtx, shutdown := context.WithCancel(ctx)
	defer shutdown()

	coordinator.Start(serveCtx)

	watchdog := lifecycle.NewWatchdog(parentPID, func() {
		log.Warn("parent process gone; shutting down")
		shutdown()
	}, log)
	go watchdog.Run(serveCtx)

	srv := api.New(api.Deps{
		Store:       st,
		Shards:      shards,
		FTS:         fts,
		Models:      models,
		Downloads:   downloads,
		Searcher:    searcher,
		Faces:       learner,
		Scanner:     scn,
		Coordinator: coordinator,
		Settings:    settings,
		Bus:         bus,
		Config:      cfg,
		Log:         log,
		Token:       acquired.Token,
		EngineUUID:  acquired.Manager.Data().EngineUUID,
		StartedAt:   time.Now(),
		Shutdown:    shutdown,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", acquired.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("engine serving",
			"port", acquired.Port,
			"data_root", cfg.DataRoot,
			"pid", os.Getpid(),
			"parent_pid", parentPID)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		log.Info("signal received; shutting down", "signal", sig.String())
		shutdown()
	case <-serveCtx.Done():
	}

	// Graceful teardown: stop taking requests, then give running jobs
	// a bounded window to reach their next checkpoint.
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = httpServer.Shutdown(closeCtx)

	stopped := make(chan struct{})
	go func() {
		coordinator.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownGrace):
		log.Warn("jobs did not stop within the grace window")
	}

	if err := shards.Flush(); err != nil {
		log.Warn("flushing vector shards failed", "error", err.Error())
	}
	log.Info("engine stopped")
	return nil
}
