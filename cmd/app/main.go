package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jzmtx/routeguardweb/internal/api"
	"github.com/jzmtx/routeguardweb/internal/config"
	"github.com/jzmtx/routeguardweb/internal/geocode"
	"github.com/jzmtx/routeguardweb/internal/location"
	"github.com/jzmtx/routeguardweb/internal/mapview"
	"github.com/jzmtx/routeguardweb/internal/media"
	"github.com/jzmtx/routeguardweb/internal/notify"
	"github.com/jzmtx/routeguardweb/internal/panel"
	"github.com/jzmtx/routeguardweb/internal/route"
	"github.com/jzmtx/routeguardweb/internal/routing"
	"github.com/jzmtx/routeguardweb/internal/server"
	"github.com/jzmtx/routeguardweb/internal/sos"
	"github.com/jzmtx/routeguardweb/internal/stream"
	"github.com/jzmtx/routeguardweb/internal/tracking"
	"github.com/jzmtx/routeguardweb/internal/webapp"
)

const shutdownTimeout = 5 * time.Second

// deps lets tests drive run without a real listener or signals.
type deps struct {
	loadConfig func() config.Config
	newServer  func(cfg config.Config, logger *slog.Logger) (*server.Server, func(), error)
	listen     func(s *server.Server) error
	signals    []os.Signal
	logger     *slog.Logger
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	d := deps{
		loadConfig: config.Load,
		newServer:  buildServer,
		listen:     func(s *server.Server) error { return s.Listen() },
		signals:    []os.Signal{os.Interrupt, syscall.SIGTERM},
		logger:     logger,
	}
	if err := run(context.Background(), d); err != nil {
		logger.Error("bridge exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, d deps) error {
	cfg := d.loadConfig()
	srv, cleanup, err := d.newServer(cfg, d.logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(ctx, d.signals...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.listen(srv)
	}()
	d.logger.Info("bridge listening", "addr", cfg.ServerPort)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	d.logger.Info("bridge stopped")
	return nil
}

// buildServer assembles the engine behind the bridge.
func buildServer(cfg config.Config, logger *slog.Logger) (*server.Server, func(), error) {
	redisClient := stream.ConnectRedis(cfg)
	hub := stream.NewHub(redisClient)
	client := api.NewClient(cfg.BackendURL)
	toaster := notify.NewToaster(hub)
	bridge := mapview.NewBridge(hub)
	report := location.NewReport()
	audio := media.NewFeed()
	video := media.NewFeed()

	planner := route.NewPlanner(routing.NewClient(cfg.OSRMURL), client, bridge, toaster)
	tracker := tracking.NewTracker(client, report, bridge, toaster, hub, cfg.LocationInterval, cfg.LocationTimeout, logger)
	session := sos.NewSession(client, report, audio, video, media.NewStore(cfg.MediaStoreURL), toaster, hub, sos.Config{
		CountdownSeconds: cfg.CountdownSeconds,
		LocationInterval: cfg.LocationInterval,
		LocationTimeout:  cfg.LocationTimeout,
		ChunkLength:      cfg.MediaChunkLength,
		NotifyDelay:      3 * time.Second,
	}, logger)

	shell, err := webapp.NewService()
	if err != nil {
		return nil, nil, err
	}

	srv := server.New(cfg, server.Deps{
		Hub:      hub,
		Planner:  planner,
		Tracker:  tracker,
		SOS:      session,
		Panels:   panel.NewMachine(hub),
		Backend:  client,
		Geocoder: geocode.NewClient(cfg.NominatimURL),
		Mapview:  bridge,
		Report:   report,
		Audio:    audio,
		Video:    video,
		Webapp:   shell,
		Logger:   logger,
	})

	cleanup := func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}
	return srv, cleanup, nil
}
