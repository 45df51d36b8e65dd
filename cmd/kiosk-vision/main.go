package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"kiosk-vision-go/internal/camera"
	"kiosk-vision-go/internal/config"
	"kiosk-vision-go/internal/fusion"
	"kiosk-vision-go/internal/mapper"
	"kiosk-vision-go/internal/record"
	"kiosk-vision-go/internal/server"
	"kiosk-vision-go/internal/session"
	"kiosk-vision-go/internal/transport"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to config file (YAML, TOML or JSON)")
		debug      = flag.Bool("debug", false, "Run with a simulated camera")
		port       = flag.Int("port", 0, "Override the operator server port")
		logLevel   = flag.String("log-level", "", "Override the log level")
	)
	flag.Parse()

	cfg, v, err := config.Load(*configPath)
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("load config")
	}
	if *debug {
		cfg.Camera.Debug = true
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := newLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := openSource(ctx, cfg, logger)

	shared := transport.NewShared(transport.Config{
		URL:       cfg.Backend.URL,
		Threshold: cfg.Backend.Threshold,
		Mark:      cfg.Backend.Mark,
	}, logger)
	bus := shared.Acquire(ctx)

	var recorder *record.Writer
	if cfg.Record.Enabled {
		recorder, err = record.NewWriter(cfg.Record.Dir, "events")
		if err != nil {
			logger.Fatal().Err(err).Msg("start event recorder")
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Warn().Err(err).Msg("close event recorder")
			}
		}()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := session.NewMetrics(registry)

	uiMessages := make(chan any, 16)
	broadcast := func(message any) {
		// Viewers are best-effort; never let a slow UI stall the pipeline.
		select {
		case uiMessages <- message:
		default:
		}
	}

	sess := session.New(session.Options{
		Source:           source,
		Bus:              bus,
		ReleaseTransport: shared.Release,
		Display: session.DisplayGeometry{
			Width:  cfg.Display.Width,
			Height: cfg.Display.Height,
			Fit:    mapper.FitMode(cfg.Display.Fit),
		},
		Fusion: fusion.New(cfg.Fusion.MinIoU, cfg.Fusion.MaxAge),
		Settings: session.Settings{
			TargetWidth:  cfg.Encode.TargetWidth,
			Quality:      cfg.Encode.Quality,
			FunInterval:  cfg.Pacing.FunInterval,
			BaseInterval: cfg.Pacing.BaseInterval,
		},
		Recorder:      recorder,
		Broadcast:     broadcast,
		Metrics:       metrics,
		Logger:        logger,
		WatchInterval: cfg.Camera.WatchInterval,
	})
	sess.Start(ctx)
	defer sess.Stop()

	if *configPath != "" {
		config.Watch(v, func(next *config.Config) {
			sess.UpdateSettings(session.Settings{
				TargetWidth:  next.Encode.TargetWidth,
				Quality:      next.Encode.Quality,
				FunInterval:  next.Pacing.FunInterval,
				BaseInterval: next.Pacing.BaseInterval,
			})
			logger.Info().Str("path", *configPath).Msg("config reloaded")
		})
	}

	serverOpts := server.Options{
		Port:     cfg.Server.Port,
		StatusFn: sess.Status,
		ConfigFn: func() map[string]any {
			return map[string]any{
				"backend_url":    cfg.Backend.URL,
				"display_width":  cfg.Display.Width,
				"display_height": cfg.Display.Height,
				"fit":            cfg.Display.Fit,
				"port":           cfg.Server.Port,
			}
		},
		SnapshotFn: func() any {
			detections := sess.Detections()
			if len(detections) == 0 {
				return nil
			}
			return map[string]any{"type": "detections", "detections": detections}
		},
		PreviewFn: sess.Preview,
		Gatherer:  registry,
	}

	logger.Info().Int("port", cfg.Server.Port).Msg("operator server listening")
	if err := server.Run(ctx, serverOpts, uiMessages); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("operator server stopped")
	}
}

// openSource picks the camera: the simulator in debug mode, otherwise
// the ZMQ stream with a simulator fallback when the camera is
// unreachable, so the kiosk still comes up with a visible test pattern.
func openSource(ctx context.Context, cfg *config.Config, logger zerolog.Logger) camera.Source {
	if cfg.Camera.Debug {
		logger.Info().Msg("using simulated camera")
		return camera.NewSimulator(ctx, cfg.Camera.SimWidth, cfg.Camera.SimHeight, cfg.Camera.SimFPS)
	}
	source, err := camera.OpenZMQ(ctx, cfg.Camera.Endpoint, logger)
	if err != nil {
		if errors.Is(err, camera.ErrCameraAccess) {
			logger.Warn().Err(err).Str("endpoint", cfg.Camera.Endpoint).
				Msg("camera unavailable, falling back to simulator")
			return camera.NewSimulator(ctx, cfg.Camera.SimWidth, cfg.Camera.SimHeight, cfg.Camera.SimFPS)
		}
		logger.Fatal().Err(err).Msg("open camera stream")
	}
	return source
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(parsed).With().Timestamp().Logger()
}
