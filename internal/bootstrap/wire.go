package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"inclutalk/internal/audio"
	"inclutalk/internal/camera"
	"inclutalk/internal/config"
	"inclutalk/internal/events"
	"inclutalk/internal/httpserver"
	"inclutalk/internal/lexicon"
	"inclutalk/internal/logging"
	"inclutalk/internal/metrics"
	"inclutalk/internal/ports"
	"inclutalk/internal/providers/deepgram"
	"inclutalk/internal/providers/edgetts"
	"inclutalk/internal/providers/landmarks"
	"inclutalk/internal/providers/lsp"
	"inclutalk/internal/stats"
	"inclutalk/internal/usecase"
)

const statsFlushInterval = 30 * time.Second

// Services is the assembled runtime graph.
type Services struct {
	Orchestrator *usecase.Orchestrator
	Bus          *events.Bus
	// Camera is set when the front end supplies hand landmarks.
	Camera     *camera.Bridge
	Classifier *lsp.Client
	Metrics    *metrics.Metrics
	Stats      *stats.Store
	Collector  *stats.Collector
	HTTP       *httpserver.Server
	Config     config.Config
	Logger     *slog.Logger
}

// Build loads configuration and wires all backend dependencies.
func Build(logOut io.Writer) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return BuildWith(cfg, logOut)
}

// BuildWith wires the graph for an already resolved configuration.
func BuildWith(cfg config.Config, logOut io.Writer) (*Services, error) {
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, logOut)

	lex, err := lexicon.Load(cfg.Lexicon.Path)
	if err != nil {
		return nil, err
	}

	services := &Services{
		Bus:     events.NewBus(),
		Metrics: metrics.New(),
		Config:  cfg,
		Logger:  logger,
	}
	if err := services.Metrics.Attach(services.Bus); err != nil {
		return nil, fmt.Errorf("failed to attach metrics: %w", err)
	}

	if cfg.Stats.Enabled {
		store, err := stats.Open(cfg.Stats.Path)
		if err != nil {
			return nil, err
		}
		services.Stats = store
		services.Collector = stats.NewCollector(store, logger)
		if err := services.Collector.Attach(services.Bus); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to attach session stats: %w", err)
		}
	}

	var tracker ports.HandTracker
	switch cfg.Camera.Mode {
	case config.CameraModeSidecar:
		tracker = landmarks.NewTracker(landmarks.Config{
			URL:              cfg.Camera.SidecarURL,
			HandshakeTimeout: cfg.Camera.AcquireTimeout,
		})
	default:
		services.Camera = camera.NewBridge(cfg.Camera.AcquireTimeout)
		tracker = services.Camera
	}

	services.Classifier = lsp.NewClient(lsp.Config{
		BaseURL:   cfg.Classifier.BaseURL,
		Timeout:   cfg.Classifier.Timeout,
		Threshold: cfg.Classifier.Threshold,
	})

	services.Orchestrator = usecase.NewOrchestrator(
		usecase.Dependencies{
			Audio: audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand),
			Provider: deepgram.NewProvider(deepgram.Config{
				APIKey:      cfg.Deepgram.APIKey,
				APIBaseURL:  cfg.Deepgram.APIBaseURL,
				Model:       cfg.Deepgram.Model,
				Language:    cfg.Deepgram.Language,
				SmartFormat: cfg.Deepgram.SmartFormat,
				Punctuate:   cfg.Deepgram.Punctuate,
				Endpointing: cfg.Deepgram.Endpointing,
				KeepAlive:   cfg.Deepgram.KeepAlive,
			}),
			Tracker:     tracker,
			Classifier:  services.Classifier,
			Synthesizer: edgetts.NewSynthesizer(edgetts.Config{Voice: cfg.Playback.Voice}),
			Player:      audio.NewExecPlayer(cfg.Playback.PlayerCommand, nil),
			Lexicon:     lex,
			Events:      services.Bus,
			Logger:      logger,
		},
		orchestratorConfig(cfg),
	)

	if cfg.HTTP.Enabled {
		deps := httpserver.Deps{
			Status:     services.Orchestrator,
			Vocabulary: services.Classifier,
			Metrics:    services.Metrics.Handler(),
		}
		if services.Stats != nil {
			deps.Sessions = services.Stats
			deps.Live = services.Collector
		}
		services.HTTP = httpserver.New(cfg.HTTP.Addr, deps, logger)
	}

	logger.Info("services built",
		"camera_mode", cfg.Camera.Mode,
		"stats", cfg.Stats.Enabled,
		"http", cfg.HTTP.Enabled,
		"lexicon_entries", lex.Len(),
		"config_file", cfg.Source,
	)
	return services, nil
}

func orchestratorConfig(cfg config.Config) usecase.Config {
	return usecase.Config{
		Capture: usecase.CaptureConfig{
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Streaming: ports.StreamingConfig{
				SampleRate:     cfg.Audio.SampleRate,
				Channels:       cfg.Audio.Channels,
				Encoding:       "linear16",
				InterimResults: true,
			},
			ChunkSize:      cfg.Session.ChunkSize,
			StreamingGrace: cfg.Session.StreamingGrace,
		},
		Gesture: usecase.GestureConfig{
			Countdown: cfg.Gesture.Countdown,
			Hold:      cfg.Gesture.Hold,
			FrameRate: float64(cfg.Camera.FrameRate),
			Camera: ports.CameraConfig{
				Device:    cfg.Camera.Device,
				Width:     cfg.Camera.Width,
				Height:    cfg.Camera.Height,
				MaxHands:  cfg.Camera.MaxHands,
				FrameRate: cfg.Camera.FrameRate,
			},
		},
		Playback: usecase.PlaybackConfig{
			Language: cfg.Playback.Language,
			Voice:    cfg.Playback.Voice,
		},
	}
}

// Run serves the background surfaces until ctx is cancelled or one of them
// fails.
func (s *Services) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if s.HTTP != nil {
		g.Go(func() error {
			return s.HTTP.Run(ctx)
		})
	}
	if s.Collector != nil {
		g.Go(func() error {
			return s.Collector.Run(ctx, statsFlushInterval)
		})
	}
	<-ctx.Done()
	return g.Wait()
}

// Close ends the conversation and flushes subscribers before closing storage.
func (s *Services) Close() error {
	if s.Orchestrator != nil {
		s.Orchestrator.Close()
	}
	if s.Bus != nil {
		s.Bus.Wait()
	}
	var errs []error
	if s.Stats != nil {
		if err := s.Stats.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close stats: %w", err))
		}
	}
	return errors.Join(errs...)
}
