package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"inclutalk/internal/domain"
	"inclutalk/internal/ports"
)

const streamDrainTimeout = 4 * time.Second

// CaptureConfig controls operator microphone sessions.
type CaptureConfig struct {
	Audio          ports.AudioConfig
	Streaming      ports.StreamingConfig
	ChunkSize      int
	StreamingGrace time.Duration
}

// captureListener receives capture outcomes on the event loop.
type captureListener interface {
	transcriptUpdated(text string, final bool)
	captureFailed(code domain.ErrorCode, err error)
	captureEnded()
}

type activeCapture struct {
	cancel func()
	audio  ports.AudioSession
	stream ports.StreamingSession

	aggregator *transcriptAggregator
	eventsDone chan struct{}
	audioDone  chan struct{}

	// stopping is owned by the event loop.
	stopping bool
}

// speechCapture runs at most one microphone-to-transcript session. The
// generation counter invalidates sessions still opening when a newer
// decision (stop, confirm, clear, leave turn) was taken on the loop.
type speechCapture struct {
	audio    ports.AudioCapture
	provider ports.TranscriptionProvider
	cfg      CaptureConfig
	loop     *eventLoop
	listener captureListener
	log      *slog.Logger

	generation uint64
	current    *activeCapture
}

func newSpeechCapture(
	audio ports.AudioCapture,
	provider ports.TranscriptionProvider,
	cfg CaptureConfig,
	loop *eventLoop,
	listener captureListener,
	log *slog.Logger,
) *speechCapture {
	if cfg.ChunkSize < minChunkSize {
		cfg.ChunkSize = 4096
	}
	return &speechCapture{
		audio:    audio,
		provider: provider,
		cfg:      cfg,
		loop:     loop,
		listener: listener,
		log:      log.With("component", "speech"),
	}
}

// reserve starts a new generation for a session about to be opened.
func (c *speechCapture) reserve() uint64 {
	c.generation++
	return c.generation
}

// pending reports whether generation is still the latest reservation.
func (c *speechCapture) pending(generation uint64) bool {
	return c.generation == generation && c.current == nil
}

// open connects the provider and the microphone. It blocks and must be
// called off the event loop.
func (c *speechCapture) open(ctx context.Context) (*activeCapture, error) {
	if c.audio == nil || c.provider == nil {
		return nil, ports.ErrCapabilityUnavailable
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := c.provider.StartStreaming(sessionCtx, c.cfg.Streaming)
	if err != nil {
		cancel()
		return nil, err
	}

	audioSession, err := c.audio.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		_ = stream.Close()
		cancel()
		return nil, err
	}

	return &activeCapture{
		cancel:     cancel,
		audio:      audioSession,
		stream:     stream,
		aggregator: newTranscriptAggregator(),
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
	}, nil
}

// attach makes an opened session current and starts its pumps.
func (c *speechCapture) attach(active *activeCapture) {
	c.current = active
	go c.consumeTranscripts(active)
	go func() {
		defer close(active.audioDone)
		forwarded, err := pumpAudio(active.audio, active.stream, c.cfg.ChunkSize)
		c.log.Debug("microphone drained", "bytes", forwarded)
		if err != nil {
			c.loop.post(func() {
				c.audioFailed(active, domain.ErrorCodeAudioStream, err)
			})
		}
	}()
	c.log.Info("capture started")
}

func (c *speechCapture) listening() bool {
	return c.current != nil
}

// finish stops the microphone and lets the provider flush its last
// segments. captureEnded follows once the stream has drained.
func (c *speechCapture) finish() bool {
	active := c.current
	if active == nil || active.stopping {
		return false
	}
	active.stopping = true
	grace := c.cfg.StreamingGrace

	go func() {
		if err := active.audio.Stop(); err != nil {
			c.log.Warn("failed to stop audio capture cleanly", "error", err)
		}
		if grace > 0 {
			time.Sleep(grace)
		}
		_ = active.stream.CloseSend()
		if err := drainStream(active.stream, streamDrainTimeout); err != nil {
			c.log.Debug("stream closed with error", "error", err)
		}
	}()
	return true
}

// abort discards the current session and any session still opening.
// Transcript events already queued for it are dropped.
func (c *speechCapture) abort() {
	c.generation++
	active := c.current
	if active == nil {
		return
	}
	c.current = nil
	c.log.Info("capture discarded")
	go discardCapture(active)
}

func discardCapture(active *activeCapture) {
	active.cancel()
	_ = active.audio.Stop()
	_ = active.stream.Close()
	<-active.eventsDone
	<-active.audioDone
	_ = active.audio.Close()
}

func (c *speechCapture) consumeTranscripts(active *activeCapture) {
	defer close(active.eventsDone)

	for event := range active.stream.Events() {
		text := active.aggregator.Add(event)
		if text == "" {
			continue
		}
		final := event.Kind == domain.TranscriptKindFinal
		c.loop.post(func() {
			if c.current != active {
				return
			}
			c.listener.transcriptUpdated(text, final)
		})
	}

	err := active.stream.Wait()
	c.loop.post(func() {
		c.streamEnded(active, err)
	})
}

func (c *speechCapture) streamEnded(active *activeCapture, err error) {
	if c.current != active {
		return
	}
	c.current = nil
	stopping := active.stopping
	go discardCapture(active)

	if err != nil && !stopping && !errors.Is(err, context.Canceled) {
		c.log.Warn("transcription stream failed", "error", err)
		c.listener.captureFailed(domain.ErrorCodeTranscription, err)
		return
	}
	c.log.Info("capture finished")
	c.listener.captureEnded()
}

func (c *speechCapture) audioFailed(active *activeCapture, code domain.ErrorCode, err error) {
	if c.current != active || active.stopping {
		return
	}
	c.abort()
	c.log.Warn("audio capture failed", "error", err)
	c.listener.captureFailed(code, err)
}

// captureOpenCode maps an open failure to the user-facing error state.
func captureOpenCode(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, ports.ErrPermissionDenied):
		return domain.ErrorCodeMicrophoneDenied
	case errors.Is(err, ports.ErrCapabilityUnavailable):
		return domain.ErrorCodeSpeechUnavailable
	default:
		return domain.ErrorCodeTranscription
	}
}
