package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"inclutalk/internal/ports"
)

// PlaybackConfig selects the voice used for spoken responses.
type PlaybackConfig struct {
	Language string
	Voice    string
}

type playbackListener interface {
	playbackFinished(err error)
	lexiconFailed(err error)
}

// speaker renders the payload to audio and plays it. A new utterance
// cancels the one in flight; only the latest reports completion.
type speaker struct {
	synth    ports.SpeechSynthesizer
	player   ports.AudioPlayer
	lexicon  ports.Lexicon
	cfg      PlaybackConfig
	loop     *eventLoop
	listener playbackListener
	log      *slog.Logger

	generation uint64
	cancel     context.CancelFunc
	speaking   bool
}

func newSpeaker(
	synth ports.SpeechSynthesizer,
	player ports.AudioPlayer,
	lexicon ports.Lexicon,
	cfg PlaybackConfig,
	loop *eventLoop,
	listener playbackListener,
	log *slog.Logger,
) *speaker {
	return &speaker{
		synth:    synth,
		player:   player,
		lexicon:  lexicon,
		cfg:      cfg,
		loop:     loop,
		listener: listener,
		log:      log.With("component", "playback"),
	}
}

func (s *speaker) speak(text string) {
	s.stop()

	s.generation++
	generation := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.speaking = true

	go func() {
		err := s.render(ctx, generation, text)
		s.loop.post(func() {
			s.finished(generation, err)
		})
	}()
}

// stop cancels the utterance in flight. Its completion is never reported.
func (s *speaker) stop() {
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.speaking = false
}

func (s *speaker) active() bool {
	return s.speaking
}

func (s *speaker) render(ctx context.Context, generation uint64, text string) error {
	if s.synth == nil || s.player == nil {
		return ports.ErrCapabilityUnavailable
	}

	spoken := text
	if s.lexicon != nil {
		rewritten, err := s.lexicon.Apply(text)
		if err != nil {
			s.loop.post(func() {
				if s.generation == generation {
					s.listener.lexiconFailed(err)
				}
			})
		} else if strings.TrimSpace(rewritten) != "" {
			spoken = rewritten
		}
	}

	audio, err := s.synth.Synthesize(ctx, ports.SynthesisRequest{
		Text:     spoken,
		Language: s.cfg.Language,
		Voice:    s.cfg.Voice,
	})
	if err != nil {
		return fmt.Errorf("synthesize speech: %w", err)
	}
	if err := s.player.Play(ctx, audio); err != nil {
		return fmt.Errorf("play speech: %w", err)
	}
	return nil
}

func (s *speaker) finished(generation uint64, err error) {
	if generation != s.generation {
		return
	}
	s.speaking = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err != nil {
		s.log.Warn("playback failed", "error", err)
	}
	s.listener.playbackFinished(err)
}
