// Package edgetts synthesizes speech with the Microsoft Edge read-aloud service.
package edgetts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"inclutalk/internal/ports"
)

const defaultVoice = "es-PE-CamilaNeural"

// Config selects the default voice.
type Config struct {
	Voice string
}

// outputFunc renders one text with an already connected voice and releases the connection.
type outputFunc func(text string) ([]byte, error)

// Synthesizer implements ports.SpeechSynthesizer. Output is MP3.
type Synthesizer struct {
	cfg  Config
	open func(voice string) (outputFunc, error)
}

func NewSynthesizer(cfg Config) *Synthesizer {
	if strings.TrimSpace(cfg.Voice) == "" {
		cfg.Voice = defaultVoice
	}
	return &Synthesizer{
		cfg: cfg,
		open: func(voice string) (outputFunc, error) {
			communicate, err := edge_tts.New(voice)
			if err != nil {
				return nil, err
			}
			return func(text string) ([]byte, error) {
				defer communicate.Close()
				return communicate.Output(text)
			}, nil
		},
	}
}

type synthesisResult struct {
	audio []byte
	err   error
}

// Synthesize renders text. The underlying client has no cancellation, so a
// cancelled ctx returns immediately and the late result is discarded.
func (s *Synthesizer) Synthesize(ctx context.Context, req ports.SynthesisRequest) ([]byte, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errors.New("nothing to synthesize")
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = s.cfg.Voice
	}

	done := make(chan synthesisResult, 1)
	go func() {
		audio, err := s.render(voice, text)
		done <- synthesisResult{audio: audio, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-done:
		return result.audio, result.err
	}
}

func (s *Synthesizer) render(voice, text string) ([]byte, error) {
	output, err := s.open(voice)
	if err != nil {
		return nil, fmt.Errorf("failed to create Edge TTS communicator: %v: %w", err, ports.ErrCapabilityUnavailable)
	}

	audio, err := output(text)
	if err != nil {
		return nil, fmt.Errorf("edge tts synthesis failed: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("edge tts returned no audio")
	}
	return audio, nil
}
