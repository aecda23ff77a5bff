package usecase

import (
	"errors"
	"fmt"
	"io"
	"time"

	"inclutalk/internal/ports"
)

const minChunkSize = 256

var (
	errAudioRead = errors.New("audio capture error")
	errAudioSend = errors.New("failed to stream audio")
)

// pumpAudio forwards microphone chunks to the transcription stream until
// the microphone reaches EOF. It returns the number of bytes forwarded.
func pumpAudio(audio ports.AudioSession, stream ports.StreamingSession, chunkSize int) (int64, error) {
	if chunkSize < minChunkSize {
		chunkSize = 4096
	}

	var forwarded int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := audio.Read(buf)
		if n > 0 {
			if err := stream.SendAudio(buf[:n]); err != nil {
				return forwarded, fmt.Errorf("%w: %w", errAudioSend, err)
			}
			forwarded += int64(n)
		}
		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF):
			return forwarded, nil
		default:
			return forwarded, fmt.Errorf("%w: %w", errAudioRead, readErr)
		}
	}
}

// drainStream waits for the provider to flush its final segments, closing
// the stream outright once timeout elapses.
func drainStream(stream ports.StreamingSession, timeout time.Duration) error {
	waited := make(chan error, 1)
	go func() {
		waited <- stream.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-waited:
		return err
	case <-timer.C:
		_ = stream.Close()
		return <-waited
	}
}
