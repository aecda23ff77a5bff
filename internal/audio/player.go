package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"inclutalk/internal/ports"
)

const (
	// decodedChannels is fixed by go-mp3, which always yields 16-bit stereo PCM.
	decodedChannels = 2
	playerStopGrace = 500 * time.Millisecond
)

// ArgsFunc builds the player command line for raw s16le PCM on stdin.
type ArgsFunc func(sampleRate, channels int) []string

// FFPlayArgs plays raw PCM from stdin with ffplay and exits when it ends.
func FFPlayArgs(sampleRate, channels int) []string {
	return []string{
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ch_layout", channelLayout(channels),
		"-i", "-",
	}
}

// APlayArgs plays raw PCM from stdin with ALSA's aplay.
func APlayArgs(sampleRate, channels int) []string {
	return []string{
		"-q",
		"-t", "raw",
		"-f", "S16_LE",
		"-r", strconv.Itoa(sampleRate),
		"-c", strconv.Itoa(channels),
		"-",
	}
}

func channelLayout(channels int) string {
	if channels == 1 {
		return "mono"
	}
	return "stereo"
}

// ExecPlayer decodes MP3 audio and streams the PCM into an external player.
type ExecPlayer struct {
	command string
	args    ArgsFunc
}

func NewExecPlayer(command string, args ArgsFunc) *ExecPlayer {
	if command == "" {
		command = "ffplay"
	}
	if args == nil {
		args = FFPlayArgs
		if strings.HasSuffix(command, "aplay") {
			args = APlayArgs
		}
	}
	return &ExecPlayer{command: command, args: args}
}

// Play blocks until the player exits or ctx is cancelled. Cancellation
// kills the player and is not reported as an error.
func (p *ExecPlayer) Play(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return errors.New("no audio to play")
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(audio))
	if err != nil {
		return fmt.Errorf("failed to decode mp3: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.command, p.args(decoder.SampleRate(), decodedChannels)...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	// Players that fork can hold stderr open after the direct child is gone.
	cmd.WaitDelay = playerStopGrace
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create player stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("audio player is not installed (%s): %w", p.command, ports.ErrCapabilityUnavailable)
		}
		return fmt.Errorf("failed to start audio player: %w", err)
	}

	unblock := context.AfterFunc(ctx, func() {
		_ = stdin.Close()
	})
	_, copyErr := io.Copy(stdin, decoder)
	unblock()
	_ = stdin.Close()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if copyErr != nil && !isBrokenPipe(copyErr) {
		return fmt.Errorf("failed to stream audio to player: %w", copyErr)
	}
	if waitErr != nil {
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			return fmt.Errorf("audio player failed: %w: %s", waitErr, detail)
		}
		return fmt.Errorf("audio player failed: %w", waitErr)
	}
	return nil
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, os.ErrClosed) || strings.Contains(err.Error(), "broken pipe")
}
