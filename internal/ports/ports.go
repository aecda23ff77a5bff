package ports

import (
	"context"
	"errors"
	"io"

	"inclutalk/internal/domain"
)

var (
	// ErrCapabilityUnavailable marks a device or engine that cannot be used at all
	// (not installed, not configured, unreachable). The user may retry.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	// ErrPermissionDenied marks a device the operating system or user refused.
	ErrPermissionDenied = errors.New("permission denied")
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// CameraConfig selects the capture device for hand tracking.
type CameraConfig struct {
	Device    string
	Width     int
	Height    int
	MaxHands  int
	FrameRate int
}

// HandTrackingSession delivers per-frame hand detection results until closed.
// The frames channel is closed when the device stops delivering.
type HandTrackingSession interface {
	Frames() <-chan domain.HandFrame
	Close() error
}

// HandTracker acquires the camera and starts hand landmark detection.
type HandTracker interface {
	Open(ctx context.Context, cfg CameraConfig) (HandTrackingSession, error)
}

// SignClassifier turns one landmark snapshot into a word.
type SignClassifier interface {
	Classify(ctx context.Context, snapshot domain.HandFrame) (domain.Classification, error)
}

// SynthesisRequest is one text-to-speech request.
type SynthesisRequest struct {
	Text     string
	Language string
	Voice    string
}

// SpeechSynthesizer renders text into encoded audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
}

// AudioPlayer plays encoded audio and returns once playback ends or ctx is cancelled.
type AudioPlayer interface {
	Play(ctx context.Context, audio []byte) error
}

// Lexicon rewrites text before it is spoken.
type Lexicon interface {
	Apply(text string) (string, error)
}

// EventSink receives orchestrator state changes. Calls happen on the
// orchestrator's event loop and must not call back into the orchestrator.
type EventSink interface {
	TurnChanged(turn domain.ConversationTurn, reason domain.TurnReason)
	CaptureChanged(state domain.CaptureState)
	OperatorTranscript(text string, final bool)
	GestureChanged(status domain.GestureStatus)
	PhraseChanged(words []string)
	PlaybackChanged(state domain.PlaybackState, text string)
	SessionError(code domain.ErrorCode, detail string)
}
