package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"inclutalk/internal/domain"
	"inclutalk/internal/ports"
)

type fakeAudioCapture struct {
	mu       sync.Mutex
	sessions []ports.AudioSession
	err      error
	calls    int
}

func (f *fakeAudioCapture) Start(_ context.Context, _ ports.AudioConfig) (ports.AudioSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no audio session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

func (f *fakeAudioCapture) startCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAudioSession struct {
	mu        sync.Mutex
	chunks    [][]byte
	index     int
	stopCalls int
	stopErr   error
}

func (f *fakeAudioSession) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index >= len(f.chunks) {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[f.index])
	f.index++
	return n, nil
}

func (f *fakeAudioSession) Close() error { return nil }

func (f *fakeAudioSession) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return f.stopErr
}

func (f *fakeAudioSession) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []ports.StreamingSession
	err      error
	calls    int
}

func (f *fakeProvider) StartStreaming(_ context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.sessions) {
		return nil, errors.New("no stream session configured")
	}
	session := f.sessions[f.calls]
	f.calls++
	return session, nil
}

type fakeStreamingSession struct {
	events     chan domain.TranscriptEvent
	waitErr    error
	closeSend  int
	closeCalls int
	closed     bool
	sent       int
	mu         sync.Mutex
}

func newFakeStreamingSession() *fakeStreamingSession {
	return &fakeStreamingSession{events: make(chan domain.TranscriptEvent, 16)}
}

func (f *fakeStreamingSession) SendAudio(_ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	return nil
}

func (f *fakeStreamingSession) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeSend++
	if !f.closed {
		close(f.events)
		f.closed = true
	}
	return nil
}

func (f *fakeStreamingSession) Events() <-chan domain.TranscriptEvent { return f.events }

func (f *fakeStreamingSession) Wait() error {
	time.Sleep(5 * time.Millisecond)
	return f.waitErr
}

func (f *fakeStreamingSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	if !f.closed {
		close(f.events)
		f.closed = true
	}
	return nil
}

func (f *fakeStreamingSession) sentChunks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func (f *fakeStreamingSession) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

// end simulates the provider dropping the stream.
func (f *fakeStreamingSession) end(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waitErr = err
	if !f.closed {
		close(f.events)
		f.closed = true
	}
}

type fakeTracker struct {
	mu       sync.Mutex
	sessions []*fakeTrackingSession
	err      error
	calls    int
}

func (f *fakeTracker) Open(_ context.Context, _ ports.CameraConfig) (ports.HandTrackingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	session := newFakeTrackingSession()
	f.sessions = append(f.sessions, session)
	return session, nil
}

func (f *fakeTracker) openCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTracker) last() *fakeTrackingSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

func (f *fakeTracker) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeTrackingSession struct {
	frames chan domain.HandFrame
	mu     sync.Mutex
	closed bool
}

func newFakeTrackingSession() *fakeTrackingSession {
	return &fakeTrackingSession{frames: make(chan domain.HandFrame, 16)}
}

func (f *fakeTrackingSession) Frames() <-chan domain.HandFrame { return f.frames }

func (f *fakeTrackingSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTrackingSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTrackingSession) send(frame domain.HandFrame) {
	f.frames <- frame
}

// drop simulates the device disappearing.
func (f *fakeTrackingSession) drop() {
	close(f.frames)
}

type fakeClassifier struct {
	mu      sync.Mutex
	labels  []string
	err     error
	calls   atomic.Int32
	last    domain.HandFrame
	release chan struct{}
}

func (f *fakeClassifier) Classify(ctx context.Context, snapshot domain.HandFrame) (domain.Classification, error) {
	index := int(f.calls.Add(1)) - 1
	f.mu.Lock()
	f.last = snapshot
	err := f.err
	release := f.release
	label := "HOLA"
	if index < len(f.labels) {
		label = f.labels[index]
	}
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.Classification{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.Classification{}, err
	}
	return domain.Classification{Label: label, Confidence: 87.5, Confident: true}, nil
}

func (f *fakeClassifier) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeClassifier) lastSnapshot() domain.HandFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fakeSynthesizer struct {
	mu       sync.Mutex
	requests []ports.SynthesisRequest
	err      error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req ports.SynthesisRequest) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(req.Text), nil
}

func (f *fakeSynthesizer) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, req := range f.requests {
		out = append(out, req.Text)
	}
	return out
}

// fakePlayer blocks every Play until released, when release is set.
type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	release chan struct{}
	err     error
}

func (f *fakePlayer) Play(ctx context.Context, audio []byte) error {
	f.mu.Lock()
	f.played = append(f.played, string(audio))
	release := f.release
	err := f.err
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakePlayer) plays() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.played))
	copy(out, f.played)
	return out
}

type fakeLexicon struct {
	replace map[string]string
	err     error
}

func (f *fakeLexicon) Apply(text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if out, ok := f.replace[text]; ok {
		return out, nil
	}
	return text, nil
}

type turnEvent struct {
	turn   domain.ConversationTurn
	reason domain.TurnReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

type recordingSink struct {
	mu          sync.Mutex
	turns       []turnEvent
	captures    []domain.CaptureState
	transcripts []string
	gestures    []domain.GestureStatus
	phrases     [][]string
	playbacks   []domain.PlaybackState
	errors      []errEvent
}

func (r *recordingSink) TurnChanged(turn domain.ConversationTurn, reason domain.TurnReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turnEvent{turn: turn, reason: reason})
}

func (r *recordingSink) CaptureChanged(state domain.CaptureState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = append(r.captures, state)
}

func (r *recordingSink) OperatorTranscript(text string, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcripts = append(r.transcripts, text)
}

func (r *recordingSink) GestureChanged(status domain.GestureStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gestures = append(r.gestures, status)
}

func (r *recordingSink) PhraseChanged(words []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phrases = append(r.phrases, words)
}

func (r *recordingSink) PlaybackChanged(state domain.PlaybackState, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playbacks = append(r.playbacks, state)
}

func (r *recordingSink) SessionError(code domain.ErrorCode, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, errEvent{code: code, detail: detail})
}

func (r *recordingSink) snapshotTurns() []turnEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]turnEvent, len(r.turns))
	copy(out, r.turns)
	return out
}

func (r *recordingSink) snapshotErrors() []errEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]errEvent, len(r.errors))
	copy(out, r.errors)
	return out
}

func (r *recordingSink) snapshotGestures() []domain.GestureStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.GestureStatus, len(r.gestures))
	copy(out, r.gestures)
	return out
}

func handsFrame() domain.HandFrame {
	landmarks := make([]domain.Landmark, domain.LandmarksPerHand)
	for i := range landmarks {
		landmarks[i] = domain.Landmark{X: 0.5, Y: float64(i) / 21, Z: 0}
	}
	return domain.HandFrame{
		Timestamp: time.Now(),
		Hands:     []domain.Hand{{Handedness: domain.HandednessRight, Landmarks: landmarks}},
	}
}

func emptyFrame() domain.HandFrame {
	return domain.HandFrame{Timestamp: time.Now()}
}
