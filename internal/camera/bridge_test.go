package camera

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inclutalk/internal/domain"
	"inclutalk/internal/ports"
)

type recordingRequester struct {
	mu       sync.Mutex
	requests []bool
	onOpen   func()
}

func (r *recordingRequester) RequestCamera(open bool, _ ports.CameraConfig) {
	r.mu.Lock()
	r.requests = append(r.requests, open)
	onOpen := r.onOpen
	r.mu.Unlock()
	if open && onOpen != nil {
		go onOpen()
	}
}

func (r *recordingRequester) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.requests))
	copy(out, r.requests)
	return out
}

func frameAt(seconds int64) domain.HandFrame {
	return domain.HandFrame{Timestamp: time.Unix(seconds, 0)}
}

func TestBridgeOpenReadyAndPush(t *testing.T) {
	t.Parallel()

	bridge := NewBridge(time.Second)
	requester := &recordingRequester{}
	requester.onOpen = func() { bridge.Report(StatusReady, "") }
	bridge.SetRequester(requester)

	session, err := bridge.Open(context.Background(), ports.CameraConfig{})
	require.NoError(t, err)
	assert.True(t, bridge.Active())

	assert.True(t, bridge.Push(frameAt(1)))
	assert.True(t, bridge.Push(frameAt(2)))
	got := <-session.Frames()
	assert.Equal(t, int64(2), got.Timestamp.Unix(), "newest frame wins")

	require.NoError(t, session.Close())
	assert.False(t, bridge.Active())
	assert.False(t, bridge.Push(frameAt(3)))
	assert.Equal(t, []bool{true, false}, requester.snapshot())

	_, ok := <-session.Frames()
	assert.False(t, ok)
}

func TestBridgeOpenFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status Status
		want   error
	}{
		{name: "denied", status: StatusDenied, want: ports.ErrPermissionDenied},
		{name: "unavailable", status: StatusUnavailable, want: ports.ErrCapabilityUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bridge := NewBridge(time.Second)
			requester := &recordingRequester{}
			requester.onOpen = func() { bridge.Report(tt.status, "NotAllowedError") }
			bridge.SetRequester(requester)

			_, err := bridge.Open(context.Background(), ports.CameraConfig{})
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, bridge.Active())
		})
	}
}

func TestBridgeOpenWithoutFrontEnd(t *testing.T) {
	t.Parallel()

	_, err := NewBridge(time.Second).Open(context.Background(), ports.CameraConfig{})
	assert.ErrorIs(t, err, ports.ErrCapabilityUnavailable)
}

func TestBridgeOpenTimesOutAndStopsCamera(t *testing.T) {
	t.Parallel()

	bridge := NewBridge(20 * time.Millisecond)
	requester := &recordingRequester{}
	bridge.SetRequester(requester)

	_, err := bridge.Open(context.Background(), ports.CameraConfig{})
	assert.ErrorIs(t, err, ports.ErrCapabilityUnavailable)
	assert.Equal(t, []bool{true, false}, requester.snapshot())
	assert.False(t, bridge.Report(StatusReady, ""), "late report has no listener")
}

func TestBridgeLostEndsSession(t *testing.T) {
	t.Parallel()

	bridge := NewBridge(time.Second)
	requester := &recordingRequester{}
	requester.onOpen = func() { bridge.Report(StatusReady, "") }
	bridge.SetRequester(requester)

	session, err := bridge.Open(context.Background(), ports.CameraConfig{})
	require.NoError(t, err)

	assert.True(t, bridge.Report(StatusLost, "track ended"))
	_, ok := <-session.Frames()
	assert.False(t, ok)
	assert.False(t, bridge.Active())
	require.NoError(t, session.Close())
	assert.Equal(t, []bool{true}, requester.snapshot())
}

func TestBridgeNewerOpenSupersedesPendingOne(t *testing.T) {
	t.Parallel()

	bridge := NewBridge(time.Second)
	requester := &recordingRequester{}
	bridge.SetRequester(requester)

	firstErr := make(chan error, 1)
	go func() {
		_, err := bridge.Open(context.Background(), ports.CameraConfig{})
		firstErr <- err
	}()
	require.Eventually(t, func() bool {
		return len(requester.snapshot()) == 1
	}, time.Second, time.Millisecond)

	requester.mu.Lock()
	requester.onOpen = func() { bridge.Report(StatusReady, "") }
	requester.mu.Unlock()

	session, err := bridge.Open(context.Background(), ports.CameraConfig{})
	require.NoError(t, err)
	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
	assert.True(t, bridge.Active())
	assert.Equal(t, []bool{true, true}, requester.snapshot(), "superseded request must not stop the camera")

	require.NoError(t, session.Close())
}

func TestBridgeCancelledOpenFreesTheCamera(t *testing.T) {
	t.Parallel()

	bridge := NewBridge(time.Second)
	requester := &recordingRequester{}
	bridge.SetRequester(requester)

	ctx, cancel := context.WithCancel(context.Background())
	requester.onOpen = cancel

	_, err := bridge.Open(ctx, ports.CameraConfig{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []bool{true, false}, requester.snapshot())

	requester.mu.Lock()
	requester.onOpen = func() { bridge.Report(StatusReady, "") }
	requester.mu.Unlock()

	session, err := bridge.Open(context.Background(), ports.CameraConfig{})
	require.NoError(t, err)
	require.NoError(t, session.Close())
}
