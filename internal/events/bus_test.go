package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inclutalk/internal/domain"
	"inclutalk/internal/ports"
)

var _ ports.EventSink = (*Bus)(nil)

func TestBusDeliversTypedEvents(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	var turns []TurnEvent
	var phrases []PhraseEvent
	var errs []ErrorEvent
	require.NoError(t, bus.Subscribe(TopicTurn, func(e TurnEvent) { turns = append(turns, e) }))
	require.NoError(t, bus.Subscribe(TopicPhrase, func(e PhraseEvent) { phrases = append(phrases, e) }))
	require.NoError(t, bus.Subscribe(TopicError, func(e ErrorEvent) { errs = append(errs, e) }))

	bus.TurnChanged(domain.TurnUserSigning, domain.TurnReasonSigningChosen)
	bus.PhraseChanged(nil)
	bus.PhraseChanged([]string{"RENOVAR", "HOY"})
	bus.SessionError(domain.ErrorCodeCameraLost, "camera disconnected")

	require.Len(t, turns, 1)
	assert.Equal(t, TurnEvent{Turn: domain.TurnUserSigning, Reason: domain.TurnReasonSigningChosen, At: fixed}, turns[0])
	require.Len(t, phrases, 2)
	assert.Empty(t, phrases[0].Words)
	assert.NotNil(t, phrases[0].Words)
	assert.Equal(t, []string{"RENOVAR", "HOY"}, phrases[1].Words)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrorCodeCameraLost, errs[0].Code)
}

func TestBusPhraseIsCopied(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var got []string
	require.NoError(t, bus.Subscribe(TopicPhrase, func(e PhraseEvent) { got = e.Words }))

	words := []string{"HOLA"}
	bus.PhraseChanged(words)
	words[0] = "CHAU"
	assert.Equal(t, []string{"HOLA"}, got)
}

func TestBusAsyncPreservesOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var mu sync.Mutex
	var states []domain.CaptureState
	require.NoError(t, bus.SubscribeAsync(TopicCapture, func(e CaptureEvent) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, e.State)
	}))

	bus.CaptureChanged(domain.CaptureStarting)
	bus.CaptureChanged(domain.CaptureListening)
	bus.CaptureChanged(domain.CaptureStopping)
	bus.CaptureChanged(domain.CaptureIdle)
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.CaptureState{
		domain.CaptureStarting,
		domain.CaptureListening,
		domain.CaptureStopping,
		domain.CaptureIdle,
	}, states)
}

func TestBusUnsubscribe(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	calls := 0
	handler := func(TranscriptEvent) { calls++ }
	require.NoError(t, bus.Subscribe(TopicTranscript, handler))

	bus.OperatorTranscript("hola", false)
	require.NoError(t, bus.Unsubscribe(TopicTranscript, handler))
	bus.OperatorTranscript("hola mundo", true)

	assert.Equal(t, 1, calls)
}
