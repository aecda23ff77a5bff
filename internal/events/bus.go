// Package events fans orchestrator state changes out to the UI, metrics and
// session statistics.
package events

import (
	"time"

	evbus "github.com/asaskevich/EventBus"

	"inclutalk/internal/domain"
)

const (
	TopicTurn       = "conversation:turn"
	TopicCapture    = "conversation:capture"
	TopicTranscript = "conversation:transcript"
	TopicGesture    = "conversation:gesture"
	TopicPhrase     = "conversation:phrase"
	TopicPlayback   = "conversation:playback"
	TopicError      = "conversation:error"
)

type TurnEvent struct {
	Turn   domain.ConversationTurn `json:"turn"`
	Reason domain.TurnReason       `json:"reason"`
	At     time.Time               `json:"at"`
}

type CaptureEvent struct {
	State domain.CaptureState `json:"state"`
}

type TranscriptEvent struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

type GestureEvent struct {
	Status domain.GestureStatus `json:"status"`
}

type PhraseEvent struct {
	Words []string `json:"words"`
}

type PlaybackEvent struct {
	State domain.PlaybackState `json:"state"`
	Text  string               `json:"text"`
}

type ErrorEvent struct {
	Code   domain.ErrorCode `json:"code"`
	Detail string           `json:"detail"`
	At     time.Time        `json:"at"`
}

// Bus implements ports.EventSink on top of EventBus. Every topic carries a
// single struct payload so handlers take one typed argument.
type Bus struct {
	bus evbus.Bus
	now func() time.Time
}

func NewBus() *Bus {
	return &Bus{bus: evbus.New(), now: time.Now}
}

// Subscribe runs fn synchronously on the publisher's goroutine. fn must be
// quick and must not call back into the orchestrator.
func (b *Bus) Subscribe(topic string, fn any) error {
	return b.bus.Subscribe(topic, fn)
}

// SubscribeAsync runs fn off the publisher's goroutine, one event at a time,
// in publish order. A publish waits while fn is still handling the previous event.
func (b *Bus) SubscribeAsync(topic string, fn any) error {
	return b.bus.SubscribeAsync(topic, fn, true)
}

func (b *Bus) Unsubscribe(topic string, fn any) error {
	return b.bus.Unsubscribe(topic, fn)
}

// Wait blocks until asynchronous handlers have drained.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}

func (b *Bus) TurnChanged(turn domain.ConversationTurn, reason domain.TurnReason) {
	b.bus.Publish(TopicTurn, TurnEvent{Turn: turn, Reason: reason, At: b.now()})
}

func (b *Bus) CaptureChanged(state domain.CaptureState) {
	b.bus.Publish(TopicCapture, CaptureEvent{State: state})
}

func (b *Bus) OperatorTranscript(text string, final bool) {
	b.bus.Publish(TopicTranscript, TranscriptEvent{Text: text, Final: final})
}

func (b *Bus) GestureChanged(status domain.GestureStatus) {
	b.bus.Publish(TopicGesture, GestureEvent{Status: status})
}

func (b *Bus) PhraseChanged(words []string) {
	b.bus.Publish(TopicPhrase, PhraseEvent{Words: append([]string{}, words...)})
}

func (b *Bus) PlaybackChanged(state domain.PlaybackState, text string) {
	b.bus.Publish(TopicPlayback, PlaybackEvent{State: state, Text: text})
}

func (b *Bus) SessionError(code domain.ErrorCode, detail string) {
	b.bus.Publish(TopicError, ErrorEvent{Code: code, Detail: detail, At: b.now()})
}
