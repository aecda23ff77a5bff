// Package metrics exports kiosk conversation metrics for Prometheus. No
// conversation text is ever recorded.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inclutalk/internal/domain"
	"inclutalk/internal/events"
)

const namespace = "inclutalk"

const (
	outcomeConfident     = "confident"
	outcomeLowConfidence = "low_confidence"
)

var allTurns = []domain.ConversationTurn{
	domain.TurnOperatorSpeaking,
	domain.TurnUserChoosingModality,
	domain.TurnUserSigning,
	domain.TurnUserTyping,
	domain.TurnPlayback,
}

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	turnTransitions *prometheus.CounterVec
	currentTurn     *prometheus.GaugeVec
	errors          *prometheus.CounterVec
	captures        prometheus.Counter
	classifications *prometheus.CounterVec
	confidence      prometheus.Histogram
	playbacks       *prometheus.CounterVec
	phraseWords     prometheus.Gauge

	mu            sync.Mutex
	lastDoneCycle uint64
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turnTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_transitions_total",
			Help:      "Conversation turn transitions by target turn and reason",
		}, []string{"turn", "reason"}),
		currentTurn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_turn",
			Help:      "1 for the active conversation turn, 0 otherwise",
		}, []string{"turn"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "User-facing errors by code",
		}, []string{"code"}),
		captures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operator_captures_total",
			Help:      "Operator microphone captures started",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_classifications_total",
			Help:      "Completed sign classifications by outcome",
		}, []string{"outcome"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sign_confidence_percent",
			Help:      "Classifier confidence of completed sign classifications",
			Buckets:   prometheus.LinearBuckets(10, 10, 9),
		}),
		playbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_total",
			Help:      "Spoken playbacks by final state",
		}, []string{"state"}),
		phraseWords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phrase_words",
			Help:      "Words in the phrase being signed",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.turnTransitions,
		m.currentTurn,
		m.errors,
		m.captures,
		m.classifications,
		m.confidence,
		m.playbacks,
		m.phraseWords,
	)
	return m
}

// Registry exposes the registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Attach subscribes the recorders to bus.
func (m *Metrics) Attach(bus *events.Bus) error {
	subscriptions := map[string]any{
		events.TopicTurn:     m.onTurn,
		events.TopicCapture:  m.onCapture,
		events.TopicGesture:  m.onGesture,
		events.TopicPhrase:   m.onPhrase,
		events.TopicPlayback: m.onPlayback,
		events.TopicError:    m.onError,
	}
	for topic, fn := range subscriptions {
		if err := bus.Subscribe(topic, fn); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) onTurn(e events.TurnEvent) {
	m.turnTransitions.WithLabelValues(string(e.Turn), string(e.Reason)).Inc()
	for _, turn := range allTurns {
		value := 0.0
		if turn == e.Turn && e.Reason != domain.TurnReasonSessionEnded {
			value = 1
		}
		m.currentTurn.WithLabelValues(string(turn)).Set(value)
	}
}

func (m *Metrics) onCapture(e events.CaptureEvent) {
	if e.State == domain.CaptureStarting {
		m.captures.Inc()
	}
}

// onGesture counts each Done cycle once even though its status is published repeatedly.
func (m *Metrics) onGesture(e events.GestureEvent) {
	status := e.Status
	if status.Phase != domain.GestureDone || status.Result == nil {
		return
	}

	m.mu.Lock()
	seen := status.Cycle == m.lastDoneCycle
	m.lastDoneCycle = status.Cycle
	m.mu.Unlock()
	if seen {
		return
	}

	outcome := outcomeConfident
	if !status.Result.Confident {
		outcome = outcomeLowConfidence
	}
	m.classifications.WithLabelValues(outcome).Inc()
	m.confidence.Observe(status.Result.Confidence)
}

func (m *Metrics) onPhrase(e events.PhraseEvent) {
	m.phraseWords.Set(float64(len(e.Words)))
}

func (m *Metrics) onPlayback(e events.PlaybackEvent) {
	switch e.State {
	case domain.PlaybackFinished, domain.PlaybackFailed:
		m.playbacks.WithLabelValues(string(e.State)).Inc()
	}
}

func (m *Metrics) onError(e events.ErrorEvent) {
	m.errors.WithLabelValues(string(e.Code)).Inc()
}
