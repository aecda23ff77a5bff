package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"inclutalk/internal/domain"
	"inclutalk/internal/events"
)

const (
	saveTimeout          = 3 * time.Second
	defaultFlushInterval = 30 * time.Second
)

// Recorder persists session records.
type Recorder interface {
	Save(ctx context.Context, record SessionRecord) error
}

// Collector turns orchestrator events into one SessionRecord per kiosk
// session and saves it on every turn change.
type Collector struct {
	recorder Recorder
	log      *slog.Logger
	now      func() time.Time

	mu              sync.Mutex
	current         *SessionRecord
	confidenceSum   float64
	confidenceCount int
	classifyCycle   uint64
	doneCycle       uint64
}

func NewCollector(recorder Recorder, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		recorder: recorder,
		log:      log.With("component", "stats"),
		now:      time.Now,
	}
}

// Attach subscribes asynchronously so saves never run on the publisher.
func (c *Collector) Attach(bus *events.Bus) error {
	subscriptions := map[string]any{
		events.TopicTurn:    c.onTurn,
		events.TopicCapture: c.onCapture,
		events.TopicGesture: c.onGesture,
		events.TopicError:   c.onError,
	}
	for topic, fn := range subscriptions {
		if err := bus.SubscribeAsync(topic, fn); err != nil {
			return err
		}
	}
	return nil
}

// Run flushes the session in progress every interval until ctx is done,
// so a long turn is not lost if the kiosk dies before the next turn change.
func (c *Collector) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Flush()
		}
	}
}

// Flush saves the session in progress with its duration brought up to date.
func (c *Collector) Flush() {
	c.mu.Lock()
	if c.current == nil {
		c.mu.Unlock()
		return
	}
	now := c.now()
	c.current.TotalDurationSeconds = now.Sub(c.current.StartedAt).Seconds()
	c.current.UpdatedAt = now
	record := *c.current
	c.mu.Unlock()

	c.save(record)
}

// Current returns a copy of the session in progress.
func (c *Collector) Current() (SessionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return SessionRecord{}, false
	}
	return *c.current, true
}

func (c *Collector) onTurn(e events.TurnEvent) {
	var abandoned *SessionRecord

	c.mu.Lock()
	switch e.Reason {
	case domain.TurnReasonSessionStarted:
		abandoned = c.finish(e.At)
		c.begin(e.At)
	case domain.TurnReasonPhraseConfirmed, domain.TurnReasonTextConfirmed:
		if c.current != nil {
			c.current.TurnsCount++
		}
	case domain.TurnReasonTypingChosen:
		if c.current != nil {
			c.current.TextFallbackCount++
		}
	}

	if c.current == nil {
		c.mu.Unlock()
		return
	}
	if e.Reason == domain.TurnReasonSessionEnded {
		ended := e.At
		c.current.EndedAt = &ended
	}
	c.current.TotalDurationSeconds = e.At.Sub(c.current.StartedAt).Seconds()
	c.current.UpdatedAt = c.now()
	record := *c.current
	if e.Reason == domain.TurnReasonSessionEnded {
		c.current = nil
	}
	c.mu.Unlock()

	if abandoned != nil {
		c.save(*abandoned)
	}
	c.save(record)
}

// finish closes the session in progress, if any, when a new one replaces it.
func (c *Collector) finish(at time.Time) *SessionRecord {
	if c.current == nil {
		return nil
	}
	if at.IsZero() {
		at = c.now()
	}
	record := *c.current
	record.EndedAt = &at
	record.TotalDurationSeconds = at.Sub(record.StartedAt).Seconds()
	record.UpdatedAt = c.now()
	c.current = nil
	return &record
}

func (c *Collector) begin(at time.Time) {
	if at.IsZero() {
		at = c.now()
	}
	c.current = &SessionRecord{ID: uuid.NewString(), StartedAt: at}
	c.confidenceSum = 0
	c.confidenceCount = 0
	c.classifyCycle = 0
	c.doneCycle = 0
}

func (c *Collector) onCapture(e events.CaptureEvent) {
	if e.State != domain.CaptureStarting {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.STTAttempts++
	}
}

func (c *Collector) onGesture(e events.GestureEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}

	status := e.Status
	switch {
	case status.Phase == domain.GestureClassifying && status.Cycle != c.classifyCycle:
		c.classifyCycle = status.Cycle
		c.current.LSPAttempts++
	case status.Phase == domain.GestureDone && status.Result != nil && status.Cycle != c.doneCycle:
		c.doneCycle = status.Cycle
		c.confidenceSum += status.Result.Confidence
		c.confidenceCount++
		c.current.AvgConfidence = c.confidenceSum / float64(c.confidenceCount)
	}
}

func (c *Collector) onError(e events.ErrorEvent) {
	if e.Code != domain.ErrorCodeClassification {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.LSPFailedAttempts++
	}
}

func (c *Collector) save(record SessionRecord) {
	if c.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := c.recorder.Save(ctx, record); err != nil {
		c.log.Warn("failed to save session stats", "session", record.ID, "error", err)
	}
}
