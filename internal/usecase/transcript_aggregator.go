package usecase

import (
	"strings"
	"sync"

	"inclutalk/internal/domain"
)

// transcriptAggregator keeps the cumulative text of one capture: every final
// segment followed by the partial of the segment still in progress.
type transcriptAggregator struct {
	mu      sync.Mutex
	finals  []string
	pending string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// Add folds one provider event in and returns the updated cumulative text.
// It returns an empty string when the event carried nothing.
func (a *transcriptAggregator) Add(event domain.TranscriptEvent) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if text == "" {
		if event.Kind == domain.TranscriptKindFinal {
			a.pending = ""
		}
		return ""
	}

	if event.Kind == domain.TranscriptKindFinal {
		a.finals = append(a.finals, text)
		a.pending = ""
	} else {
		a.pending = text
	}
	return a.textLocked()
}

// Text returns the cumulative transcript so far.
func (a *transcriptAggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.textLocked()
}

func (a *transcriptAggregator) textLocked() string {
	joined := strings.Join(a.finals, " ")
	if a.pending == "" {
		return joined
	}
	if joined == "" {
		return a.pending
	}
	return joined + " " + a.pending
}
