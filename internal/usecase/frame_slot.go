package usecase

import (
	"context"
	"sync"

	"inclutalk/internal/domain"
)

// frameSlot holds only the newest detector frame. A put overwrites any frame
// the consumer has not taken yet, so a slow consumer never builds a backlog.
type frameSlot struct {
	mu      sync.Mutex
	frame   domain.HandFrame
	full    bool
	dropped uint64
	ready   chan struct{}
}

func newFrameSlot() *frameSlot {
	return &frameSlot{ready: make(chan struct{}, 1)}
}

func (s *frameSlot) put(frame domain.HandFrame) {
	s.mu.Lock()
	if s.full {
		s.dropped++
	}
	s.frame = frame
	s.full = true
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// take blocks until a frame is available or ctx is done.
func (s *frameSlot) take(ctx context.Context) (domain.HandFrame, bool) {
	for {
		s.mu.Lock()
		if s.full {
			frame := s.frame
			s.full = false
			s.frame = domain.HandFrame{}
			s.mu.Unlock()
			return frame, true
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return domain.HandFrame{}, false
		}
	}
}

func (s *frameSlot) droppedFrames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
