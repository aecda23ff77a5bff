// Package camera lets the kiosk front end act as the hand tracker. The web
// view owns the webcam and the landmark model; it is asked to start or stop
// the camera, answers with a status report, and pushes per-frame results.
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"inclutalk/internal/domain"
	"inclutalk/internal/ports"
)

const defaultAckTimeout = 10 * time.Second

// Status is a camera report from the front end.
type Status string

const (
	StatusReady       Status = "ready"
	StatusDenied      Status = "denied"
	StatusUnavailable Status = "unavailable"
	StatusLost        Status = "lost"

	// statusSuperseded is never sent by the front end.
	statusSuperseded Status = "superseded"
)

// ErrSuperseded is returned by an Open whose pending request was replaced
// by a newer one.
var ErrSuperseded = errors.New("camera request superseded")

// Requester asks the front end to start or stop the camera.
type Requester interface {
	RequestCamera(open bool, cfg ports.CameraConfig)
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(open bool, cfg ports.CameraConfig)

func (f RequesterFunc) RequestCamera(open bool, cfg ports.CameraConfig) { f(open, cfg) }

type report struct {
	status Status
	detail string
}

// Bridge implements ports.HandTracker on top of front-end reports.
type Bridge struct {
	timeout time.Duration

	mu        sync.Mutex
	requester Requester
	pending   chan report
	current   *session
}

func NewBridge(timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = defaultAckTimeout
	}
	return &Bridge{timeout: timeout}
}

// SetRequester wires the front end once it is available.
func (b *Bridge) SetRequester(requester Requester) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requester = requester
}

func (b *Bridge) Open(ctx context.Context, cfg ports.CameraConfig) (ports.HandTrackingSession, error) {
	b.mu.Lock()
	if b.requester == nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("no camera front end attached: %w", ports.ErrCapabilityUnavailable)
	}
	if b.pending != nil {
		b.pending <- report{status: statusSuperseded}
	}
	ack := make(chan report, 1)
	b.pending = ack
	requester := b.requester
	b.mu.Unlock()

	requester.RequestCamera(true, cfg)

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	var got report
	select {
	case got = <-ack:
	case <-ctx.Done():
		b.abandon(ack, requester, cfg)
		return nil, ctx.Err()
	case <-timer.C:
		b.abandon(ack, requester, cfg)
		return nil, fmt.Errorf("camera did not respond within %s: %w", b.timeout, ports.ErrCapabilityUnavailable)
	}

	switch got.status {
	case statusSuperseded:
		return nil, ErrSuperseded
	case StatusReady:
	case StatusDenied:
		return nil, fmt.Errorf("camera access refused: %s: %w", got.detail, ports.ErrPermissionDenied)
	default:
		return nil, fmt.Errorf("camera unavailable: %s: %w", got.detail, ports.ErrCapabilityUnavailable)
	}

	s := newSession(b, requester, cfg)
	b.mu.Lock()
	previous := b.current
	b.current = s
	b.mu.Unlock()
	if previous != nil {
		previous.end()
	}
	return s, nil
}

// abandon drops a pending request. A late ready report would otherwise
// leave the webcam running with nobody listening. A request that was
// already superseded leaves the camera to its successor.
func (b *Bridge) abandon(ack chan report, requester Requester, cfg ports.CameraConfig) {
	b.mu.Lock()
	owned := b.pending == ack
	if owned {
		b.pending = nil
	}
	b.mu.Unlock()

	if !owned {
		select {
		case got := <-ack:
			if got.status == statusSuperseded {
				return
			}
		default:
		}
	}
	requester.RequestCamera(false, cfg)
}

// Report delivers a camera status from the front end. It returns false when
// nothing was waiting for it.
func (b *Bridge) Report(status Status, detail string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch status {
	case StatusReady, StatusDenied, StatusUnavailable:
		if b.pending == nil {
			return false
		}
		b.pending <- report{status: status, detail: detail}
		b.pending = nil
		return true
	case StatusLost:
		if b.current == nil {
			return false
		}
		b.current.end()
		b.current = nil
		return true
	default:
		return false
	}
}

// Push forwards one detector result to the open session.
func (b *Bridge) Push(frame domain.HandFrame) bool {
	b.mu.Lock()
	s := b.current
	b.mu.Unlock()
	if s == nil {
		return false
	}
	return s.offer(frame)
}

// Active reports whether a session is open.
func (b *Bridge) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil
}

func (b *Bridge) detach(s *session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != s {
		return false
	}
	b.current = nil
	return true
}

type session struct {
	bridge    *Bridge
	requester Requester
	cfg       ports.CameraConfig

	mu     sync.Mutex
	frames chan domain.HandFrame
	ended  bool
}

func newSession(bridge *Bridge, requester Requester, cfg ports.CameraConfig) *session {
	return &session{
		bridge:    bridge,
		requester: requester,
		cfg:       cfg,
		frames:    make(chan domain.HandFrame, 1),
	}
}

func (s *session) Frames() <-chan domain.HandFrame {
	return s.frames
}

func (s *session) Close() error {
	if s.bridge.detach(s) {
		s.requester.RequestCamera(false, s.cfg)
	}
	s.end()
	return nil
}

// offer replaces any frame the consumer has not taken yet.
func (s *session) offer(frame domain.HandFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	select {
	case s.frames <- frame:
		return true
	default:
	}
	select {
	case <-s.frames:
	default:
	}
	select {
	case s.frames <- frame:
	default:
	}
	return true
}

func (s *session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	close(s.frames)
}
