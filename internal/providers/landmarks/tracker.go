// Package landmarks connects to a hand landmark detector running as a local
// sidecar process and exposes its per-frame results as a hand tracker.
//
// The sidecar owns the webcam. After the websocket upgrade it answers with a
// single status message and then streams frames:
//
//	{"type":"ready"}
//	{"type":"error","code":"permission_denied","message":"..."}
//	{"type":"frame","timestamp":12.5,"hands":[{"handedness":"Right","landmarks":[[x,y,z],...]}]}
package landmarks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"inclutalk/internal/domain"
	"inclutalk/internal/ports"
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	frameBuffer             = 4

	codePermissionDenied = "permission_denied"
)

// Config points at the sidecar websocket endpoint.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
}

// Tracker implements ports.HandTracker against the landmark sidecar.
type Tracker struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewTracker(cfg Config) *Tracker {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &Tracker{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
}

func (t *Tracker) Open(ctx context.Context, cfg ports.CameraConfig) (ports.HandTrackingSession, error) {
	if strings.TrimSpace(t.cfg.URL) == "" {
		return nil, fmt.Errorf("landmark sidecar url is not configured: %w", ports.ErrCapabilityUnavailable)
	}

	streamURL, err := buildStreamURL(t.cfg.URL, cfg)
	if err != nil {
		return nil, err
	}

	conn, resp, err := t.dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to reach landmark sidecar: %v: %w", err, ports.ErrCapabilityUnavailable)
	}

	if err := awaitReady(conn, t.cfg.HandshakeTimeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return newSession(conn), nil
}

type handPayload struct {
	Handedness string       `json:"handedness"`
	Landmarks  [][3]float64 `json:"landmarks"`
}

type message struct {
	Type      string        `json:"type"`
	Code      string        `json:"code,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp float64       `json:"timestamp,omitempty"`
	Hands     []handPayload `json:"hands,omitempty"`
}

func awaitReady(conn *websocket.Conn, timeout time.Duration) error {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var hello message
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("landmark sidecar did not confirm the camera: %v: %w", err, ports.ErrCapabilityUnavailable)
	}

	switch hello.Type {
	case "ready":
		return nil
	case "error":
		detail := strings.TrimSpace(hello.Message)
		if detail == "" {
			detail = hello.Code
		}
		if hello.Code == codePermissionDenied {
			return fmt.Errorf("camera access refused: %s: %w", detail, ports.ErrPermissionDenied)
		}
		return fmt.Errorf("camera unavailable: %s: %w", detail, ports.ErrCapabilityUnavailable)
	default:
		return fmt.Errorf("unexpected sidecar greeting %q: %w", hello.Type, ports.ErrCapabilityUnavailable)
	}
}

type session struct {
	conn   *websocket.Conn
	frames chan domain.HandFrame
	done   chan struct{}

	closeOnce sync.Once
	closing   chan struct{}
}

func newSession(conn *websocket.Conn) *session {
	s := &session{
		conn:    conn,
		frames:  make(chan domain.HandFrame, frameBuffer),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *session) Frames() <-chan domain.HandFrame {
	return s.frames
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *session) readLoop() {
	defer close(s.done)
	defer close(s.frames)

	for {
		var msg message
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "frame":
			s.deliver(toFrame(msg))
		case "error":
			return
		}
	}
}

// deliver never blocks the socket: when the consumer lags, the oldest
// buffered frame is discarded.
func (s *session) deliver(frame domain.HandFrame) {
	for {
		select {
		case <-s.closing:
			return
		case s.frames <- frame:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

func toFrame(msg message) domain.HandFrame {
	frame := domain.HandFrame{Timestamp: secondsToTime(msg.Timestamp)}
	for _, hand := range msg.Hands {
		if len(hand.Landmarks) != domain.LandmarksPerHand {
			continue
		}
		landmarks := make([]domain.Landmark, len(hand.Landmarks))
		for i, point := range hand.Landmarks {
			landmarks[i] = domain.Landmark{X: point[0], Y: point[1], Z: point[2]}
		}
		frame.Hands = append(frame.Hands, domain.Hand{
			Handedness: normalizeHandedness(hand.Handedness),
			Landmarks:  landmarks,
		})
	}
	return frame
}

func normalizeHandedness(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), domain.HandednessLeft) {
		return domain.HandednessLeft
	}
	return domain.HandednessRight
}

func secondsToTime(seconds float64) time.Time {
	if seconds <= 0 {
		return time.Now()
	}
	return time.Unix(0, int64(seconds*float64(time.Second)))
}

func buildStreamURL(raw string, cfg ports.CameraConfig) (string, error) {
	base := strings.TrimSpace(raw)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	streamURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid landmark sidecar url: %w", err)
	}
	if streamURL.Scheme != "ws" && streamURL.Scheme != "wss" {
		return "", errors.New("landmark sidecar url must use ws, wss, http or https")
	}

	query := streamURL.Query()
	if cfg.Device != "" {
		query.Set("device", cfg.Device)
	}
	if cfg.Width > 0 {
		query.Set("width", strconv.Itoa(cfg.Width))
	}
	if cfg.Height > 0 {
		query.Set("height", strconv.Itoa(cfg.Height))
	}
	if cfg.MaxHands > 0 {
		query.Set("max_hands", strconv.Itoa(cfg.MaxHands))
	}
	if cfg.FrameRate > 0 {
		query.Set("fps", strconv.Itoa(cfg.FrameRate))
	}
	streamURL.RawQuery = query.Encode()
	return streamURL.String(), nil
}
