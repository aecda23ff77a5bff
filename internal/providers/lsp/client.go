// Package lsp is the HTTP client for the sign language recognition service.
package lsp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"inclutalk/internal/domain"
	"inclutalk/internal/ports"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultThreshold = 0.30
	predictPath      = "/lsp/predict"
	vocabularyPath   = "/lsp/vocabulary"
)

// Config points at the recognition service.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Threshold is applied when the service omits its own confidence verdict.
	Threshold float64
}

// Client implements ports.SignClassifier.
type Client struct {
	cfg  Config
	http *resty.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{cfg: cfg, http: httpClient}
}

type keypoint struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Visibility *float64 `json:"visibility,omitempty"`
}

type framePayload struct {
	Timestamp          float64    `json:"timestamp"`
	LeftHandLandmarks  []keypoint `json:"left_hand_landmarks,omitempty"`
	RightHandLandmarks []keypoint `json:"right_hand_landmarks,omitempty"`
}

type predictRequest struct {
	Frames []framePayload `json:"frames"`
}

type alternative struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type predictResponse struct {
	Label        string        `json:"label"`
	Confidence   float64       `json:"confidence"`
	IsConfident  *bool         `json:"is_confident"`
	Threshold    float64       `json:"threshold"`
	Alternatives []alternative `json:"alternatives"`
}

type vocabularyResponse struct {
	Words      []string `json:"words"`
	TotalCount int      `json:"total_count"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Classify sends one landmark snapshot and returns the service's best guess.
func (c *Client) Classify(ctx context.Context, snapshot domain.HandFrame) (domain.Classification, error) {
	if c.cfg.BaseURL == "" {
		return domain.Classification{}, fmt.Errorf("sign classifier url is not configured: %w", ports.ErrCapabilityUnavailable)
	}
	if !snapshot.HasHands() {
		return domain.Classification{}, errors.New("snapshot has no hand landmarks")
	}

	var (
		result  predictResponse
		failure errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(predictRequest{Frames: []framePayload{toFramePayload(snapshot)}}).
		SetResult(&result).
		SetError(&failure).
		Post(predictPath)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("sign classifier request failed: %w", err)
	}
	if resp.IsError() {
		return domain.Classification{}, statusError(resp.StatusCode(), resp.Status(), failure.Detail)
	}

	label := strings.TrimSpace(result.Label)
	if label == "" {
		return domain.Classification{}, errors.New("sign classifier returned an empty label")
	}

	confident := result.Confidence >= c.threshold(result.Threshold)
	if result.IsConfident != nil {
		confident = *result.IsConfident
	}

	classification := domain.Classification{
		Label:      label,
		Confidence: toPercent(result.Confidence),
		Confident:  confident,
	}
	for _, alt := range result.Alternatives {
		if strings.TrimSpace(alt.Label) == "" {
			continue
		}
		classification.Alternatives = append(classification.Alternatives, domain.Alternative{
			Label:      strings.TrimSpace(alt.Label),
			Confidence: toPercent(alt.Confidence),
		})
	}
	return classification, nil
}

// Vocabulary lists the words the service can recognize.
func (c *Client) Vocabulary(ctx context.Context) ([]string, error) {
	if c.cfg.BaseURL == "" {
		return nil, fmt.Errorf("sign classifier url is not configured: %w", ports.ErrCapabilityUnavailable)
	}

	var (
		result  vocabularyResponse
		failure errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&failure).
		Get(vocabularyPath)
	if err != nil {
		return nil, fmt.Errorf("vocabulary request failed: %w", err)
	}
	if resp.IsError() {
		return nil, statusError(resp.StatusCode(), resp.Status(), failure.Detail)
	}
	return result.Words, nil
}

func (c *Client) threshold(reported float64) float64 {
	if reported > 0 {
		return reported
	}
	return c.cfg.Threshold
}

func statusError(code int, status, detail string) error {
	message := fmt.Sprintf("sign classifier returned %s", status)
	if detail = strings.TrimSpace(detail); detail != "" {
		message += ": " + detail
	}
	if code == http.StatusServiceUnavailable || code == http.StatusNotFound {
		return fmt.Errorf("%s: %w", message, ports.ErrCapabilityUnavailable)
	}
	return errors.New(message)
}

func toFramePayload(frame domain.HandFrame) framePayload {
	payload := framePayload{Timestamp: float64(frame.Timestamp.UnixNano()) / float64(time.Second)}
	if frame.Timestamp.IsZero() {
		payload.Timestamp = 0
	}
	for _, hand := range frame.Hands {
		points := toKeypoints(hand.Landmarks)
		if hand.Handedness == domain.HandednessLeft {
			payload.LeftHandLandmarks = points
		} else {
			payload.RightHandLandmarks = points
		}
	}
	return payload
}

// toKeypoints clamps x and y into the normalized range the service validates.
func toKeypoints(landmarks []domain.Landmark) []keypoint {
	points := make([]keypoint, len(landmarks))
	for i, lm := range landmarks {
		points[i] = keypoint{X: clamp01(lm.X), Y: clamp01(lm.Y), Z: lm.Z}
	}
	return points
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func toPercent(confidence float64) float64 {
	return clamp01(confidence) * 100
}
