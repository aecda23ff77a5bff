// Package httpserver serves the local operations surface: health, metrics,
// the live conversation status and content-free session statistics.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"inclutalk/internal/domain"
	"inclutalk/internal/ports"
	"inclutalk/internal/stats"
)

const shutdownTimeout = 5 * time.Second

// StatusSource reports the live conversation.
type StatusSource interface {
	Status() domain.ConversationStatus
}

// SessionStore lists persisted sessions.
type SessionStore interface {
	Recent(ctx context.Context, limit int) ([]stats.SessionRecord, error)
	Summary(ctx context.Context) (stats.Summary, error)
}

// LiveSession reports the session still in progress.
type LiveSession interface {
	Current() (stats.SessionRecord, bool)
}

// VocabularySource lists the words the sign classifier knows.
type VocabularySource interface {
	Vocabulary(ctx context.Context) ([]string, error)
}

// Deps are all optional; routes whose source is missing answer 404.
type Deps struct {
	Status     StatusSource
	Sessions   SessionStore
	Live       LiveSession
	Vocabulary VocabularySource
	Metrics    http.Handler
}

type Server struct {
	echo *echo.Echo
	addr string
	deps Deps
	log  *slog.Logger
}

func New(addr string, deps Deps, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		echo: echo.New(),
		addr: addr,
		deps: deps,
		log:  log.With("component", "http"),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	s.register()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ops server listening", "addr", s.addr)
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) register() {
	s.echo.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics))
	}

	api := s.echo.Group("/api")
	api.GET("/status", s.status)
	api.GET("/sessions", s.sessions)
	api.GET("/sessions/summary", s.summary)
	api.GET("/sessions/current", s.currentSession)
	api.GET("/vocabulary", s.vocabulary)
}

func (s *Server) status(c echo.Context) error {
	if s.deps.Status == nil {
		return echo.NewHTTPError(http.StatusNotFound, "conversation is not running")
	}
	return c.JSON(http.StatusOK, s.deps.Status.Status())
}

func (s *Server) sessions(c echo.Context) error {
	if s.deps.Sessions == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session statistics are disabled")
	}
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}
	records, err := s.deps.Sessions.Recent(c.Request().Context(), limit)
	if err != nil {
		s.log.Warn("failed to list sessions", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sessions")
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": records})
}

func (s *Server) summary(c echo.Context) error {
	if s.deps.Sessions == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session statistics are disabled")
	}
	summary, err := s.deps.Sessions.Summary(c.Request().Context())
	if err != nil {
		s.log.Warn("failed to summarize sessions", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to summarize sessions")
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) currentSession(c echo.Context) error {
	if s.deps.Live == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session statistics are disabled")
	}
	record, ok := s.deps.Live.Current()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no session in progress")
	}
	return c.JSON(http.StatusOK, record)
}

func (s *Server) vocabulary(c echo.Context) error {
	if s.deps.Vocabulary == nil {
		return echo.NewHTTPError(http.StatusNotFound, "sign classifier is not configured")
	}
	words, err := s.deps.Vocabulary.Vocabulary(c.Request().Context())
	if err != nil {
		if errors.Is(err, ports.ErrCapabilityUnavailable) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "sign classifier is unavailable")
		}
		s.log.Warn("failed to load vocabulary", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "failed to load vocabulary")
	}
	return c.JSON(http.StatusOK, map[string]any{"words": words, "total": len(words)})
}
