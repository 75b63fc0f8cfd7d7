// Package api serves the status HTTP endpoints of daemon mode: health,
// run history and manual run triggering.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/alexhritac/jellyfin-collection/internal/history"
	"github.com/alexhritac/jellyfin-collection/internal/report"
	"github.com/alexhritac/jellyfin-collection/internal/runner"
	"github.com/alexhritac/jellyfin-collection/internal/scheduler"
)

// RunTrigger is the runner surface the API needs.
type RunTrigger interface {
	Run(ctx context.Context, opts runner.Options) (*report.RunReport, error)
	Running() bool
}

// RunStore is the history surface the API needs.
type RunStore interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
	Get(ctx context.Context, id string) (*history.Entry, error)
	Last(ctx context.Context) (*history.Entry, error)
}

// Server exposes the status API.
type Server struct {
	echo    *echo.Echo
	trigger RunTrigger
	store   RunStore // nil when history persistence is disabled
	sched   *scheduler.Scheduler
	version string
	logger  zerolog.Logger
}

// NewServer creates the status server. store and sched may be nil.
func NewServer(trigger RunTrigger, store RunStore, sched *scheduler.Scheduler, version string, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		trigger: trigger,
		store:   store,
		sched:   sched,
		version: version,
		logger:  logger.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Info()
			if v.Error != nil {
				event = s.logger.Error().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api/v1")
	api.GET("/status", s.getStatus)
	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)
	api.POST("/runs", s.triggerRun)
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	resp := map[string]any{
		"version": s.version,
		"running": s.trigger.Running(),
	}

	if s.store != nil {
		last, err := s.store.Last(c.Request().Context())
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to load last run")
		} else if last != nil {
			last.Report = nil // summary only
			resp["last_run"] = last
		}
	}
	if s.sched != nil {
		resp["jobs"] = s.sched.Jobs()
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) listRuns(c echo.Context) error {
	if s.store == nil {
		return c.JSON(http.StatusOK, []history.Entry{})
	}

	limit := 20
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	entries, err := s.store.List(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) getRun(c echo.Context) error {
	if s.store == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "history disabled"})
	}

	entry, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, entry)
}

func (s *Server) triggerRun(c echo.Context) error {
	var body struct {
		Library        string `json:"library"`
		Collection     string `json:"collection"`
		DryRun         bool   `json:"dry_run"`
		IgnoreSchedule bool   `json:"ignore_schedule"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if s.trigger.Running() {
		return c.JSON(http.StatusConflict, map[string]string{"error": "a run is already in progress"})
	}

	opts := runner.Options{
		Trigger:        "manual",
		Library:        body.Library,
		Collection:     body.Collection,
		DryRun:         body.DryRun,
		IgnoreSchedule: body.IgnoreSchedule,
	}

	// The run outlives the request.
	go func() {
		if _, err := s.trigger.Run(context.Background(), opts); err != nil {
			if !errors.Is(err, runner.ErrRunInProgress) {
				s.logger.Error().Err(err).Msg("triggered run failed")
			}
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}
