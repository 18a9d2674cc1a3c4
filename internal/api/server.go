// Package api exposes the query, analysis, comparison and insights engines
// over HTTP as JSON. Handlers build a fresh query per request against a
// freshly loaded snapshot, so no state is shared between requests.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"pytest-insight/internal/insight"
)

const shutdownTimeout = 10 * time.Second

// Server is the REST front over an insight.API.
type Server struct {
	echo *echo.Echo
	api  *insight.API
	log  logrus.FieldLogger
	addr string
}

func NewServer(addr string, api *insight.API, log logrus.FieldLogger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo: e,
		api:  api,
		log:  log.WithField("component", "api"),
		addr: addr,
	}

	e.Use(middleware.Recover())
	e.Use(s.requestLogger())
	e.HTTPErrorHandler = s.errorHandler

	s.registerRoutes()
	return s
}

// Echo exposes the underlying router; handler tests drive it directly.
func (s *Server) Echo() *echo.Echo { return s.echo }

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	g := s.echo.Group("/api")
	g.GET("/sessions", s.handleListSessions)
	g.GET("/sessions/:id", s.handleGetSession)
	g.POST("/sessions", s.handleIngestSessions)
	g.GET("/tests", s.handleListTests)
	g.GET("/analysis/health", s.handleAnalysisHealth)
	g.GET("/analysis/flaky", s.handleAnalysisFlaky)
	g.GET("/analysis/trends", s.handleAnalysisTrends)
	g.GET("/analysis/outliers", s.handleAnalysisOutliers)
	g.GET("/compare", s.handleCompare)
	g.GET("/insights/summary", s.handleInsightsSummary)
}

// Start serves until ctx is cancelled or the listener fails, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.log.WithField("addr", s.addr).Info("REST server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info("shutting down REST server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("REST server stopped")
	return nil
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.WithFields(logrus.Fields{
				"method": v.Method,
				"uri":    v.URI,
				"status": v.Status,
			}).Debug("request")
			return nil
		},
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := err.Error()

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	}

	if code >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	if err := c.JSON(code, errorResponse{Error: message}); err != nil {
		s.log.WithError(err).Error("failed to write error response")
	}
}
