package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"pytest-insight/internal/analysis"
	"pytest-insight/internal/comparison"
	"pytest-insight/internal/models"
	"pytest-insight/internal/query"
)

// sessionSummary is the list-view shape; full sessions with captured output
// are only returned by the single-session endpoint.
type sessionSummary struct {
	SessionID        string    `json:"session_id"`
	SUTName          string    `json:"sut_name"`
	SessionStartTime time.Time `json:"session_start_time"`
	DurationSeconds  float64   `json:"session_duration_seconds"`
	TestCount        int       `json:"test_count"`
	FailureCount     int       `json:"failure_count"`
	HasReruns        bool      `json:"has_reruns"`
}

func summarize(s *models.TestSession) sessionSummary {
	failures := 0
	for _, r := range s.TestResults {
		if r.Outcome.IsFailure() {
			failures++
		}
	}
	return sessionSummary{
		SessionID:        s.SessionID,
		SUTName:          s.SUTName,
		SessionStartTime: s.SessionStartTime,
		DurationSeconds:  s.SessionDuration.Seconds(),
		TestCount:        len(s.TestResults),
		FailureCount:     failures,
		HasReruns:        s.HasReruns(),
	}
}

// testRow is one flattened test result for the /api/tests endpoint.
type testRow struct {
	SessionID       string             `json:"session_id"`
	SUTName         string             `json:"sut_name"`
	NodeID          string             `json:"nodeid"`
	Outcome         models.TestOutcome `json:"outcome"`
	StartTime       time.Time          `json:"start_time"`
	DurationSeconds float64            `json:"duration_seconds"`
	HasWarning      bool               `json:"has_warning"`
}

// queryParams are the filter parameters shared by the read endpoints.
type queryParams struct {
	sut         string
	days        int
	outcome     string
	pattern     string
	minDuration float64
	maxDuration float64
	limit       int
	window      int
}

func parseQueryParams(c echo.Context) (queryParams, error) {
	p := queryParams{
		sut:         c.QueryParam("sut"),
		outcome:     c.QueryParam("outcome"),
		pattern:     c.QueryParam("pattern"),
		maxDuration: -1,
	}

	var err error
	if p.days, err = intParam(c, "days", 0); err != nil {
		return p, err
	}
	if p.limit, err = intParam(c, "limit", 0); err != nil {
		return p, err
	}
	if p.window, err = intParam(c, "window", 0); err != nil {
		return p, err
	}
	if p.minDuration, err = floatParam(c, "min_duration", 0); err != nil {
		return p, err
	}
	if p.maxDuration, err = floatParam(c, "max_duration", -1); err != nil {
		return p, err
	}
	return p, nil
}

func intParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+" parameter: "+raw)
	}
	return v, nil
}

func floatParam(c echo.Context, name string, fallback float64) (float64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+" parameter: "+raw)
	}
	return v, nil
}

// buildQuery translates request parameters into a session query.
func (s *Server) buildQuery(p queryParams, includeTestFilters bool) *query.Query {
	q := s.api.Query()
	if p.sut != "" {
		q = q.ForSUT(p.sut)
	}
	if p.days > 0 {
		q = q.InLastDays(p.days)
	}

	if !includeTestFilters {
		return q
	}

	needsTestScope := p.outcome != "" || p.pattern != "" || p.minDuration > 0 || p.maxDuration >= 0
	if !needsTestScope {
		return q
	}

	tf := q.FilterByTest()
	if p.outcome != "" {
		outcome, err := models.ParseOutcome(p.outcome)
		if err != nil {
			// hand the raw value to the builder so the usage error
			// surfaces from Execute like every other bad parameter
			outcome = models.TestOutcome(p.outcome)
		}
		tf = tf.WithOutcome(outcome)
	}
	if p.pattern != "" {
		tf = tf.WithNodeIDContaining(p.pattern)
	}
	if p.minDuration > 0 || p.maxDuration >= 0 {
		max := p.maxDuration
		if max < 0 {
			max = 24 * 3600 // effectively unbounded
		}
		tf = tf.WithDurationBetween(p.minDuration, max)
	}
	return tf.Apply()
}

func (s *Server) executeQuery(c echo.Context, p queryParams, includeTestFilters bool) ([]*models.TestSession, error) {
	sessions, err := s.buildQuery(p, includeTestFilters).Execute(c.Request().Context())
	if err != nil {
		if errors.Is(err, query.ErrInvalidParameter) {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return nil, err
	}
	return sessions, nil
}

func (s *Server) handleHealth(c echo.Context) error {
	sessions, err := s.api.LoadSessions(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"session_count": len(sessions),
	})
}

func (s *Server) handleListSessions(c echo.Context) error {
	p, err := parseQueryParams(c)
	if err != nil {
		return err
	}
	sessions, err := s.executeQuery(c, p, true)
	if err != nil {
		return err
	}

	summaries := make([]sessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, summarize(session))
	}
	if p.limit > 0 && len(summaries) > p.limit {
		summaries = summaries[:p.limit]
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":    len(summaries),
		"sessions": summaries,
	})
}

func (s *Server) handleGetSession(c echo.Context) error {
	id := c.Param("id")
	sessions, err := s.api.LoadSessions(c.Request().Context())
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if session.SessionID == id {
			return c.JSON(http.StatusOK, session)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "session not found: "+id)
}

type ingestRequest struct {
	Sessions []*models.TestSession `json:"sessions"`
}

func (s *Server) handleIngestSessions(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed session payload: "+err.Error())
	}
	if len(req.Sessions) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "payload contains no sessions")
	}

	for _, session := range req.Sessions {
		if err := session.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	if err := s.api.Storage().SaveMany(c.Request().Context(), req.Sessions); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"saved": len(req.Sessions),
	})
}

func (s *Server) handleListTests(c echo.Context) error {
	p, err := parseQueryParams(c)
	if err != nil {
		return err
	}
	sessions, err := s.executeQuery(c, p, true)
	if err != nil {
		return err
	}

	rows := []testRow{}
	for _, session := range sessions {
		for _, r := range session.TestResults {
			rows = append(rows, testRow{
				SessionID:       session.SessionID,
				SUTName:         session.SUTName,
				NodeID:          r.NodeID,
				Outcome:         r.Outcome,
				StartTime:       r.StartTime,
				DurationSeconds: r.Duration.Seconds(),
				HasWarning:      r.HasWarning,
			})
		}
	}
	if p.limit > 0 && len(rows) > p.limit {
		rows = rows[:p.limit]
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(rows),
		"tests": rows,
	})
}

func (s *Server) handleAnalysisHealth(c echo.Context) error {
	p, err := parseQueryParams(c)
	if err != nil {
		return err
	}
	sessions, err := s.executeQuery(c, p, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.api.Analyzer().HealthScore(sessions))
}

func (s *Server) handleAnalysisFlaky(c echo.Context) error {
	p, err := parseQueryParams(c)
	if err != nil {
		return err
	}
	sessions, err := s.executeQuery(c, p, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.api.Analyzer().Flakiness(sessions))
}

func (s *Server) handleAnalysisTrends(c echo.Context) error {
	p, err := parseQueryParams(c)
	if err != nil {
		return err
	}
	sessions, err := s.executeQuery(c, p, false)
	if err != nil {
		return err
	}

	analyzer := s.api.Analyzer()
	if p.window > 0 {
		analyzer = s.api.Analyzer(analysis.WithTrendWindow(p.window))
	}
	return c.JSON(http.StatusOK, analyzer.DurationTrend(sessions))
}

func (s *Server) handleAnalysisOutliers(c echo.Context) error {
	p, err := parseQueryParams(c)
	if err != nil {
		return err
	}
	sessions, err := s.executeQuery(c, p, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.api.Analyzer().DurationOutliers(sessions))
}

func (s *Server) handleCompare(c echo.Context) error {
	baseSUT := c.QueryParam("base_sut")
	targetSUT := c.QueryParam("target_sut")
	if baseSUT == "" || targetSUT == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "base_sut and target_sut are required")
	}
	days, err := intParam(c, "days", 0)
	if err != nil {
		return err
	}

	comp := s.api.Compare().BetweenSUTs(baseSUT, targetSUT)
	if days > 0 {
		comp = comp.InLastDays(days)
	}

	result, execErr := comp.Execute(c.Request().Context())
	if execErr != nil {
		if errors.Is(execErr, comparison.ErrInvalidComparison) || errors.Is(execErr, query.ErrInvalidParameter) {
			return echo.NewHTTPError(http.StatusBadRequest, execErr.Error())
		}
		return execErr
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleInsightsSummary(c echo.Context) error {
	p, err := parseQueryParams(c)
	if err != nil {
		return err
	}
	sessions, err := s.executeQuery(c, p, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.api.Insights(sessions).SummaryReport())
}
