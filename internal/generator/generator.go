// Package generator produces realistic practice data: sessions spread over
// a time window, across SUT variations, with categorized tests, rerun groups
// for flaky tests and paired base/target session ids so comparisons work out
// of the box. Generation is deterministic for a given seed.
package generator

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"pytest-insight/internal/models"
)

// Options controls the shape of the generated data set.
type Options struct {
	Days           int
	SessionsPerDay int
	SUTFilter      string
	Categories     []string
	PassRate       float64
	FlakyRate      float64
	WarningRate    float64
	Seed           int64
	Now            time.Time
}

// DefaultOptions mirrors the practice-data defaults: a week of history with
// a mostly green suite.
func DefaultOptions() Options {
	return Options{
		Days:           7,
		SessionsPerDay: 4,
		PassRate:       0.85,
		FlakyRate:      0.08,
		WarningRate:    0.10,
		Seed:           time.Now().UnixNano(),
		Now:            time.Now().UTC(),
	}
}

var sutVariations = []string{
	"api-service",
	"auth-service",
	"data-pipeline",
	"web-frontend",
}

var environments = []map[string]string{
	{"env": "dev", "ci": "false"},
	{"env": "staging", "ci": "true"},
	{"env": "prod", "ci": "true"},
}

// nodeids per category; flaky ones get rerun groups.
var testCategories = map[string][]string{
	"api": {
		"test_api/test_endpoints.py::test_get_users",
		"test_api/test_endpoints.py::test_create_user",
		"test_api/test_auth.py::test_token_refresh",
		"test_api/test_rate_limit.py::test_throttling",
	},
	"integration": {
		"test_integration/test_database.py::test_migrations",
		"test_integration/test_database.py::test_rollback",
		"test_integration/test_queue.py::test_message_delivery",
	},
	"performance": {
		"test_performance/test_latency.py::test_p99_under_load",
		"test_performance/test_scaling.py::test_auto_scaling",
	},
	"flaky": {
		"test_flaky/test_network.py::test_retry_on_timeout",
		"test_flaky/test_race.py::test_concurrent_update",
	},
	"data": {
		"test_data/test_validation.py::test_schema_check",
		"test_data/test_transform.py::test_normalization",
	},
}

var errorTexts = []string{
	"AssertionError: expected status 200, got 503",
	"TimeoutError: operation timed out after 30s",
	"ConnectionError: connection refused by upstream",
	"ValueError: unexpected payload shape",
}

// Generator builds sessions from a seeded random source.
type Generator struct {
	opts Options
	rng  *rand.Rand
	log  logrus.FieldLogger
}

func New(opts Options, log logrus.FieldLogger) (*Generator, error) {
	if opts.Days <= 0 {
		return nil, fmt.Errorf("generator: days must be positive, got %d", opts.Days)
	}
	if opts.SessionsPerDay <= 0 {
		return nil, fmt.Errorf("generator: sessions per day must be positive, got %d", opts.SessionsPerDay)
	}
	if opts.PassRate < 0 || opts.PassRate > 1 {
		return nil, fmt.Errorf("generator: pass rate must be within [0,1], got %v", opts.PassRate)
	}
	for _, c := range opts.Categories {
		if _, ok := testCategories[c]; !ok {
			return nil, fmt.Errorf("generator: unknown test category %q", c)
		}
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	return &Generator{
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
		log:  log.WithField("component", "generator"),
	}, nil
}

// Generate produces the full practice data set: for every day and slot, a
// base/target session pair per selected SUT.
func (g *Generator) Generate() []*models.TestSession {
	suts := g.selectedSUTs()
	categories := g.selectedCategories()

	var sessions []*models.TestSession
	for day := g.opts.Days - 1; day >= 0; day-- {
		for slot := 0; slot < g.opts.SessionsPerDay; slot++ {
			start := g.opts.Now.AddDate(0, 0, -day).
				Add(-time.Duration(g.rng.Intn(8)) * time.Hour).
				Add(-time.Duration(g.rng.Intn(60)) * time.Minute)
			for _, sut := range suts {
				sessions = append(sessions,
					g.buildSession(sut, start, categories, true),
					g.buildSession(sut, start.Add(30*time.Minute), categories, false),
				)
			}
		}
	}

	g.log.WithFields(logrus.Fields{
		"sessions": len(sessions),
		"days":     g.opts.Days,
		"suts":     len(suts),
	}).Info("generated practice data")
	return sessions
}

func (g *Generator) selectedSUTs() []string {
	if g.opts.SUTFilter == "" {
		return sutVariations
	}
	var out []string
	for _, sut := range sutVariations {
		if strings.Contains(sut, g.opts.SUTFilter) {
			out = append(out, sut)
		}
	}
	if len(out) == 0 {
		out = []string{g.opts.SUTFilter}
	}
	return out
}

func (g *Generator) selectedCategories() []string {
	if len(g.opts.Categories) > 0 {
		return g.opts.Categories
	}
	return []string{"api", "integration", "performance", "flaky", "data"}
}

func (g *Generator) buildSession(sut string, start time.Time, categories []string, isBase bool) *models.TestSession {
	prefix := "target"
	if isBase {
		prefix = "base"
	}
	sessionID := fmt.Sprintf("%s-%s-%s-%08x",
		prefix, sut, start.Format("20060102-150405"), g.rng.Uint32())

	session := models.NewTestSession(sessionID, sut, start, 0)
	session.SessionTags = environments[g.rng.Intn(len(environments))]
	session.TestingSystem = map[string]interface{}{
		"name":           fmt.Sprintf("ci-runner-%d", g.rng.Intn(8)+1),
		"environment":    session.SessionTags["env"],
		"platform":       "linux",
		"python_version": "3.12.1",
		"pytest_version": "8.3.2",
	}

	cursor := start
	for _, category := range categories {
		for _, nodeid := range testCategories[category] {
			results, groups := g.buildTest(nodeid, category, cursor)
			for _, r := range results {
				session.AddTestResult(r)
				cursor = r.StopTime
			}
			for _, grp := range groups {
				session.AddRerunGroup(grp)
			}
		}
	}

	session.SessionStopTime = cursor
	session.SessionDuration = cursor.Sub(start)
	return session
}

// buildTest rolls one test's outcome. Flaky-category tests can produce a
// rerun chain: one or two rerun attempts followed by a final outcome.
func (g *Generator) buildTest(nodeid, category string, start time.Time) ([]*models.TestResult, []*models.RerunTestGroup) {
	duration := g.testDuration(category)

	if category == "flaky" && g.rng.Float64() < g.opts.FlakyRate*4 {
		return g.buildRerunChain(nodeid, start, duration)
	}

	outcome := models.OutcomePassed
	if g.rng.Float64() > g.opts.PassRate {
		outcome = models.OutcomeFailed
		if g.rng.Float64() < 0.2 {
			outcome = models.OutcomeError
		}
	}

	r := models.NewTestResult(nodeid, outcome, start, duration)
	if outcome.IsFailure() {
		r.LongreprText = errorTexts[g.rng.Intn(len(errorTexts))]
	}
	if g.rng.Float64() < g.opts.WarningRate {
		r.HasWarning = true
		r.Caplog = "WARNING  deprecation: legacy fixture API in use"
	}
	return []*models.TestResult{r}, nil
}

func (g *Generator) buildRerunChain(nodeid string, start time.Time, duration time.Duration) ([]*models.TestResult, []*models.RerunTestGroup) {
	attempts := 1 + g.rng.Intn(2)
	group := models.NewRerunTestGroup(nodeid)

	var results []*models.TestResult
	cursor := start
	for i := 0; i < attempts; i++ {
		attempt := models.NewTestResult(nodeid, models.OutcomeRerun, cursor, duration)
		attempt.LongreprText = errorTexts[g.rng.Intn(len(errorTexts))]
		results = append(results, attempt)
		group.AddTest(attempt)
		cursor = attempt.StopTime.Add(time.Second)
	}

	finalOutcome := models.OutcomePassed
	if g.rng.Float64() > 0.7 {
		finalOutcome = models.OutcomeFailed
	}
	final := models.NewTestResult(nodeid, finalOutcome, cursor, duration)
	if finalOutcome.IsFailure() {
		final.LongreprText = errorTexts[g.rng.Intn(len(errorTexts))]
	}
	results = append(results, final)
	group.AddTest(final)

	return results, []*models.RerunTestGroup{group}
}

func (g *Generator) testDuration(category string) time.Duration {
	base := 200 + g.rng.Intn(800)
	if category == "performance" {
		base = 2000 + g.rng.Intn(8000)
	}
	return time.Duration(base) * time.Millisecond
}
