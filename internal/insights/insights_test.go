package insights

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pytest-insight/internal/analysis"
	"pytest-insight/internal/models"
)

var insightTime = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newInsights(sessions ...*models.TestSession) *Insights {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(analysis.New(logger), sessions, logger)
}

func session(id string, results ...*models.TestResult) *models.TestSession {
	s := models.NewTestSession(id, "svc", insightTime, 5*time.Minute)
	for _, r := range results {
		s.AddTestResult(r)
	}
	return s
}

func res(nodeid string, outcome models.TestOutcome, duration time.Duration) *models.TestResult {
	return models.NewTestResult(nodeid, outcome, insightTime, duration)
}

func TestOutcomeDistribution(t *testing.T) {
	i := newInsights(session("s1",
		res("test_a.py::a", models.OutcomePassed, time.Second),
		res("test_a.py::b", models.OutcomePassed, time.Second),
		res("test_a.py::c", models.OutcomeFailed, time.Second),
		res("test_a.py::d", models.OutcomeSkipped, 0),
	))

	got := i.OutcomeDistribution()

	assert.Equal(t, analysis.StatusOK, got.Status)
	assert.Equal(t, 4, got.Total)
	require.NotEmpty(t, got.Outcomes)
	assert.Equal(t, models.OutcomePassed, got.Outcomes[0].Outcome)
	assert.Equal(t, 2, got.Outcomes[0].Count)
	assert.Equal(t, 0.5, got.Outcomes[0].Rate)
}

func TestOutcomeDistributionEmpty(t *testing.T) {
	got := newInsights().OutcomeDistribution()
	assert.Equal(t, analysis.StatusNoData, got.Status)
}

func TestUnreliableTestsRankedByFlakyRate(t *testing.T) {
	i := newInsights(
		session("s1",
			res("test_a.py::mildly_flaky", models.OutcomePassed, time.Second),
			res("test_a.py::very_flaky", models.OutcomeFailed, time.Second),
		),
		session("s2",
			res("test_a.py::mildly_flaky", models.OutcomePassed, time.Second),
			res("test_a.py::very_flaky", models.OutcomeFailed, time.Second),
		),
		session("s3",
			res("test_a.py::mildly_flaky", models.OutcomeFailed, time.Second),
			res("test_a.py::very_flaky", models.OutcomePassed, time.Second),
		),
	)

	got := i.UnreliableTests(10)

	require.Len(t, got.Tests, 2)
	assert.Equal(t, "test_a.py::very_flaky", got.Tests[0].NodeID)
	assert.Equal(t, "test_a.py::mildly_flaky", got.Tests[1].NodeID)
}

func TestUnreliableTestsIncludesUnstable(t *testing.T) {
	i := newInsights(
		session("s1", res("test_a.py::dead", models.OutcomeFailed, time.Second)),
		session("s2", res("test_a.py::dead", models.OutcomeFailed, time.Second)),
	)

	got := i.UnreliableTests(10)
	require.Len(t, got.Tests, 1)
	assert.Equal(t, "test_a.py::dead", got.Tests[0].NodeID)
	assert.False(t, got.Tests[0].Flaky)
}

func TestUnreliableTestsLimit(t *testing.T) {
	sessions := []*models.TestSession{
		session("s1",
			res("test_a.py::f1", models.OutcomePassed, time.Second),
			res("test_a.py::f2", models.OutcomePassed, time.Second),
			res("test_a.py::f3", models.OutcomePassed, time.Second),
		),
		session("s2",
			res("test_a.py::f1", models.OutcomeFailed, time.Second),
			res("test_a.py::f2", models.OutcomeFailed, time.Second),
			res("test_a.py::f3", models.OutcomeFailed, time.Second),
		),
	}
	got := newInsights(sessions...).UnreliableTests(2)
	assert.Len(t, got.Tests, 2)
}

func TestSlowestTests(t *testing.T) {
	i := newInsights(session("s1",
		res("test_a.py::fast", models.OutcomePassed, 100*time.Millisecond),
		res("test_a.py::slow", models.OutcomePassed, 10*time.Second),
		res("test_a.py::medium", models.OutcomePassed, time.Second),
	))

	got := i.SlowestTests(2)

	require.Len(t, got.Tests, 2)
	assert.Equal(t, "test_a.py::slow", got.Tests[0].NodeID)
	assert.Equal(t, "test_a.py::medium", got.Tests[1].NodeID)
	assert.Equal(t, 10.0, got.Tests[0].MeanSeconds)
	assert.Equal(t, 10.0, got.Tests[0].P50Seconds)
}

func TestSlowestTestsEmpty(t *testing.T) {
	got := newInsights().SlowestTests(5)
	assert.Equal(t, analysis.StatusNoData, got.Status)
}

func TestErrorPatterns(t *testing.T) {
	timeout1 := res("test_a.py::a", models.OutcomeFailed, time.Second)
	timeout1.LongreprText = "TimeoutError: request timed out\n  at client.py:42"
	timeout2 := res("test_a.py::b", models.OutcomeError, time.Second)
	timeout2.LongreprText = "TimeoutError: request timed out\n  at client.py:99"
	assertion := res("test_a.py::c", models.OutcomeFailed, time.Second)
	assertion.LongreprText = "AssertionError: expected 200 got 503"

	got := newInsights(session("s1", timeout1, timeout2, assertion)).ErrorPatterns(10)

	require.Len(t, got.Patterns, 2)
	assert.Equal(t, "TimeoutError: request timed out", got.Patterns[0].Signature)
	assert.Equal(t, 2, got.Patterns[0].Count)
	assert.Equal(t, []string{"test_a.py::a", "test_a.py::b"}, got.Patterns[0].AffectedTests)
}

func TestErrorPatternsNoFailures(t *testing.T) {
	got := newInsights(session("s1", res("test_a.py::a", models.OutcomePassed, time.Second))).ErrorPatterns(10)
	assert.Equal(t, analysis.StatusNoData, got.Status)
}

func TestTestingSystemsDecode(t *testing.T) {
	s1 := session("s1", res("test_a.py::a", models.OutcomePassed, time.Second))
	s1.TestingSystem = map[string]interface{}{
		"name":           "ci-runner-1",
		"environment":    "staging",
		"platform":       "linux",
		"python_version": "3.12.1",
		"extra_field":    42,
	}
	s2 := session("s2", res("test_a.py::a", models.OutcomePassed, time.Second))
	s2.TestingSystem = s1.TestingSystem

	got := newInsights(s1, s2).TestingSystems()

	require.Len(t, got, 1)
	assert.Equal(t, "ci-runner-1", got[0].Name)
	assert.Equal(t, "staging", got[0].Environment)
	assert.Equal(t, "3.12.1", got[0].PythonVersion)
}

func TestSummaryReport(t *testing.T) {
	i := newInsights(
		session("s1",
			res("test_a.py::a", models.OutcomePassed, time.Second),
			res("test_a.py::b", models.OutcomeFailed, time.Second),
		),
	)

	got := i.SummaryReport()

	assert.Equal(t, analysis.StatusOK, got.Status)
	assert.Equal(t, 1, got.SessionCount)
	assert.Equal(t, 2, got.TestCount)
	assert.Equal(t, []string{"svc"}, got.SUTs)
	require.NotNil(t, got.Health.Score)
}

func TestSummaryReportEmpty(t *testing.T) {
	got := newInsights().SummaryReport()
	assert.Equal(t, analysis.StatusNoData, got.Status)
	assert.Nil(t, got.Health.Score)
}
