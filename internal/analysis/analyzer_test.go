package analysis

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pytest-insight/internal/models"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestAnalyzer(opts ...Option) *Analyzer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(logger, opts...)
}

func sessionWith(id string, results ...*models.TestResult) *models.TestSession {
	s := models.NewTestSession(id, "svc", baseTime, 5*time.Minute)
	for _, r := range results {
		s.AddTestResult(r)
	}
	return s
}

func resultAt(nodeid string, outcome models.TestOutcome, start time.Time, duration time.Duration) *models.TestResult {
	return models.NewTestResult(nodeid, outcome, start, duration)
}

func TestFlakinessPassFailIsFlaky(t *testing.T) {
	report := newTestAnalyzer().Flakiness([]*models.TestSession{
		sessionWith("s1", resultAt("test_a.py::test_x", models.OutcomePassed, baseTime, time.Second)),
		sessionWith("s2", resultAt("test_a.py::test_x", models.OutcomeFailed, baseTime.Add(time.Hour), time.Second)),
	})

	assert.Equal(t, StatusOK, report.Status)
	require.Len(t, report.Tests, 1)
	stab := report.Tests[0]
	assert.True(t, stab.Flaky)
	assert.Equal(t, 1, stab.PassCount)
	assert.Equal(t, 1, stab.FailCount)
	assert.Equal(t, 0.5, stab.FlakyRate)
	assert.Equal(t, []string{"test_a.py::test_x"}, report.FlakyTests)
}

func TestFlakinessAllPassingIsNotFlaky(t *testing.T) {
	report := newTestAnalyzer().Flakiness([]*models.TestSession{
		sessionWith("s1", resultAt("test_a.py::test_x", models.OutcomePassed, baseTime, time.Second)),
		sessionWith("s2", resultAt("test_a.py::test_x", models.OutcomePassed, baseTime.Add(time.Hour), time.Second)),
	})

	require.Len(t, report.Tests, 1)
	assert.False(t, report.Tests[0].Flaky)
	assert.Empty(t, report.FlakyTests)
}

func TestFlakinessSingleRunIsNeverFlaky(t *testing.T) {
	// a lone failure is a failure, not flakiness
	report := newTestAnalyzer().Flakiness([]*models.TestSession{
		sessionWith("s1", resultAt("test_a.py::test_x", models.OutcomeFailed, baseTime, time.Second)),
	})

	require.Len(t, report.Tests, 1)
	assert.False(t, report.Tests[0].Flaky)
}

func TestFlakinessSkipsAreInformational(t *testing.T) {
	report := newTestAnalyzer().Flakiness([]*models.TestSession{
		sessionWith("s1",
			resultAt("test_a.py::test_x", models.OutcomePassed, baseTime, time.Second),
			resultAt("test_a.py::test_x", models.OutcomeSkipped, baseTime.Add(time.Minute), 0),
			resultAt("test_a.py::test_x", models.OutcomeXFailed, baseTime.Add(2*time.Minute), 0),
		),
	})

	require.Len(t, report.Tests, 1)
	stab := report.Tests[0]
	assert.Equal(t, 1, stab.PassCount)
	assert.Equal(t, 0, stab.FailCount)
	assert.Equal(t, 2, stab.Informational)
	assert.False(t, stab.Flaky)
}

func TestFlakinessUnstableTests(t *testing.T) {
	report := newTestAnalyzer().Flakiness([]*models.TestSession{
		sessionWith("s1", resultAt("test_a.py::test_dead", models.OutcomeFailed, baseTime, time.Second)),
		sessionWith("s2", resultAt("test_a.py::test_dead", models.OutcomeError, baseTime.Add(time.Hour), time.Second)),
	})

	assert.Equal(t, []string{"test_a.py::test_dead"}, report.UnstableTests)
	assert.Empty(t, report.FlakyTests)
}

func TestFlakinessEmptyInput(t *testing.T) {
	report := newTestAnalyzer().Flakiness(nil)
	assert.Equal(t, StatusNoData, report.Status)
	assert.Empty(t, report.Tests)
}

func TestDurationTrendIncreasing(t *testing.T) {
	var sessions []*models.TestSession
	// durations grow day over day well past the 5% threshold
	for day := 0; day < 10; day++ {
		start := baseTime.AddDate(0, 0, day)
		dur := time.Duration(day+1) * time.Second
		sessions = append(sessions, sessionWith("s",
			resultAt("test_a.py::test_x", models.OutcomePassed, start, dur)))
	}

	report := newTestAnalyzer(WithTrendWindow(3)).DurationTrend(sessions)

	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, TrendIncreasing, report.Direction)
	assert.Equal(t, 3, report.WindowSize)
	assert.Len(t, report.Daily, 10)
	assert.Greater(t, report.ChangeRate, 0.05)
}

func TestDurationTrendStable(t *testing.T) {
	var sessions []*models.TestSession
	for day := 0; day < 5; day++ {
		sessions = append(sessions, sessionWith("s",
			resultAt("test_a.py::test_x", models.OutcomePassed, baseTime.AddDate(0, 0, day), time.Second)))
	}

	report := newTestAnalyzer().DurationTrend(sessions)
	assert.Equal(t, TrendStable, report.Direction)
}

func TestDurationTrendInsufficientData(t *testing.T) {
	report := newTestAnalyzer().DurationTrend([]*models.TestSession{
		sessionWith("s1", resultAt("test_a.py::test_x", models.OutcomePassed, baseTime, time.Second)),
	})
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, TrendInsufficientData, report.Direction)

	empty := newTestAnalyzer().DurationTrend(nil)
	assert.Equal(t, StatusNoData, empty.Status)
	assert.Equal(t, TrendInsufficientData, empty.Direction)
}

func TestDetectOutliersFlagsSpike(t *testing.T) {
	labels := []string{"a", "b", "c", "d", "e", "f"}
	report := newTestAnalyzer().DetectOutliers(labels, []float64{1, 1, 1, 1, 1, 100})

	require.Len(t, report.Outliers, 1)
	assert.Equal(t, "f", report.Outliers[0].Label)
	assert.Equal(t, 100.0, report.Outliers[0].Value)
}

func TestDetectOutliersLinearSeriesHasNone(t *testing.T) {
	report := newTestAnalyzer().DetectOutliers(nil, []float64{1, 2, 3, 4, 5})
	assert.Empty(t, report.Outliers)
	assert.Equal(t, StatusOK, report.Status)
}

func TestDetectOutliersSmallAndEmptySeries(t *testing.T) {
	assert.Equal(t, StatusNoData, newTestAnalyzer().DetectOutliers(nil, nil).Status)

	report := newTestAnalyzer().DetectOutliers(nil, []float64{1, 500, 2})
	assert.Equal(t, StatusOK, report.Status)
	assert.Empty(t, report.Outliers)
}

func TestDurationOutliers(t *testing.T) {
	session := sessionWith("s1",
		resultAt("test_a.py::test_1", models.OutcomePassed, baseTime, time.Second),
		resultAt("test_a.py::test_2", models.OutcomePassed, baseTime, time.Second),
		resultAt("test_a.py::test_3", models.OutcomePassed, baseTime, time.Second),
		resultAt("test_a.py::test_4", models.OutcomePassed, baseTime, time.Second),
		resultAt("test_a.py::test_slow", models.OutcomePassed, baseTime, 2*time.Minute),
	)

	report := newTestAnalyzer().DurationOutliers([]*models.TestSession{session})
	require.Len(t, report.Outliers, 1)
	assert.Equal(t, "test_a.py::test_slow", report.Outliers[0].Label)
}

func TestHealthScoreEmptyInputIsNoData(t *testing.T) {
	report := newTestAnalyzer().HealthScore(nil)
	assert.Equal(t, StatusNoData, report.Status)
	assert.Nil(t, report.Score)
}

func TestHealthScorePerfectSuite(t *testing.T) {
	report := newTestAnalyzer().HealthScore([]*models.TestSession{
		sessionWith("s1",
			resultAt("test_a.py::test_1", models.OutcomePassed, baseTime, time.Second),
			resultAt("test_a.py::test_2", models.OutcomePassed, baseTime, time.Second),
		),
	})

	require.NotNil(t, report.Score)
	assert.Equal(t, 100.0, *report.Score)
	assert.Equal(t, 1.0, report.PassRate)
	assert.Equal(t, 0.0, report.FlakyRate)
}

func TestHealthScoreMonotonicInPassRate(t *testing.T) {
	worse := newTestAnalyzer().HealthScore([]*models.TestSession{
		sessionWith("s1",
			resultAt("test_a.py::test_1", models.OutcomePassed, baseTime, time.Second),
			resultAt("test_a.py::test_2", models.OutcomeFailed, baseTime, time.Second),
			resultAt("test_a.py::test_3", models.OutcomeFailed, baseTime, time.Second),
		),
	})
	better := newTestAnalyzer().HealthScore([]*models.TestSession{
		sessionWith("s1",
			resultAt("test_a.py::test_1", models.OutcomePassed, baseTime, time.Second),
			resultAt("test_a.py::test_2", models.OutcomePassed, baseTime, time.Second),
			resultAt("test_a.py::test_3", models.OutcomeFailed, baseTime, time.Second),
		),
	})

	require.NotNil(t, worse.Score)
	require.NotNil(t, better.Score)
	assert.Greater(t, *better.Score, *worse.Score)
}

func TestHealthScoreFlakinessLowersScore(t *testing.T) {
	steady := newTestAnalyzer().HealthScore([]*models.TestSession{
		sessionWith("s1",
			resultAt("test_a.py::test_1", models.OutcomePassed, baseTime, time.Second),
			resultAt("test_a.py::test_2", models.OutcomeFailed, baseTime, time.Second),
		),
	})
	flaky := newTestAnalyzer().HealthScore([]*models.TestSession{
		sessionWith("s1",
			resultAt("test_a.py::test_1", models.OutcomePassed, baseTime, time.Second),
			resultAt("test_a.py::test_1", models.OutcomeFailed, baseTime.Add(time.Minute), time.Second),
		),
	})

	require.NotNil(t, steady.Score)
	require.NotNil(t, flaky.Score)
	// same pass rate, but the flaky suite scores lower
	assert.Equal(t, steady.PassRate, flaky.PassRate)
	assert.Less(t, *flaky.Score, *steady.Score)
}

func TestHealthScoreDeterministic(t *testing.T) {
	sessions := []*models.TestSession{
		sessionWith("s1",
			resultAt("test_a.py::test_1", models.OutcomePassed, baseTime, time.Second),
			resultAt("test_a.py::test_2", models.OutcomeFailed, baseTime, 2*time.Second),
		),
	}

	first := newTestAnalyzer().HealthScore(sessions)
	second := newTestAnalyzer().HealthScore(sessions)
	assert.Equal(t, first, second)
}

func TestQuantile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 2.0, quantile(values, 0.25))
	assert.Equal(t, 3.0, quantile(values, 0.5))
	assert.Equal(t, 4.0, quantile(values, 0.75))
	assert.Equal(t, 1.0, quantile(values, 0))
	assert.Equal(t, 5.0, quantile(values, 1))
}

func TestRollingMean(t *testing.T) {
	got := rollingMean([]float64{2, 4, 6, 8}, 2)
	assert.Equal(t, []float64{2, 3, 5, 7}, got)
}
