// Package analysis computes derived statistics over filtered session sets:
// flakiness classification, duration trends, IQR outlier detection and a
// composite health score. Every entry point is a pure function of its input
// sessions and returns a plain struct ready for JSON serialization; empty
// input yields a distinguished no-data result, never an error.
package analysis

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"pytest-insight/internal/models"
)

// Analysis result status values.
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
)

// Trend directions.
const (
	TrendIncreasing       = "increasing"
	TrendDecreasing       = "decreasing"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

const (
	// DefaultTrendWindow is the rolling-mean window in days.
	DefaultTrendWindow = 7

	// trendThreshold is the relative change between the first and last
	// rolling values beyond which a trend counts as a direction.
	trendThreshold = 0.05

	iqrMultiplier = 1.5

	// Health score weights. Pass rate dominates; flakiness erodes the rest.
	healthPassWeight  = 0.6
	healthFlakyWeight = 0.4

	healthTrendPenalty = 10.0
	healthTrendBonus   = 5.0
)

// Analyzer is constructed explicitly with its collaborators; it holds no
// global state and is safe to share across goroutines.
type Analyzer struct {
	log         logrus.FieldLogger
	trendWindow int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTrendWindow overrides the rolling window used by DurationTrend.
func WithTrendWindow(days int) Option {
	return func(a *Analyzer) {
		if days > 0 {
			a.trendWindow = days
		}
	}
}

func New(log logrus.FieldLogger, opts ...Option) *Analyzer {
	a := &Analyzer{
		log:         log.WithField("component", "analysis"),
		trendWindow: DefaultTrendWindow,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TestStability is the per-nodeid flakiness tally.
type TestStability struct {
	NodeID        string  `json:"nodeid"`
	PassCount     int     `json:"pass_count"`
	FailCount     int     `json:"fail_count"`
	Informational int     `json:"informational_count"`
	TotalRuns     int     `json:"total_runs"`
	Flaky         bool    `json:"flaky"`
	FlakyRate     float64 `json:"flaky_rate"`
}

// FlakinessReport classifies every nodeid observed across the input
// sessions. A nodeid is flaky when it both passed and failed at least once
// over more than one run; it is unstable when every counted run failed.
type FlakinessReport struct {
	Status        string          `json:"status"`
	Tests         []TestStability `json:"tests"`
	FlakyTests    []string        `json:"flaky_tests"`
	UnstableTests []string        `json:"unstable_tests"`
	TotalTests    int             `json:"total_tests"`
}

func (a *Analyzer) Flakiness(sessions []*models.TestSession) FlakinessReport {
	tallies := map[string]*TestStability{}
	var order []string

	for _, session := range sessions {
		for _, r := range session.TestResults {
			t, ok := tallies[r.NodeID]
			if !ok {
				t = &TestStability{NodeID: r.NodeID}
				tallies[r.NodeID] = t
				order = append(order, r.NodeID)
			}
			t.TotalRuns++
			switch {
			case r.Outcome == models.OutcomePassed:
				t.PassCount++
			case r.Outcome.IsFailure():
				t.FailCount++
			default:
				t.Informational++
			}
		}
	}

	if len(tallies) == 0 {
		return FlakinessReport{Status: StatusNoData, Tests: []TestStability{}, FlakyTests: []string{}, UnstableTests: []string{}}
	}

	sort.Strings(order)
	report := FlakinessReport{
		Status:        StatusOK,
		Tests:         make([]TestStability, 0, len(order)),
		FlakyTests:    []string{},
		UnstableTests: []string{},
		TotalTests:    len(order),
	}
	for _, nodeid := range order {
		t := tallies[nodeid]
		counted := t.PassCount + t.FailCount
		if counted > 0 {
			t.FlakyRate = float64(t.FailCount) / float64(counted)
		}
		t.Flaky = t.PassCount > 0 && t.FailCount > 0 && t.TotalRuns > 1
		if t.Flaky {
			report.FlakyTests = append(report.FlakyTests, nodeid)
		}
		if t.PassCount == 0 && t.FailCount >= 2 {
			report.UnstableTests = append(report.UnstableTests, nodeid)
		}
		report.Tests = append(report.Tests, *t)
	}
	return report
}

// TrendPoint is one calendar day of aggregated durations.
type TrendPoint struct {
	Date        string  `json:"date"`
	MeanSeconds float64 `json:"mean_duration_seconds"`
	TestCount   int     `json:"test_count"`
}

// TrendReport describes how per-day mean test duration moves over the
// observed window.
type TrendReport struct {
	Status     string       `json:"status"`
	Direction  string       `json:"direction"`
	WindowSize int          `json:"window_size"`
	ChangeRate float64      `json:"change_rate"`
	Daily      []TrendPoint `json:"daily"`
	Rolling    []float64    `json:"rolling"`
}

// DurationTrend groups test durations by UTC calendar day, smooths the daily
// means with a rolling window and classifies the overall direction. Fewer
// than two distinct days yields TrendInsufficientData.
func (a *Analyzer) DurationTrend(sessions []*models.TestSession) TrendReport {
	type bucket struct {
		total time.Duration
		count int
	}
	buckets := map[string]*bucket{}

	for _, session := range sessions {
		for _, r := range session.TestResults {
			day := r.StartTime.UTC().Format("2006-01-02")
			b, ok := buckets[day]
			if !ok {
				b = &bucket{}
				buckets[day] = b
			}
			b.total += r.Duration
			b.count++
		}
	}

	if len(buckets) == 0 {
		return TrendReport{Status: StatusNoData, Direction: TrendInsufficientData, WindowSize: a.trendWindow, Daily: []TrendPoint{}, Rolling: []float64{}}
	}

	days := make([]string, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Strings(days)

	daily := make([]TrendPoint, 0, len(days))
	means := make([]float64, 0, len(days))
	for _, day := range days {
		b := buckets[day]
		m := b.total.Seconds() / float64(b.count)
		daily = append(daily, TrendPoint{Date: day, MeanSeconds: m, TestCount: b.count})
		means = append(means, m)
	}

	report := TrendReport{
		Status:     StatusOK,
		WindowSize: a.trendWindow,
		Daily:      daily,
		Rolling:    rollingMean(means, a.trendWindow),
	}

	if len(days) < 2 {
		report.Direction = TrendInsufficientData
		return report
	}

	first := report.Rolling[0]
	last := report.Rolling[len(report.Rolling)-1]
	switch {
	case first == 0:
		report.Direction = TrendStable
	default:
		report.ChangeRate = (last - first) / first
		switch {
		case report.ChangeRate > trendThreshold:
			report.Direction = TrendIncreasing
		case report.ChangeRate < -trendThreshold:
			report.Direction = TrendDecreasing
		default:
			report.Direction = TrendStable
		}
	}

	a.log.WithFields(logrus.Fields{
		"days":      len(days),
		"direction": report.Direction,
	}).Debug("duration trend computed")
	return report
}

// Outlier is one flagged value in a series.
type Outlier struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// OutlierReport is the result of IQR detection over a numeric series.
type OutlierReport struct {
	Status     string    `json:"status"`
	Q1         float64   `json:"q1"`
	Q3         float64   `json:"q3"`
	IQR        float64   `json:"iqr"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
	Outliers   []Outlier `json:"outliers"`
}

// DetectOutliers applies the standard IQR rule to a labeled series: values
// outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR] are flagged. Fewer than four points
// cannot support quartiles, so nothing is flagged.
func (a *Analyzer) DetectOutliers(labels []string, values []float64) OutlierReport {
	if len(values) == 0 {
		return OutlierReport{Status: StatusNoData, Outliers: []Outlier{}}
	}
	if len(values) < 4 {
		return OutlierReport{Status: StatusOK, Outliers: []Outlier{}}
	}

	q1 := quantile(values, 0.25)
	q3 := quantile(values, 0.75)
	iqr := q3 - q1

	report := OutlierReport{
		Status:     StatusOK,
		Q1:         q1,
		Q3:         q3,
		IQR:        iqr,
		LowerBound: q1 - iqrMultiplier*iqr,
		UpperBound: q3 + iqrMultiplier*iqr,
		Outliers:   []Outlier{},
	}
	for i, v := range values {
		if v < report.LowerBound || v > report.UpperBound {
			label := ""
			if i < len(labels) {
				label = labels[i]
			}
			report.Outliers = append(report.Outliers, Outlier{Label: label, Value: v})
		}
	}
	return report
}

// DurationOutliers runs IQR detection over per-test mean durations across
// the input sessions, flagging tests that run far outside the suite's norm.
func (a *Analyzer) DurationOutliers(sessions []*models.TestSession) OutlierReport {
	type agg struct {
		total time.Duration
		count int
	}
	byTest := map[string]*agg{}
	var order []string

	for _, session := range sessions {
		for _, r := range session.TestResults {
			t, ok := byTest[r.NodeID]
			if !ok {
				t = &agg{}
				byTest[r.NodeID] = t
				order = append(order, r.NodeID)
			}
			t.total += r.Duration
			t.count++
		}
	}
	sort.Strings(order)

	values := make([]float64, 0, len(order))
	for _, nodeid := range order {
		t := byTest[nodeid]
		values = append(values, t.total.Seconds()/float64(t.count))
	}
	return a.DetectOutliers(order, values)
}

// HealthReport is the composite suite health assessment.
type HealthReport struct {
	Status         string   `json:"status"`
	Score          *float64 `json:"score,omitempty"`
	PassRate       float64  `json:"pass_rate"`
	FlakyRate      float64  `json:"flaky_rate"`
	TrendDirection string   `json:"trend_direction"`
	SessionCount   int      `json:"session_count"`
	TestCount      int      `json:"test_count"`
}

// HealthScore combines pass rate, flaky rate and the duration trend into a
// bounded 0-100 score:
//
//	raw = 100 * (0.6*pass_rate + 0.4*(1-flaky_rate))
//
// then -10 for an increasing duration trend, +5 for a decreasing one,
// clamped to [0,100]. Deterministic for identical input, and monotonic:
// raising the pass rate or lowering the flaky rate never lowers the score.
func (a *Analyzer) HealthScore(sessions []*models.TestSession) HealthReport {
	var passed, failed, total int
	for _, session := range sessions {
		for _, r := range session.TestResults {
			total++
			switch {
			case r.Outcome == models.OutcomePassed:
				passed++
			case r.Outcome.IsFailure():
				failed++
			}
		}
	}

	if total == 0 || passed+failed == 0 {
		return HealthReport{Status: StatusNoData, TrendDirection: TrendInsufficientData}
	}

	passRate := float64(passed) / float64(passed+failed)

	flakiness := a.Flakiness(sessions)
	countable := 0
	for _, t := range flakiness.Tests {
		if t.PassCount+t.FailCount > 0 {
			countable++
		}
	}
	flakyRate := 0.0
	if countable > 0 {
		flakyRate = float64(len(flakiness.FlakyTests)) / float64(countable)
	}

	trend := a.DurationTrend(sessions)

	score := 100 * (healthPassWeight*passRate + healthFlakyWeight*(1-flakyRate))
	switch trend.Direction {
	case TrendIncreasing:
		score -= healthTrendPenalty
	case TrendDecreasing:
		score += healthTrendBonus
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return HealthReport{
		Status:         StatusOK,
		Score:          &score,
		PassRate:       passRate,
		FlakyRate:      flakyRate,
		TrendDirection: trend.Direction,
		SessionCount:   len(sessions),
		TestCount:      total,
	}
}
