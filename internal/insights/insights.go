// Package insights derives presentation-ready reports from a session set:
// outcome distribution, unreliable and slow tests, recurring error patterns
// and a composite summary. Reports are plain structs with JSON tags; CLI and
// REST layers serialize them as-is.
package insights

import (
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"pytest-insight/internal/analysis"
	"pytest-insight/internal/models"
)

const DefaultLimit = 10

// Insights computes reports over one fixed session set. Construct a new one
// per filtered collection; instances are cheap and hold no global state.
type Insights struct {
	analyzer *analysis.Analyzer
	sessions []*models.TestSession
	log      logrus.FieldLogger
}

func New(analyzer *analysis.Analyzer, sessions []*models.TestSession, log logrus.FieldLogger) *Insights {
	return &Insights{
		analyzer: analyzer,
		sessions: sessions,
		log:      log.WithField("component", "insights"),
	}
}

// OutcomeSlice is one outcome's share of all observed results.
type OutcomeSlice struct {
	Outcome models.TestOutcome `json:"outcome"`
	Count   int                `json:"count"`
	Rate    float64            `json:"rate"`
}

// DistributionReport counts results per outcome.
type DistributionReport struct {
	Status   string         `json:"status"`
	Total    int            `json:"total"`
	Outcomes []OutcomeSlice `json:"outcomes"`
}

func (i *Insights) OutcomeDistribution() DistributionReport {
	counts := map[models.TestOutcome]int{}
	total := 0
	for _, session := range i.sessions {
		for _, r := range session.TestResults {
			counts[r.Outcome]++
			total++
		}
	}

	if total == 0 {
		return DistributionReport{Status: analysis.StatusNoData, Outcomes: []OutcomeSlice{}}
	}

	outcomes := make([]models.TestOutcome, 0, len(counts))
	for o := range counts {
		outcomes = append(outcomes, o)
	}
	sort.Slice(outcomes, func(a, b int) bool {
		if counts[outcomes[a]] != counts[outcomes[b]] {
			return counts[outcomes[a]] > counts[outcomes[b]]
		}
		return outcomes[a] < outcomes[b]
	})

	report := DistributionReport{Status: analysis.StatusOK, Total: total}
	for _, o := range outcomes {
		report.Outcomes = append(report.Outcomes, OutcomeSlice{
			Outcome: o,
			Count:   counts[o],
			Rate:    float64(counts[o]) / float64(total),
		})
	}
	return report
}

// UnreliableReport ranks flaky and unstable tests by flaky rate.
type UnreliableReport struct {
	Status string                   `json:"status"`
	Tests  []analysis.TestStability `json:"tests"`
}

func (i *Insights) UnreliableTests(limit int) UnreliableReport {
	if limit <= 0 {
		limit = DefaultLimit
	}

	flakiness := i.analyzer.Flakiness(i.sessions)
	if flakiness.Status == analysis.StatusNoData {
		return UnreliableReport{Status: analysis.StatusNoData, Tests: []analysis.TestStability{}}
	}

	unreliable := make([]analysis.TestStability, 0)
	unstable := map[string]bool{}
	for _, nodeid := range flakiness.UnstableTests {
		unstable[nodeid] = true
	}
	for _, t := range flakiness.Tests {
		if t.Flaky || unstable[t.NodeID] {
			unreliable = append(unreliable, t)
		}
	}
	sort.Slice(unreliable, func(a, b int) bool {
		if unreliable[a].FlakyRate != unreliable[b].FlakyRate {
			return unreliable[a].FlakyRate > unreliable[b].FlakyRate
		}
		return unreliable[a].NodeID < unreliable[b].NodeID
	})
	if len(unreliable) > limit {
		unreliable = unreliable[:limit]
	}
	return UnreliableReport{Status: analysis.StatusOK, Tests: unreliable}
}

// SlowTest is one test's duration profile across the session set.
type SlowTest struct {
	NodeID      string  `json:"nodeid"`
	Runs        int     `json:"runs"`
	MeanSeconds float64 `json:"mean_seconds"`
	P50Seconds  float64 `json:"p50_seconds"`
	P90Seconds  float64 `json:"p90_seconds"`
}

// SlowestReport ranks tests by mean duration.
type SlowestReport struct {
	Status string     `json:"status"`
	Tests  []SlowTest `json:"tests"`
}

func (i *Insights) SlowestTests(limit int) SlowestReport {
	if limit <= 0 {
		limit = DefaultLimit
	}

	durations := map[string][]time.Duration{}
	for _, session := range i.sessions {
		for _, r := range session.TestResults {
			durations[r.NodeID] = append(durations[r.NodeID], r.Duration)
		}
	}
	if len(durations) == 0 {
		return SlowestReport{Status: analysis.StatusNoData, Tests: []SlowTest{}}
	}

	tests := make([]SlowTest, 0, len(durations))
	for nodeid, ds := range durations {
		secs := make([]float64, len(ds))
		var total float64
		for j, d := range ds {
			secs[j] = d.Seconds()
			total += secs[j]
		}
		sort.Float64s(secs)
		tests = append(tests, SlowTest{
			NodeID:      nodeid,
			Runs:        len(ds),
			MeanSeconds: total / float64(len(ds)),
			P50Seconds:  percentileSorted(secs, 0.50),
			P90Seconds:  percentileSorted(secs, 0.90),
		})
	}
	sort.Slice(tests, func(a, b int) bool {
		if tests[a].MeanSeconds != tests[b].MeanSeconds {
			return tests[a].MeanSeconds > tests[b].MeanSeconds
		}
		return tests[a].NodeID < tests[b].NodeID
	})
	if len(tests) > limit {
		tests = tests[:limit]
	}
	return SlowestReport{Status: analysis.StatusOK, Tests: tests}
}

// percentileSorted interpolates over an already sorted slice.
func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := p * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// ErrorPattern is one recurring failure signature: the first line of the
// failure text, with the tests it affected.
type ErrorPattern struct {
	Signature     string   `json:"signature"`
	Count         int      `json:"count"`
	AffectedTests []string `json:"affected_tests"`
}

// ErrorPatternsReport groups failures by signature.
type ErrorPatternsReport struct {
	Status   string         `json:"status"`
	Patterns []ErrorPattern `json:"patterns"`
}

func (i *Insights) ErrorPatterns(limit int) ErrorPatternsReport {
	if limit <= 0 {
		limit = DefaultLimit
	}

	type agg struct {
		count int
		tests map[string]bool
	}
	patterns := map[string]*agg{}
	sawFailure := false

	for _, session := range i.sessions {
		for _, r := range session.TestResults {
			if !r.Outcome.IsFailure() {
				continue
			}
			sawFailure = true
			sig := errorSignature(r.LongreprText)
			if sig == "" {
				continue
			}
			a, ok := patterns[sig]
			if !ok {
				a = &agg{tests: map[string]bool{}}
				patterns[sig] = a
			}
			a.count++
			a.tests[r.NodeID] = true
		}
	}

	if !sawFailure {
		return ErrorPatternsReport{Status: analysis.StatusNoData, Patterns: []ErrorPattern{}}
	}

	report := ErrorPatternsReport{Status: analysis.StatusOK, Patterns: []ErrorPattern{}}
	for sig, a := range patterns {
		tests := make([]string, 0, len(a.tests))
		for nodeid := range a.tests {
			tests = append(tests, nodeid)
		}
		sort.Strings(tests)
		report.Patterns = append(report.Patterns, ErrorPattern{Signature: sig, Count: a.count, AffectedTests: tests})
	}
	sort.Slice(report.Patterns, func(a, b int) bool {
		if report.Patterns[a].Count != report.Patterns[b].Count {
			return report.Patterns[a].Count > report.Patterns[b].Count
		}
		return report.Patterns[a].Signature < report.Patterns[b].Signature
	})
	if len(report.Patterns) > limit {
		report.Patterns = report.Patterns[:limit]
	}
	return report
}

func errorSignature(longrepr string) string {
	for _, line := range strings.Split(longrepr, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

// TestingSystemInfo is the typed view of the free-form testing_system
// metadata sessions carry. Unknown keys are ignored.
type TestingSystemInfo struct {
	Name          string `json:"name,omitempty" mapstructure:"name"`
	Environment   string `json:"environment,omitempty" mapstructure:"environment"`
	Platform      string `json:"platform,omitempty" mapstructure:"platform"`
	PythonVersion string `json:"python_version,omitempty" mapstructure:"python_version"`
	PytestVersion string `json:"pytest_version,omitempty" mapstructure:"pytest_version"`
}

// TestingSystems decodes each distinct testing_system block seen across the
// session set, deduplicated by name.
func (i *Insights) TestingSystems() []TestingSystemInfo {
	seen := map[string]bool{}
	out := []TestingSystemInfo{}
	for _, session := range i.sessions {
		if len(session.TestingSystem) == 0 {
			continue
		}
		var info TestingSystemInfo
		if err := mapstructure.Decode(session.TestingSystem, &info); err != nil {
			i.log.WithError(err).WithField("session_id", session.SessionID).
				Warn("undecodable testing_system metadata, skipping")
			continue
		}
		key := info.Name + "|" + info.Environment + "|" + info.Platform
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, info)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// SummaryReport is the top-level digest shown by the CLI and the REST API.
type SummaryReport struct {
	Status         string                   `json:"status"`
	SessionCount   int                      `json:"session_count"`
	TestCount      int                      `json:"test_count"`
	SUTs           []string                 `json:"suts"`
	Distribution   DistributionReport       `json:"outcome_distribution"`
	Health         analysis.HealthReport    `json:"health"`
	TrendDirection string                   `json:"trend_direction"`
	Unreliable     []analysis.TestStability `json:"top_unreliable_tests"`
	Slowest        []SlowTest               `json:"top_slowest_tests"`
	TestingSystems []TestingSystemInfo      `json:"testing_systems"`
}

func (i *Insights) SummaryReport() SummaryReport {
	testCount := 0
	sutSet := map[string]bool{}
	for _, session := range i.sessions {
		testCount += len(session.TestResults)
		sutSet[session.SUTName] = true
	}
	suts := make([]string, 0, len(sutSet))
	for sut := range sutSet {
		suts = append(suts, sut)
	}
	sort.Strings(suts)

	health := i.analyzer.HealthScore(i.sessions)
	status := analysis.StatusOK
	if len(i.sessions) == 0 {
		status = analysis.StatusNoData
	}

	return SummaryReport{
		Status:         status,
		SessionCount:   len(i.sessions),
		TestCount:      testCount,
		SUTs:           suts,
		Distribution:   i.OutcomeDistribution(),
		Health:         health,
		TrendDirection: health.TrendDirection,
		Unreliable:     i.UnreliableTests(5).Tests,
		Slowest:        i.SlowestTests(5).Tests,
		TestingSystems: i.TestingSystems(),
	}
}
