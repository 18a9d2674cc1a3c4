// Package comparison computes nodeid-keyed diffs between two session
// collections, typically two SUTs or two time windows. The latest outcome
// per nodeid within a collection wins; latest means the result with the
// most recent stop time.
package comparison

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"pytest-insight/internal/models"
	"pytest-insight/internal/query"
	"pytest-insight/internal/storage"
)

// ErrInvalidComparison marks builder misuse, e.g. empty SUT names.
var ErrInvalidComparison = errors.New("invalid comparison")

// Comparison result status values.
const (
	StatusOK     = "ok"
	StatusNoData = "no_data"
)

// Duration-change thresholds: a test counts as slower when its latest target
// duration exceeds 1.2x the base, faster when below 0.8x.
const (
	slowerFactor = 1.2
	fasterFactor = 0.8
)

// OutcomeChange records a nodeid whose latest outcome differs between the
// two collections.
type OutcomeChange struct {
	Base   models.TestOutcome `json:"base"`
	Target models.TestOutcome `json:"target"`
}

// Result is the structured diff between base and target.
type Result struct {
	Status             string                   `json:"status"`
	NewFailures        []string                 `json:"new_failures"`
	FixedTests         []string                 `json:"fixed_tests"`
	PersistentFailures []string                 `json:"persistent_failures"`
	SlowerTests        []string                 `json:"slower_tests"`
	FasterTests        []string                 `json:"faster_tests"`
	MissingTests       []string                 `json:"missing_tests"`
	NewTests           []string                 `json:"new_tests"`
	OutcomeChanges     map[string]OutcomeChange `json:"outcome_changes"`

	BaseSessionCount   int     `json:"base_session_count"`
	TargetSessionCount int     `json:"target_session_count"`
	BasePassRate       float64 `json:"base_pass_rate"`
	TargetPassRate     float64 `json:"target_pass_rate"`
	PassRateDelta      float64 `json:"pass_rate_delta"`
	HasChanges         bool    `json:"has_changes"`
}

func emptyResult(status string) Result {
	return Result{
		Status:             status,
		NewFailures:        []string{},
		FixedTests:         []string{},
		PersistentFailures: []string{},
		SlowerTests:        []string{},
		FasterTests:        []string{},
		MissingTests:       []string{},
		NewTests:           []string{},
		OutcomeChanges:     map[string]OutcomeChange{},
	}
}

// latestByNodeID picks the winning result per nodeid within one collection:
// the most recent stop time wins across sessions and reruns.
func latestByNodeID(sessions []*models.TestSession) map[string]*models.TestResult {
	out := map[string]*models.TestResult{}
	for _, session := range sessions {
		for _, r := range session.TestResults {
			if r.Outcome == models.OutcomeRerun {
				// intermediate attempts never represent a test's final state
				continue
			}
			cur, ok := out[r.NodeID]
			if !ok || r.StopTime.After(cur.StopTime) {
				out[r.NodeID] = r
			}
		}
	}
	return out
}

func passRate(sessions []*models.TestSession) float64 {
	var passed, counted int
	for _, session := range sessions {
		for _, r := range session.TestResults {
			if !r.Outcome.CountsForStability() {
				continue
			}
			counted++
			if r.Outcome == models.OutcomePassed {
				passed++
			}
		}
	}
	if counted == 0 {
		return 0
	}
	return float64(passed) / float64(counted)
}

// Diff compares two already-scoped session collections. Both empty yields a
// no-data result, never an error.
func Diff(base, target []*models.TestSession) Result {
	if len(base) == 0 && len(target) == 0 {
		return emptyResult(StatusNoData)
	}

	baseLatest := latestByNodeID(base)
	targetLatest := latestByNodeID(target)

	result := emptyResult(StatusOK)
	result.BaseSessionCount = len(base)
	result.TargetSessionCount = len(target)

	nodeids := map[string]bool{}
	for id := range baseLatest {
		nodeids[id] = true
	}
	for id := range targetLatest {
		nodeids[id] = true
	}
	ordered := make([]string, 0, len(nodeids))
	for id := range nodeids {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	for _, nodeid := range ordered {
		b, inBase := baseLatest[nodeid]
		t, inTarget := targetLatest[nodeid]

		switch {
		case !inBase:
			result.NewTests = append(result.NewTests, nodeid)
			if t.Outcome.IsFailure() {
				result.NewFailures = append(result.NewFailures, nodeid)
			}
			continue
		case !inTarget:
			result.MissingTests = append(result.MissingTests, nodeid)
			continue
		}

		switch {
		case !b.Outcome.IsFailure() && t.Outcome.IsFailure():
			result.NewFailures = append(result.NewFailures, nodeid)
		case b.Outcome.IsFailure() && t.Outcome == models.OutcomePassed:
			result.FixedTests = append(result.FixedTests, nodeid)
		case b.Outcome.IsFailure() && t.Outcome.IsFailure():
			result.PersistentFailures = append(result.PersistentFailures, nodeid)
		}

		if b.Outcome != t.Outcome {
			result.OutcomeChanges[nodeid] = OutcomeChange{Base: b.Outcome, Target: t.Outcome}
		}

		if b.Duration > 0 {
			ratio := float64(t.Duration) / float64(b.Duration)
			if ratio > slowerFactor {
				result.SlowerTests = append(result.SlowerTests, nodeid)
			} else if ratio < fasterFactor {
				result.FasterTests = append(result.FasterTests, nodeid)
			}
		}
	}

	result.BasePassRate = passRate(base)
	result.TargetPassRate = passRate(target)
	result.PassRateDelta = result.TargetPassRate - result.BasePassRate
	result.HasChanges = len(result.NewFailures) > 0 ||
		len(result.FixedTests) > 0 ||
		len(result.SlowerTests) > 0 ||
		len(result.FasterTests) > 0 ||
		len(result.MissingTests) > 0 ||
		len(result.NewTests) > 0 ||
		len(result.OutcomeChanges) > 0

	return result
}

// QueryFunc customizes one side's query beyond the shared scoping.
type QueryFunc func(*query.Query) *query.Query

// Comparison is the storage-backed builder: it scopes two queries (base and
// target) against the same store and feeds their results to Diff.
type Comparison struct {
	store storage.SessionStorage
	log   logrus.FieldLogger

	baseSUT   string
	targetSUT string
	days      int
	pattern   string
	baseFn    QueryFunc
	targetFn  QueryFunc
	err       error
}

func New(store storage.SessionStorage, log logrus.FieldLogger) *Comparison {
	return &Comparison{
		store: store,
		log:   log.WithField("component", "comparison"),
	}
}

func (c *Comparison) setErr(err error) {
	if c.err == nil {
		c.err = err
	}
}

// BetweenSUTs compares the histories of two systems under test.
func (c *Comparison) BetweenSUTs(base, target string) *Comparison {
	if base == "" || target == "" {
		c.setErr(fmt.Errorf("%w: both SUT names must be non-empty", ErrInvalidComparison))
		return c
	}
	c.baseSUT, c.targetSUT = base, target
	return c
}

// InLastDays restricts both sides to sessions started in the last n days.
func (c *Comparison) InLastDays(n int) *Comparison {
	if n < 0 {
		c.setErr(fmt.Errorf("%w: days must not be negative, got %d", ErrInvalidComparison, n))
		return c
	}
	c.days = n
	return c
}

// WithTestPattern restricts both sides to tests whose nodeid contains the
// substring.
func (c *Comparison) WithTestPattern(substr string) *Comparison {
	if substr == "" {
		c.setErr(fmt.Errorf("%w: test pattern cannot be empty", ErrInvalidComparison))
		return c
	}
	c.pattern = substr
	return c
}

// WithBaseQuery adds extra scoping to the base side only.
func (c *Comparison) WithBaseQuery(fn QueryFunc) *Comparison {
	c.baseFn = fn
	return c
}

// WithTargetQuery adds extra scoping to the target side only.
func (c *Comparison) WithTargetQuery(fn QueryFunc) *Comparison {
	c.targetFn = fn
	return c
}

func (c *Comparison) buildQuery(sut string, fn QueryFunc) *query.Query {
	q := query.New(c.store, c.log)
	if sut != "" {
		q = q.ForSUT(sut)
	}
	if c.days > 0 {
		q = q.InLastDays(c.days)
	}
	if c.pattern != "" {
		q = q.TestNodeIDContains(c.pattern)
	}
	if fn != nil {
		q = fn(q)
	}
	return q
}

// Execute runs both scoped queries and diffs the results.
func (c *Comparison) Execute(ctx context.Context) (Result, error) {
	if c.err != nil {
		return Result{}, c.err
	}
	if c.baseSUT == "" && c.targetSUT == "" && c.baseFn == nil && c.targetFn == nil {
		return Result{}, fmt.Errorf("%w: nothing distinguishes base from target; call BetweenSUTs or supply side queries", ErrInvalidComparison)
	}

	base, err := c.buildQuery(c.baseSUT, c.baseFn).Execute(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("base query: %w", err)
	}
	target, err := c.buildQuery(c.targetSUT, c.targetFn).Execute(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("target query: %w", err)
	}

	result := Diff(base, target)
	c.log.WithFields(logrus.Fields{
		"base_sessions":   len(base),
		"target_sessions": len(target),
		"has_changes":     result.HasChanges,
	}).Debug("comparison executed")
	return result, nil
}
