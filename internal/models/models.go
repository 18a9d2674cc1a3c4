package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// TestOutcome is the canonical result state of one test execution. Values
// match the lowercase strings pytest reports on the wire.
type TestOutcome string

const (
	OutcomePassed  TestOutcome = "passed"
	OutcomeFailed  TestOutcome = "failed"
	OutcomeSkipped TestOutcome = "skipped"
	OutcomeXFailed TestOutcome = "xfailed"
	OutcomeXPassed TestOutcome = "xpassed"
	OutcomeError   TestOutcome = "error"
	OutcomeRerun   TestOutcome = "rerun"
)

// ParseOutcome converts a wire string to a TestOutcome. Matching is
// case-insensitive. An empty string maps to OutcomeSkipped (collected but
// never run); anything else unknown is rejected.
func ParseOutcome(s string) (TestOutcome, error) {
	if s == "" {
		return OutcomeSkipped, nil
	}
	o := TestOutcome(strings.ToLower(s))
	if !o.Valid() {
		return "", fmt.Errorf("invalid test outcome: %q", s)
	}
	return o, nil
}

func (o TestOutcome) Valid() bool {
	switch o {
	case OutcomePassed, OutcomeFailed, OutcomeSkipped, OutcomeXFailed, OutcomeXPassed, OutcomeError, OutcomeRerun:
		return true
	}
	return false
}

func (o TestOutcome) String() string { return string(o) }

// IsFailure reports whether the outcome counts as a failure for stability
// purposes: failed and error do, everything else does not.
func (o TestOutcome) IsFailure() bool {
	return o == OutcomeFailed || o == OutcomeError
}

// CountsForStability reports whether the outcome participates in pass/fail
// tallies. Skips and expected failures are informational only, and rerun
// attempts are superseded by their final result.
func (o TestOutcome) CountsForStability() bool {
	return o == OutcomePassed || o.IsFailure()
}

// TestResult is a single execution of a single test. All timestamps are UTC;
// Duration always equals StopTime.Sub(StartTime).
type TestResult struct {
	NodeID       string
	Outcome      TestOutcome
	StartTime    time.Time
	StopTime     time.Time
	Duration     time.Duration
	Caplog       string
	Capstderr    string
	Capstdout    string
	LongreprText string
	HasWarning   bool
}

// NewTestResult builds a result with StopTime derived from start+duration.
// Capture fields start empty and can be set afterwards.
func NewTestResult(nodeid string, outcome TestOutcome, start time.Time, duration time.Duration) *TestResult {
	start = start.UTC()
	return &TestResult{
		NodeID:    nodeid,
		Outcome:   outcome,
		StartTime: start,
		StopTime:  start.Add(duration),
		Duration:  duration,
	}
}

func (r *TestResult) Validate() error {
	var errs *multierror.Error
	if r.NodeID == "" {
		errs = multierror.Append(errs, fmt.Errorf("test result: nodeid cannot be empty"))
	}
	if !r.Outcome.Valid() {
		errs = multierror.Append(errs, fmt.Errorf("test result %s: invalid outcome %q", r.NodeID, r.Outcome))
	}
	if r.StartTime.IsZero() {
		errs = multierror.Append(errs, fmt.Errorf("test result %s: start_time cannot be zero", r.NodeID))
	}
	if r.StopTime.Before(r.StartTime) {
		errs = multierror.Append(errs, fmt.Errorf("test result %s: stop_time precedes start_time", r.NodeID))
	}
	if r.Duration < 0 {
		errs = multierror.Append(errs, fmt.Errorf("test result %s: negative duration", r.NodeID))
	}
	return errs.ErrorOrNil()
}

// RerunTestGroup collects every attempt recorded for one nodeid within a
// session, chronologically ordered with the final attempt last.
type RerunTestGroup struct {
	NodeID string
	Tests  []*TestResult
}

func NewRerunTestGroup(nodeid string) *RerunTestGroup {
	return &RerunTestGroup{NodeID: nodeid}
}

// AddTest appends an attempt and keeps the group in chronological order.
func (g *RerunTestGroup) AddTest(r *TestResult) {
	g.Tests = append(g.Tests, r)
	sort.SliceStable(g.Tests, func(i, j int) bool {
		return g.Tests[i].StartTime.Before(g.Tests[j].StartTime)
	})
}

// FinalOutcome is failed when any attempt failed, otherwise the outcome of
// the last attempt. Empty groups yield the zero value.
func (g *RerunTestGroup) FinalOutcome() TestOutcome {
	if len(g.Tests) == 0 {
		return ""
	}
	for _, t := range g.Tests {
		if t.Outcome == OutcomeFailed {
			return OutcomeFailed
		}
	}
	return g.Tests[len(g.Tests)-1].Outcome
}

func (g *RerunTestGroup) Validate() error {
	var errs *multierror.Error
	if g.NodeID == "" {
		errs = multierror.Append(errs, fmt.Errorf("rerun group: nodeid cannot be empty"))
	}
	if len(g.Tests) == 0 {
		errs = multierror.Append(errs, fmt.Errorf("rerun group %s: must contain at least one attempt", g.NodeID))
	}
	for _, t := range g.Tests {
		if t.NodeID != g.NodeID {
			errs = multierror.Append(errs, fmt.Errorf("rerun group %s: attempt has mismatched nodeid %s", g.NodeID, t.NodeID))
		}
	}
	return errs.ErrorOrNil()
}

// TestSession is one pytest invocation against one SUT. Sessions are built
// once (by ingestion, the generator, or tests) and treated as read-only
// afterwards; filtering never mutates a stored session.
type TestSession struct {
	SUTName          string
	TestingSystem    map[string]interface{}
	SessionID        string
	SessionStartTime time.Time
	SessionStopTime  time.Time
	SessionDuration  time.Duration
	SessionTags      map[string]string
	RerunTestGroups  []*RerunTestGroup
	TestResults      []*TestResult
}

// NewTestSession builds a session with SessionStopTime derived from
// start+duration. Results and rerun groups are added afterwards.
func NewTestSession(sessionID, sutName string, start time.Time, duration time.Duration) *TestSession {
	start = start.UTC()
	return &TestSession{
		SessionID:        sessionID,
		SUTName:          sutName,
		SessionStartTime: start,
		SessionStopTime:  start.Add(duration),
		SessionDuration:  duration,
		SessionTags:      map[string]string{},
		TestingSystem:    map[string]interface{}{},
	}
}

func (s *TestSession) AddTestResult(r *TestResult) {
	s.TestResults = append(s.TestResults, r)
}

func (s *TestSession) AddRerunGroup(g *RerunTestGroup) {
	s.RerunTestGroups = append(s.RerunTestGroups, g)
}

// HasReruns reports whether any test in the session was retried.
func (s *TestSession) HasReruns() bool {
	return len(s.RerunTestGroups) > 0
}

// Tag returns the value of a session tag and whether it was set.
func (s *TestSession) Tag(key string) (string, bool) {
	v, ok := s.SessionTags[key]
	return v, ok
}

// Validate checks the session invariants, aggregating every violation rather
// than stopping at the first.
func (s *TestSession) Validate() error {
	var errs *multierror.Error
	if s.SessionID == "" {
		errs = multierror.Append(errs, fmt.Errorf("session: session_id cannot be empty"))
	}
	if s.SUTName == "" {
		errs = multierror.Append(errs, fmt.Errorf("session %s: sut_name cannot be empty", s.SessionID))
	}
	if s.SessionStartTime.IsZero() {
		errs = multierror.Append(errs, fmt.Errorf("session %s: session_start_time cannot be zero", s.SessionID))
	}
	if s.SessionStopTime.Before(s.SessionStartTime) {
		errs = multierror.Append(errs, fmt.Errorf("session %s: session_stop_time precedes session_start_time", s.SessionID))
	}
	for _, r := range s.TestResults {
		if err := r.Validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("session %s: %w", s.SessionID, err))
		}
	}
	known := make(map[string]bool, len(s.TestResults))
	for _, r := range s.TestResults {
		known[r.NodeID] = true
	}
	for _, g := range s.RerunTestGroups {
		if err := g.Validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("session %s: %w", s.SessionID, err))
			continue
		}
		if !known[g.NodeID] {
			errs = multierror.Append(errs, fmt.Errorf("session %s: rerun group %s references a nodeid absent from test_results", s.SessionID, g.NodeID))
		}
	}
	return errs.ErrorOrNil()
}
