package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timestamps are stored in a single canonical zone (UTC). The decode boundary
// accepts RFC3339 strings, which are normalized to UTC, and offset-less
// strings (as emitted by naive datetime producers), which are taken to
// already be UTC. After decode no zone handling exists anywhere else.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp: %q", s)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func durationSeconds(d time.Duration) float64 {
	return d.Seconds()
}

type testResultJSON struct {
	NodeID       string   `json:"nodeid"`
	Outcome      string   `json:"outcome"`
	StartTime    string   `json:"start_time"`
	StopTime     *string  `json:"stop_time"`
	Duration     *float64 `json:"duration"`
	Caplog       string   `json:"caplog"`
	Capstderr    string   `json:"capstderr"`
	Capstdout    string   `json:"capstdout"`
	LongreprText string   `json:"longreprtext"`
	HasWarning   bool     `json:"has_warning"`
}

func (r *TestResult) MarshalJSON() ([]byte, error) {
	stop := formatTimestamp(r.StopTime)
	dur := durationSeconds(r.Duration)
	return json.Marshal(testResultJSON{
		NodeID:       r.NodeID,
		Outcome:      r.Outcome.String(),
		StartTime:    formatTimestamp(r.StartTime),
		StopTime:     &stop,
		Duration:     &dur,
		Caplog:       r.Caplog,
		Capstderr:    r.Capstderr,
		Capstdout:    r.Capstdout,
		LongreprText: r.LongreprText,
		HasWarning:   r.HasWarning,
	})
}

func (r *TestResult) UnmarshalJSON(data []byte) error {
	var wire testResultJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	outcome, err := ParseOutcome(wire.Outcome)
	if err != nil {
		return fmt.Errorf("test result %s: %w", wire.NodeID, err)
	}

	start, err := parseTimestamp(wire.StartTime)
	if err != nil {
		return fmt.Errorf("test result %s: start_time: %w", wire.NodeID, err)
	}

	stop, dur, err := reconcileTiming(start, wire.StopTime, wire.Duration)
	if err != nil {
		return fmt.Errorf("test result %s: %w", wire.NodeID, err)
	}

	*r = TestResult{
		NodeID:       wire.NodeID,
		Outcome:      outcome,
		StartTime:    start,
		StopTime:     stop,
		Duration:     dur,
		Caplog:       wire.Caplog,
		Capstderr:    wire.Capstderr,
		Capstdout:    wire.Capstdout,
		LongreprText: wire.LongreprText,
		HasWarning:   wire.HasWarning,
	}
	return nil
}

// reconcileTiming enforces duration == stop-start. Whichever of the two is
// absent gets derived; when both are present the duration is authoritative
// and the stop time is re-derived from it.
func reconcileTiming(start time.Time, stopStr *string, durSecs *float64) (time.Time, time.Duration, error) {
	if stopStr == nil && durSecs == nil {
		return time.Time{}, 0, fmt.Errorf("either stop_time or duration must be provided")
	}

	if durSecs != nil {
		dur := secondsToDuration(*durSecs)
		return start.Add(dur), dur, nil
	}

	stop, err := parseTimestamp(*stopStr)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("stop_time: %w", err)
	}
	return stop, stop.Sub(start), nil
}

type rerunGroupJSON struct {
	NodeID string        `json:"nodeid"`
	Tests  []*TestResult `json:"tests"`
}

func (g *RerunTestGroup) MarshalJSON() ([]byte, error) {
	tests := g.Tests
	if tests == nil {
		tests = []*TestResult{}
	}
	return json.Marshal(rerunGroupJSON{NodeID: g.NodeID, Tests: tests})
}

func (g *RerunTestGroup) UnmarshalJSON(data []byte) error {
	var wire rerunGroupJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*g = RerunTestGroup{NodeID: wire.NodeID, Tests: wire.Tests}
	return nil
}

type testSessionJSON struct {
	SUTName          string                 `json:"sut_name"`
	SessionID        string                 `json:"session_id"`
	SessionStartTime string                 `json:"session_start_time"`
	SessionStopTime  *string                `json:"session_stop_time"`
	SessionDuration  *float64               `json:"session_duration"`
	TestResults      []*TestResult          `json:"test_results"`
	RerunTestGroups  []*RerunTestGroup      `json:"rerun_test_groups"`
	SessionTags      map[string]string      `json:"session_tags"`
	TestingSystem    map[string]interface{} `json:"testing_system"`
}

func (s *TestSession) MarshalJSON() ([]byte, error) {
	stop := formatTimestamp(s.SessionStopTime)
	dur := durationSeconds(s.SessionDuration)

	results := s.TestResults
	if results == nil {
		results = []*TestResult{}
	}
	groups := s.RerunTestGroups
	if groups == nil {
		groups = []*RerunTestGroup{}
	}
	tags := s.SessionTags
	if tags == nil {
		tags = map[string]string{}
	}
	system := s.TestingSystem
	if system == nil {
		system = map[string]interface{}{}
	}

	return json.Marshal(testSessionJSON{
		SUTName:          s.SUTName,
		SessionID:        s.SessionID,
		SessionStartTime: formatTimestamp(s.SessionStartTime),
		SessionStopTime:  &stop,
		SessionDuration:  &dur,
		TestResults:      results,
		RerunTestGroups:  groups,
		SessionTags:      tags,
		TestingSystem:    system,
	})
}

func (s *TestSession) UnmarshalJSON(data []byte) error {
	var wire testSessionJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	start, err := parseTimestamp(wire.SessionStartTime)
	if err != nil {
		return fmt.Errorf("session %s: session_start_time: %w", wire.SessionID, err)
	}

	stop, dur, err := reconcileTiming(start, wire.SessionStopTime, wire.SessionDuration)
	if err != nil {
		return fmt.Errorf("session %s: %w", wire.SessionID, err)
	}

	tags := wire.SessionTags
	if tags == nil {
		tags = map[string]string{}
	}
	system := wire.TestingSystem
	if system == nil {
		system = map[string]interface{}{}
	}

	*s = TestSession{
		SUTName:          wire.SUTName,
		SessionID:        wire.SessionID,
		SessionStartTime: start,
		SessionStopTime:  stop,
		SessionDuration:  dur,
		TestResults:      wire.TestResults,
		RerunTestGroups:  wire.RerunTestGroups,
		SessionTags:      tags,
		TestingSystem:    system,
	}
	return nil
}
