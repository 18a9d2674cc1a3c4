package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
		wantErr  bool
	}{
		{
			name:     "RFC3339WithOffset",
			input:    "2026-03-04T11:00:00+01:00",
			expected: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "RFC3339Zulu",
			input:    "2026-03-04T10:00:00Z",
			expected: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "NaiveAssumedUTC",
			input:    "2026-03-04T10:00:00.250000",
			expected: time.Date(2026, 3, 4, 10, 0, 0, 250000000, time.UTC),
		},
		{
			name:     "NaiveSpaceSeparated",
			input:    "2026-03-04 10:00:00",
			expected: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		},
		{name: "Garbage", input: "yesterday-ish", wantErr: true},
		{name: "Empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTimestamp(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.expected), "got %v, expected %v", got, tt.expected)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestTestResultDecode(t *testing.T) {
	raw := `{
		"nodeid": "test_api/test_users.py::test_create_user",
		"outcome": "failed",
		"start_time": "2026-03-04T10:00:00+00:00",
		"stop_time": "2026-03-04T10:00:02+00:00",
		"duration": null,
		"caplog": "WARNING retrying",
		"capstderr": "",
		"capstdout": "creating user",
		"longreprtext": "AssertionError: expected 201, got 500",
		"has_warning": true
	}`

	var r TestResult
	require.NoError(t, json.Unmarshal([]byte(raw), &r))

	assert.Equal(t, "test_api/test_users.py::test_create_user", r.NodeID)
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), r.StartTime)
	assert.Equal(t, 2*time.Second, r.Duration)
	assert.Equal(t, r.StartTime.Add(r.Duration), r.StopTime)
	assert.Equal(t, "AssertionError: expected 201, got 500", r.LongreprText)
	assert.True(t, r.HasWarning)
}

func TestTestResultDecodeTimingReconciliation(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		expectedDur  time.Duration
		expectedStop time.Time
		wantErr      bool
	}{
		{
			name: "DurationOnly",
			raw: `{"nodeid": "n", "outcome": "passed",
				"start_time": "2026-03-04T10:00:00Z", "stop_time": null, "duration": 1.5}`,
			expectedDur:  1500 * time.Millisecond,
			expectedStop: time.Date(2026, 3, 4, 10, 0, 1, 500000000, time.UTC),
		},
		{
			name: "StopOnly",
			raw: `{"nodeid": "n", "outcome": "passed",
				"start_time": "2026-03-04T10:00:00Z", "stop_time": "2026-03-04T10:00:03Z", "duration": null}`,
			expectedDur:  3 * time.Second,
			expectedStop: time.Date(2026, 3, 4, 10, 0, 3, 0, time.UTC),
		},
		{
			// duration wins over an inconsistent stop_time
			name: "BothPresentDurationAuthoritative",
			raw: `{"nodeid": "n", "outcome": "passed",
				"start_time": "2026-03-04T10:00:00Z", "stop_time": "2026-03-04T10:00:59Z", "duration": 2.0}`,
			expectedDur:  2 * time.Second,
			expectedStop: time.Date(2026, 3, 4, 10, 0, 2, 0, time.UTC),
		},
		{
			name: "NeitherPresent",
			raw: `{"nodeid": "n", "outcome": "passed",
				"start_time": "2026-03-04T10:00:00Z", "stop_time": null, "duration": null}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r TestResult
			err := json.Unmarshal([]byte(tt.raw), &r)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "either stop_time or duration")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedDur, r.Duration)
			assert.True(t, r.StopTime.Equal(tt.expectedStop), "got %v, expected %v", r.StopTime, tt.expectedStop)
		})
	}
}

func TestTestResultDecodeRejectsUnknownOutcome(t *testing.T) {
	raw := `{"nodeid": "n", "outcome": "banana",
		"start_time": "2026-03-04T10:00:00Z", "stop_time": null, "duration": 1.0}`

	var r TestResult
	err := json.Unmarshal([]byte(raw), &r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid test outcome")
}

func TestSessionDecode(t *testing.T) {
	raw := `{
		"sut_name": "service-a",
		"session_id": "base-service-a-20260304-100000-deadbeef",
		"session_start_time": "2026-03-04T10:00:00",
		"session_stop_time": "2026-03-04T10:05:00",
		"session_duration": null,
		"test_results": [
			{"nodeid": "test_a.py::test_one", "outcome": "passed",
			 "start_time": "2026-03-04T10:00:01Z", "stop_time": null, "duration": 0.5}
		],
		"rerun_test_groups": [
			{"nodeid": "test_a.py::test_one", "tests": [
				{"nodeid": "test_a.py::test_one", "outcome": "rerun",
				 "start_time": "2026-03-04T10:00:01Z", "stop_time": null, "duration": 0.2}
			]}
		],
		"session_tags": {"environment": "qa"}
	}`

	var s TestSession
	require.NoError(t, json.Unmarshal([]byte(raw), &s))

	assert.Equal(t, "service-a", s.SUTName)
	assert.Equal(t, 5*time.Minute, s.SessionDuration)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), s.SessionStartTime)
	require.Len(t, s.TestResults, 1)
	require.Len(t, s.RerunTestGroups, 1)
	assert.Equal(t, "qa", s.SessionTags["environment"])
	assert.NotNil(t, s.TestingSystem)
}

func TestSessionEncodeShape(t *testing.T) {
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	s := NewTestSession("sess-1", "service-a", start, time.Minute)
	s.AddTestResult(NewTestResult("test_a.py::test_one", OutcomePassed, start, time.Second))

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "sess-1", decoded["session_id"])
	assert.Equal(t, "service-a", decoded["sut_name"])
	assert.Equal(t, float64(60), decoded["session_duration"])
	// collections are always emitted, never null
	assert.NotNil(t, decoded["rerun_test_groups"])
	assert.NotNil(t, decoded["session_tags"])
	assert.NotNil(t, decoded["testing_system"])

	results, ok := decoded["test_results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	row := results[0].(map[string]interface{})
	assert.Equal(t, "passed", row["outcome"])
	assert.Equal(t, float64(1), row["duration"])
}
