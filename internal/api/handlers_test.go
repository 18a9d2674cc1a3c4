package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pytest-insight/internal/insight"
	"pytest-insight/internal/models"
	"pytest-insight/internal/storage"
)

var apiTime = time.Now().UTC().Add(-time.Hour)

func newTestServer(t *testing.T, sessions ...*models.TestSession) *Server {
	t.Helper()

	store := storage.NewMemoryStorage()
	require.NoError(t, store.SaveMany(context.Background(), sessions))

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewServer("127.0.0.1:0", insight.New(store, logger), logger)
}

func apiSession(id, sut string, results ...*models.TestResult) *models.TestSession {
	s := models.NewTestSession(id, sut, apiTime, 5*time.Minute)
	for _, r := range results {
		s.AddTestResult(r)
	}
	return s
}

func apiResult(nodeid string, outcome models.TestOutcome) *models.TestResult {
	return models.NewTestResult(nodeid, outcome, apiTime, time.Second)
}

func doRequest(t *testing.T, s *Server, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echoHeaderContentType, "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

const echoHeaderContentType = "Content-Type"

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, apiSession("s1", "svc", apiResult("test_a.py::a", models.OutcomePassed)))

	rec := doRequest(t, s, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["session_count"])
}

func TestListSessionsFiltersBySUT(t *testing.T) {
	s := newTestServer(t,
		apiSession("s1", "service-a", apiResult("test_a.py::a", models.OutcomePassed)),
		apiSession("s2", "service-b", apiResult("test_a.py::a", models.OutcomeFailed)),
	)

	rec := doRequest(t, s, http.MethodGet, "/api/sessions?sut=service-a", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
}

func TestListSessionsBadDaysIs400(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/sessions?days=soon", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/sessions?days=-2", "")
	assert.Equal(t, http.StatusOK, rec.Code) // days<=0 is simply not applied
}

func TestListSessionsInvalidOutcomeIs400(t *testing.T) {
	s := newTestServer(t, apiSession("s1", "svc", apiResult("test_a.py::a", models.OutcomePassed)))

	rec := doRequest(t, s, http.MethodGet, "/api/sessions?outcome=exploded", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body["error"], "invalid")
}

func TestGetSession(t *testing.T) {
	s := newTestServer(t, apiSession("s1", "svc", apiResult("test_a.py::a", models.OutcomePassed)))

	rec := doRequest(t, s, http.MethodGet, "/api/sessions/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "s1", body["session_id"])

	rec = doRequest(t, s, http.MethodGet, "/api/sessions/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTestsFlattensAndFilters(t *testing.T) {
	s := newTestServer(t, apiSession("s1", "svc",
		apiResult("test_a.py::pass", models.OutcomePassed),
		apiResult("test_a.py::fail", models.OutcomeFailed),
	))

	rec := doRequest(t, s, http.MethodGet, "/api/tests?outcome=failed", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	tests := body["tests"].([]interface{})
	row := tests[0].(map[string]interface{})
	assert.Equal(t, "test_a.py::fail", row["nodeid"])
}

func TestAnalysisEndpoints(t *testing.T) {
	s := newTestServer(t,
		apiSession("s1", "svc", apiResult("test_a.py::a", models.OutcomePassed)),
		apiSession("s2", "svc", apiResult("test_a.py::a", models.OutcomeFailed)),
	)

	rec := doRequest(t, s, http.MethodGet, "/api/analysis/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode(t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.NotNil(t, health["score"])

	rec = doRequest(t, s, http.MethodGet, "/api/analysis/flaky", "")
	require.Equal(t, http.StatusOK, rec.Code)
	flaky := decode(t, rec)
	assert.Contains(t, flaky["flaky_tests"], "test_a.py::a")

	rec = doRequest(t, s, http.MethodGet, "/api/analysis/trends?window=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	trends := decode(t, rec)
	assert.Equal(t, float64(3), trends["window_size"])

	rec = doRequest(t, s, http.MethodGet, "/api/analysis/outliers", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalysisEmptyStoreIsNoData(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/analysis/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "no_data", body["status"])
}

func TestCompareEndpoint(t *testing.T) {
	s := newTestServer(t,
		apiSession("b1", "service-a", apiResult("test_a.py::a", models.OutcomeFailed)),
		apiSession("t1", "service-b", apiResult("test_a.py::a", models.OutcomePassed)),
	)

	rec := doRequest(t, s, http.MethodGet, "/api/compare?base_sut=service-a&target_sut=service-b", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body["fixed_tests"], "test_a.py::a")
}

func TestCompareRequiresBothSUTs(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/compare?base_sut=only-one", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInsightsSummary(t *testing.T) {
	s := newTestServer(t, apiSession("s1", "svc",
		apiResult("test_a.py::a", models.OutcomePassed),
		apiResult("test_a.py::b", models.OutcomeFailed),
	))

	rec := doRequest(t, s, http.MethodGet, "/api/insights/summary", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["session_count"])
	assert.Equal(t, float64(2), body["test_count"])
}

func TestIngestSessions(t *testing.T) {
	s := newTestServer(t)

	payload := `{"sessions": [{
		"session_id": "ingested-1",
		"sut_name": "svc",
		"session_start_time": "2026-03-01T10:00:00Z",
		"session_duration": 12.5,
		"test_results": [{
			"nodeid": "test_a.py::a",
			"outcome": "passed",
			"start_time": "2026-03-01T10:00:01Z",
			"duration": 1.5
		}]
	}]}`

	rec := doRequest(t, s, http.MethodPost, "/api/sessions", payload)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["saved"])

	rec = doRequest(t, s, http.MethodGet, "/api/sessions/ingested-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestRejectsInvalidSession(t *testing.T) {
	s := newTestServer(t)

	// missing sut_name fails validation
	payload := `{"sessions": [{
		"session_id": "bad-1",
		"session_start_time": "2026-03-01T10:00:00Z",
		"session_duration": 1
	}]}`

	rec := doRequest(t, s, http.MethodPost, "/api/sessions", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/sessions", `{"sessions": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
