// Package query implements two-stage filtering over stored test sessions.
//
// Filters accumulate on a Query while it is in session scope. FilterByTest
// switches to test scope, where predicates apply to individual test results;
// Apply returns to session scope. The two scopes are distinct types, so a
// scope-inappropriate call does not compile. Execute applies session filters
// first, then keeps every session with at least one test result matching all
// test-scope predicates, rebuilding surviving sessions around the matching
// subset while preserving session identity and metadata.
package query

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/sirupsen/logrus"

	"pytest-insight/internal/models"
	"pytest-insight/internal/storage"
)

// ErrInvalidParameter marks builder misuse: empty names, negative windows,
// inverted ranges, malformed patterns. Recorded at the offending call and
// surfaced from Execute.
var ErrInvalidParameter = errors.New("invalid query parameter")

type sessionPredicate func(*models.TestSession) bool

type testPredicate func(*models.TestResult) bool

// Query is the session-scope half of the builder. Zero value is not usable;
// construct with New.
type Query struct {
	store storage.SessionStorage
	log   logrus.FieldLogger
	now   func() time.Time

	sessionFilters []sessionPredicate
	testFilters    []testPredicate
	err            error
}

func New(store storage.SessionStorage, log logrus.FieldLogger) *Query {
	return &Query{
		store: store,
		log:   log.WithField("component", "query"),
		now:   time.Now,
	}
}

func (q *Query) setErr(err error) {
	if q.err == nil {
		q.err = err
	}
}

func (q *Query) addSessionFilter(p sessionPredicate) *Query {
	q.sessionFilters = append(q.sessionFilters, p)
	return q
}

// ForSUT keeps sessions whose sut_name matches exactly.
func (q *Query) ForSUT(name string) *Query {
	if name == "" {
		q.setErr(fmt.Errorf("%w: sut name cannot be empty", ErrInvalidParameter))
		return q
	}
	return q.addSessionFilter(func(s *models.TestSession) bool {
		return s.SUTName == name
	})
}

// InLastDays keeps sessions started within the last n days. n=0 matches only
// sessions starting at or after the current instant, which is effectively
// nothing.
func (q *Query) InLastDays(n int) *Query {
	return q.inLast(n, 24*time.Hour, "days")
}

func (q *Query) InLastHours(n int) *Query {
	return q.inLast(n, time.Hour, "hours")
}

func (q *Query) InLastMinutes(n int) *Query {
	return q.inLast(n, time.Minute, "minutes")
}

func (q *Query) inLast(n int, unit time.Duration, unitName string) *Query {
	if n < 0 {
		q.setErr(fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidParameter, unitName, n))
		return q
	}
	cutoff := q.now().UTC().Add(-time.Duration(n) * unit)
	return q.addSessionFilter(func(s *models.TestSession) bool {
		return !s.SessionStartTime.Before(cutoff)
	})
}

// DateRange keeps sessions started within [start, end], inclusive.
func (q *Query) DateRange(start, end time.Time) *Query {
	if end.Before(start) {
		q.setErr(fmt.Errorf("%w: date range end precedes start", ErrInvalidParameter))
		return q
	}
	start, end = start.UTC(), end.UTC()
	return q.addSessionFilter(func(s *models.TestSession) bool {
		return !s.SessionStartTime.Before(start) && !s.SessionStartTime.After(end)
	})
}

// After keeps sessions started strictly after t.
func (q *Query) After(t time.Time) *Query {
	t = t.UTC()
	return q.addSessionFilter(func(s *models.TestSession) bool {
		return s.SessionStartTime.After(t)
	})
}

// Before keeps sessions started strictly before t.
func (q *Query) Before(t time.Time) *Query {
	t = t.UTC()
	return q.addSessionFilter(func(s *models.TestSession) bool {
		return s.SessionStartTime.Before(t)
	})
}

// WithSessionIDPattern keeps sessions whose id matches a shell glob, e.g.
// "base-*". Comparison selects its base/target halves with this.
func (q *Query) WithSessionIDPattern(pattern string) *Query {
	if pattern == "" {
		q.setErr(fmt.Errorf("%w: session id pattern cannot be empty", ErrInvalidParameter))
		return q
	}
	if _, err := path.Match(pattern, "probe"); err != nil {
		q.setErr(fmt.Errorf("%w: malformed session id pattern %q", ErrInvalidParameter, pattern))
		return q
	}
	return q.addSessionFilter(func(s *models.TestSession) bool {
		ok, _ := path.Match(pattern, s.SessionID)
		return ok
	})
}

// WithSessionTag keeps sessions carrying the exact tag pair.
func (q *Query) WithSessionTag(key, value string) *Query {
	if key == "" {
		q.setErr(fmt.Errorf("%w: session tag key cannot be empty", ErrInvalidParameter))
		return q
	}
	return q.addSessionFilter(func(s *models.TestSession) bool {
		v, ok := s.Tag(key)
		return ok && v == value
	})
}

// WithReruns keeps sessions that do (or do not) contain rerun groups.
func (q *Query) WithReruns(present bool) *Query {
	return q.addSessionFilter(func(s *models.TestSession) bool {
		return s.HasReruns() == present
	})
}

// WithOutcome is shorthand for a single-predicate test scope.
func (q *Query) WithOutcome(outcome models.TestOutcome) *Query {
	return q.FilterByTest().WithOutcome(outcome).Apply()
}

// WithWarning is shorthand for a single-predicate test scope.
func (q *Query) WithWarning() *Query {
	return q.FilterByTest().WithWarning().Apply()
}

// TestNodeIDContains is shorthand for a single-predicate test scope.
func (q *Query) TestNodeIDContains(substr string) *Query {
	return q.FilterByTest().WithNodeIDContaining(substr).Apply()
}

// FilterByTest transitions to test scope.
func (q *Query) FilterByTest() *TestFilter {
	return &TestFilter{query: q}
}

// Execute loads the store's current contents and applies the accumulated
// filters. It is idempotent and never mutates stored sessions.
func (q *Query) Execute(ctx context.Context) ([]*models.TestSession, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.store == nil {
		return nil, fmt.Errorf("%w: query has no storage to execute against", ErrInvalidParameter)
	}

	sessions, err := q.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return q.run(sessions)
}

// ExecuteOn applies the accumulated filters to an explicitly supplied
// collection instead of the store.
func (q *Query) ExecuteOn(sessions []*models.TestSession) ([]*models.TestSession, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.run(sessions)
}

func (q *Query) run(sessions []*models.TestSession) ([]*models.TestSession, error) {
	result := make([]*models.TestSession, 0, len(sessions))

	for _, session := range sessions {
		if !q.matchesSession(session) {
			continue
		}
		if len(q.testFilters) == 0 {
			result = append(result, session)
			continue
		}
		if narrowed, ok := q.narrowSession(session); ok {
			result = append(result, narrowed)
		}
	}

	q.log.WithFields(logrus.Fields{
		"input":   len(sessions),
		"matched": len(result),
	}).Debug("query executed")
	return result, nil
}

func (q *Query) matchesSession(s *models.TestSession) bool {
	for _, pred := range q.sessionFilters {
		if !pred(s) {
			return false
		}
	}
	return true
}

// narrowSession rebuilds a session around the test results matching every
// test-scope predicate. The original session is left untouched; identity and
// metadata carry over, and rerun groups are trimmed to nodeids that survived.
func (q *Query) narrowSession(s *models.TestSession) (*models.TestSession, bool) {
	var matched []*models.TestResult
	for _, r := range s.TestResults {
		if q.matchesTest(r) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return nil, false
	}

	retained := make(map[string]bool, len(matched))
	for _, r := range matched {
		retained[r.NodeID] = true
	}
	var groups []*models.RerunTestGroup
	for _, g := range s.RerunTestGroups {
		if retained[g.NodeID] {
			groups = append(groups, g)
		}
	}

	narrowed := *s
	narrowed.TestResults = matched
	narrowed.RerunTestGroups = groups
	return &narrowed, true
}

func (q *Query) matchesTest(r *models.TestResult) bool {
	for _, pred := range q.testFilters {
		if !pred(r) {
			return false
		}
	}
	return true
}
