package query

import (
	"fmt"
	"strings"
	"time"

	"pytest-insight/internal/models"
)

// TestFilter is the test-scope half of the builder, entered via
// Query.FilterByTest. Predicates here apply to individual test results and
// are AND-combined. Apply returns to session scope.
type TestFilter struct {
	query *Query
}

func (f *TestFilter) add(p testPredicate) *TestFilter {
	f.query.testFilters = append(f.query.testFilters, p)
	return f
}

// WithOutcome keeps results with the given outcome.
func (f *TestFilter) WithOutcome(outcome models.TestOutcome) *TestFilter {
	if !outcome.Valid() {
		f.query.setErr(fmt.Errorf("%w: invalid outcome %q", ErrInvalidParameter, outcome))
		return f
	}
	return f.add(func(r *models.TestResult) bool {
		return r.Outcome == outcome
	})
}

// WithDurationBetween keeps results whose duration falls within [min, max]
// seconds, inclusive.
func (f *TestFilter) WithDurationBetween(minSecs, maxSecs float64) *TestFilter {
	if minSecs < 0 {
		f.query.setErr(fmt.Errorf("%w: minimum duration must not be negative, got %v", ErrInvalidParameter, minSecs))
		return f
	}
	if maxSecs < minSecs {
		f.query.setErr(fmt.Errorf("%w: maximum duration %v precedes minimum %v", ErrInvalidParameter, maxSecs, minSecs))
		return f
	}
	lo := time.Duration(minSecs * float64(time.Second))
	hi := time.Duration(maxSecs * float64(time.Second))
	return f.add(func(r *models.TestResult) bool {
		return r.Duration >= lo && r.Duration <= hi
	})
}

// WithNodeIDContaining keeps results whose nodeid contains the substring.
func (f *TestFilter) WithNodeIDContaining(substr string) *TestFilter {
	if substr == "" {
		f.query.setErr(fmt.Errorf("%w: nodeid substring cannot be empty", ErrInvalidParameter))
		return f
	}
	return f.add(func(r *models.TestResult) bool {
		return strings.Contains(r.NodeID, substr)
	})
}

// WithOutputContaining searches all captured output streams.
func (f *TestFilter) WithOutputContaining(s string) *TestFilter {
	if s == "" {
		f.query.setErr(fmt.Errorf("%w: output substring cannot be empty", ErrInvalidParameter))
		return f
	}
	return f.add(func(r *models.TestResult) bool {
		return strings.Contains(r.Caplog, s) ||
			strings.Contains(r.Capstdout, s) ||
			strings.Contains(r.Capstderr, s)
	})
}

// WithErrorContaining searches the failure representation text.
func (f *TestFilter) WithErrorContaining(s string) *TestFilter {
	if s == "" {
		f.query.setErr(fmt.Errorf("%w: error substring cannot be empty", ErrInvalidParameter))
		return f
	}
	return f.add(func(r *models.TestResult) bool {
		return strings.Contains(r.LongreprText, s)
	})
}

// WithLogContaining searches captured log output only.
func (f *TestFilter) WithLogContaining(s string) *TestFilter {
	if s == "" {
		f.query.setErr(fmt.Errorf("%w: log substring cannot be empty", ErrInvalidParameter))
		return f
	}
	return f.add(func(r *models.TestResult) bool {
		return strings.Contains(r.Caplog, s)
	})
}

// WithStdoutContaining searches captured stdout only.
func (f *TestFilter) WithStdoutContaining(s string) *TestFilter {
	if s == "" {
		f.query.setErr(fmt.Errorf("%w: stdout substring cannot be empty", ErrInvalidParameter))
		return f
	}
	return f.add(func(r *models.TestResult) bool {
		return strings.Contains(r.Capstdout, s)
	})
}

// WithStderrContaining searches captured stderr only.
func (f *TestFilter) WithStderrContaining(s string) *TestFilter {
	if s == "" {
		f.query.setErr(fmt.Errorf("%w: stderr substring cannot be empty", ErrInvalidParameter))
		return f
	}
	return f.add(func(r *models.TestResult) bool {
		return strings.Contains(r.Capstderr, s)
	})
}

// WithWarning keeps results that raised a warning.
func (f *TestFilter) WithWarning() *TestFilter {
	return f.add(func(r *models.TestResult) bool {
		return r.HasWarning
	})
}

// WithPredicate installs a custom predicate. The predicate must not retain
// or mutate the result it inspects.
func (f *TestFilter) WithPredicate(p func(*models.TestResult) bool) *TestFilter {
	if p == nil {
		f.query.setErr(fmt.Errorf("%w: test predicate cannot be nil", ErrInvalidParameter))
		return f
	}
	return f.add(p)
}

// Apply closes the test scope and returns to session scope.
func (f *TestFilter) Apply() *Query {
	return f.query
}
