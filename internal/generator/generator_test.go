package generator

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pytest-insight/internal/models"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Days = 3
	opts.SessionsPerDay = 2
	opts.Seed = 42
	opts.Now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return opts
}

func newTestGenerator(t *testing.T, opts Options) *Generator {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	g, err := New(opts, logger)
	require.NoError(t, err)
	return g
}

func TestGenerateProducesValidSessions(t *testing.T) {
	sessions := newTestGenerator(t, testOptions()).Generate()

	require.NotEmpty(t, sessions)
	for _, s := range sessions {
		require.NoError(t, s.Validate(), "session %s", s.SessionID)
		assert.NotEmpty(t, s.TestResults)
		assert.Equal(t, time.UTC, s.SessionStartTime.Location())
	}
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	first := newTestGenerator(t, testOptions()).Generate()
	second := newTestGenerator(t, testOptions()).Generate()

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].SessionID, second[i].SessionID)
		assert.Equal(t, len(first[i].TestResults), len(second[i].TestResults))
	}
}

func TestGenerateProducesBaseTargetPairs(t *testing.T) {
	sessions := newTestGenerator(t, testOptions()).Generate()

	var base, target int
	for _, s := range sessions {
		switch {
		case len(s.SessionID) > 5 && s.SessionID[:5] == "base-":
			base++
		case len(s.SessionID) > 7 && s.SessionID[:7] == "target-":
			target++
		}
	}
	assert.Equal(t, base, target)
	assert.Positive(t, base)
}

func TestGenerateRerunGroupsKeepInvariant(t *testing.T) {
	opts := testOptions()
	opts.FlakyRate = 0.25 // guarantee some rerun chains over 3 days
	sessions := newTestGenerator(t, opts).Generate()

	sawGroup := false
	for _, s := range sessions {
		for _, g := range s.RerunTestGroups {
			sawGroup = true
			require.NotEmpty(t, g.Tests)
			for _, attempt := range g.Tests {
				assert.Equal(t, g.NodeID, attempt.NodeID)
			}
			last := g.Tests[len(g.Tests)-1]
			assert.NotEqual(t, models.OutcomeRerun, last.Outcome)
		}
	}
	assert.True(t, sawGroup)
}

func TestGenerateSUTFilter(t *testing.T) {
	opts := testOptions()
	opts.SUTFilter = "api-service"
	sessions := newTestGenerator(t, opts).Generate()

	require.NotEmpty(t, sessions)
	for _, s := range sessions {
		assert.Equal(t, "api-service", s.SUTName)
	}
}

func TestGenerateCategoryFilter(t *testing.T) {
	opts := testOptions()
	opts.Categories = []string{"api"}
	sessions := newTestGenerator(t, opts).Generate()

	for _, s := range sessions {
		for _, r := range s.TestResults {
			assert.Contains(t, r.NodeID, "test_api/")
		}
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"ZeroDays", func(o *Options) { o.Days = 0 }},
		{"ZeroSessionsPerDay", func(o *Options) { o.SessionsPerDay = 0 }},
		{"PassRateAboveOne", func(o *Options) { o.PassRate = 1.5 }},
		{"UnknownCategory", func(o *Options) { o.Categories = []string{"bogus"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.mutate(&opts)
			_, err := New(opts, logger)
			assert.Error(t, err)
		})
	}
}
