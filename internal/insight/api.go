// Package insight is the toolkit's entry facade: one explicitly constructed
// object owning a storage backend and a logger, handing out the query,
// comparison, analysis and insights engines. CLI commands and REST handlers
// receive an API instead of reaching for package-level state.
package insight

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"pytest-insight/internal/analysis"
	"pytest-insight/internal/comparison"
	"pytest-insight/internal/insights"
	"pytest-insight/internal/models"
	"pytest-insight/internal/query"
	"pytest-insight/internal/storage"
)

type API struct {
	store storage.SessionStorage
	log   logrus.FieldLogger
}

func New(store storage.SessionStorage, log logrus.FieldLogger) *API {
	return &API{store: store, log: log}
}

// FromProfile builds an API over the storage a profile points at. An empty
// name selects the active profile.
func FromProfile(profiles *storage.ProfileManager, name string, log logrus.FieldLogger) (*API, error) {
	store, err := profiles.StorageFor(name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve profile storage: %w", err)
	}
	return New(store, log), nil
}

// Storage exposes the backing store for ingestion and maintenance paths.
func (a *API) Storage() storage.SessionStorage { return a.store }

// Query starts a fresh session-scope query against the store.
func (a *API) Query() *query.Query {
	return query.New(a.store, a.log)
}

// Compare starts a fresh comparison builder against the store.
func (a *API) Compare() *comparison.Comparison {
	return comparison.New(a.store, a.log)
}

// Analyzer builds an analysis engine.
func (a *API) Analyzer(opts ...analysis.Option) *analysis.Analyzer {
	return analysis.New(a.log, opts...)
}

// Insights builds reports over an already-filtered session set.
func (a *API) Insights(sessions []*models.TestSession) *insights.Insights {
	return insights.New(a.Analyzer(), sessions, a.log)
}

// LoadSessions is a convenience for callers that need the raw collection.
func (a *API) LoadSessions(ctx context.Context) ([]*models.TestSession, error) {
	return a.store.LoadAll(ctx)
}
