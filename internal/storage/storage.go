package storage

import (
	"context"
	"errors"

	"pytest-insight/internal/models"
)

// Storage type identifiers used by profiles.
const (
	TypeJSON   = "json"
	TypeMemory = "memory"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
	ErrActiveProfile   = errors.New("profile is currently active")
)

// SessionStorage is the single seam between the analytics engines and
// persisted test history. Engines and presentation layers never open files
// themselves; they load a snapshot, operate on it in memory, and append new
// sessions through this interface.
type SessionStorage interface {
	// LoadAll returns every stored session in insertion order. A missing or
	// empty store yields an empty slice, not an error.
	LoadAll(ctx context.Context) ([]*models.TestSession, error)

	// Save appends a single session.
	Save(ctx context.Context, session *models.TestSession) error

	// SaveMany appends a batch of sessions in one write.
	SaveMany(ctx context.Context, sessions []*models.TestSession) error

	// Clear removes all stored sessions.
	Clear(ctx context.Context) error
}
