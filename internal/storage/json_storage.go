package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"pytest-insight/internal/models"
)

const sessionFileMode = 0644

// sessionsFile is the on-disk envelope, shared with the pytest plugin's
// output format.
type sessionsFile struct {
	Sessions []*models.TestSession `json:"sessions"`
}

// JSONStorage persists sessions in a single flat JSON file. Writes take a
// cross-process file lock and land via temp-file-plus-rename, so readers
// always observe a complete document. A corrupted file is quarantined to
// <path>.bak and treated as empty; losing history beats refusing to start.
type JSONStorage struct {
	path string
	lock *flock.Flock
	log  logrus.FieldLogger
}

func NewJSONStorage(path string, log logrus.FieldLogger) *JSONStorage {
	return &JSONStorage{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  log.WithField("component", "json-storage"),
	}
}

// Path returns the location of the backing file.
func (s *JSONStorage) Path() string { return s.path }

func (s *JSONStorage) LoadAll(ctx context.Context) ([]*models.TestSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read()
}

func (s *JSONStorage) Save(ctx context.Context, session *models.TestSession) error {
	return s.SaveMany(ctx, []*models.TestSession{session})
}

func (s *JSONStorage) SaveMany(ctx context.Context, sessions []*models.TestSession) error {
	if len(sessions) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	return s.writeAtomic(append(current, sessions...))
}

func (s *JSONStorage) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	return s.writeAtomic([]*models.TestSession{})
}

func (s *JSONStorage) acquireLock() (func(), error) {
	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to acquire storage lock %s: %w", s.lock.Path(), err)
	}
	return func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.WithError(err).Warn("failed to release storage lock")
		}
	}, nil
}

func (s *JSONStorage) read() ([]*models.TestSession, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []*models.TestSession{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session store %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return []*models.TestSession{}, nil
	}

	var file sessionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return s.quarantine(err)
	}
	if file.Sessions == nil {
		return []*models.TestSession{}, nil
	}
	return file.Sessions, nil
}

// quarantine moves a corrupted store aside and starts over empty.
func (s *JSONStorage) quarantine(cause error) ([]*models.TestSession, error) {
	backup := s.path + ".bak"
	if err := os.Rename(s.path, backup); err != nil {
		return nil, fmt.Errorf("session store %s is corrupted (%v) and could not be quarantined: %w", s.path, cause, err)
	}
	s.log.WithError(cause).Warnf("session store was corrupted, moved to %s", backup)
	return []*models.TestSession{}, nil
}

func (s *JSONStorage) writeAtomic(sessions []*models.TestSession) error {
	data, err := json.MarshalIndent(sessionsFile{Sessions: sessions}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session store: %w", err)
	}
	return writeAtomicFile(s.path, data, sessionFileMode)
}
