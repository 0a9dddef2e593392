// Package resultstore persists meeting reports as JSON documents, one file
// per task, guarded by an advisory file lock so the daemon and CLI can share
// the directory.
package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"minutes/internal/report"
	"minutes/internal/services"
)

const (
	lockFileName   = ".results.lock"
	fileExt        = ".json"
	lockRetryDelay = 25 * time.Millisecond
)

// Store reads and writes reports under a directory.
type Store struct {
	dir string
	// mu serializes access within the process; flock only arbitrates
	// between processes.
	mu   sync.Mutex
	lock *flock.Flock
}

// Open prepares dir for use, creating it when missing.
func Open(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("resultstore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	return &Store{dir: dir, lock: flock.New(filepath.Join(dir, lockFileName))}, nil
}

// Dir reports the directory reports are written to.
func (s *Store) Dir() string { return s.dir }

// Save writes the report for id, replacing any previous one.
func (s *Store) Save(ctx context.Context, id string, rep *report.MeetingReport) error {
	if rep == nil {
		return errors.New("resultstore: nil report")
	}
	path, err := s.pathFor(id)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrPersistence, "", "save result", "encode report", err)
	}

	unlock, err := s.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(s.dir, "."+id+"-*.tmp")
	if err != nil {
		return services.Wrap(services.ErrPersistence, "", "save result", "create temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return services.Wrap(services.ErrPersistence, "", "save result", "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return services.Wrap(services.ErrPersistence, "", "save result", "sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return services.Wrap(services.ErrPersistence, "", "save result", "close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return services.Wrap(services.ErrPersistence, "", "save result", "rename into place", err)
	}
	return nil
}

// Load reads the report for id. A missing report matches services.ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (*report.MeetingReport, error) {
	path, err := s.pathFor(id)
	if err != nil {
		return nil, err
	}
	unlock, err := s.acquire(ctx, false)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "", "load result", "no result for "+id, nil)
		}
		return nil, services.Wrap(services.ErrPersistence, "", "load result", "read file", err)
	}
	var rep report.MeetingReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "", "load result", "decode "+filepath.Base(path), err)
	}
	return &rep, nil
}

// PruneOlderThan deletes reports last written before cutoff and returns how
// many were removed.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	unlock, err := s.acquire(ctx, true)
	if err != nil {
		return 0, err
	}
	defer unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, services.Wrap(services.ErrPersistence, "", "prune results", "read directory", err)
	}
	removed := 0
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, services.Wrap(services.ErrPersistence, "", "prune results", "remove files", errors.Join(errs...))
	}
	return removed, nil
}

func (s *Store) pathFor(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", services.Wrap(services.ErrValidation, "", "result path", fmt.Sprintf("invalid task id %q", id), nil)
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

func (s *Store) acquire(ctx context.Context, exclusive bool) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		s.mu.Unlock()
		return nil, services.Wrap(services.ErrPersistence, "", "results lock", "acquire", err)
	}
	if !locked {
		s.mu.Unlock()
		return nil, services.Wrap(services.ErrPersistence, "", "results lock", "not acquired", nil)
	}
	return func() {
		_ = s.lock.Unlock()
		s.mu.Unlock()
	}, nil
}
