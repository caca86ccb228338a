package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/adalundhe/recall/core/backup"
	"github.com/adalundhe/recall/core/storage"
)

// DefaultLockTimeout bounds writer lock acquisition.
const DefaultLockTimeout = 5 * time.Second

// Store is the storage engine: atomic read-modify-write of the unified
// store document, serialized across processes by an advisory lock.
//
// Read never takes the lock; Mutate holds it only for the strictly bounded
// load-transform-write-rename sequence. No network or subprocess work
// happens inside the critical section.
type Store struct {
	paths       storage.Paths
	lock        *AdvisoryLock
	backups     *backup.Manager
	lockTimeout time.Duration

	mu       sync.Mutex
	recovery *RecoveryNotice
}

// New builds a storage engine rooted at paths. backups is both the
// pre-write snapshot sink and the recovery source for corrupt documents.
func New(paths storage.Paths, backups *backup.Manager, lockTimeout time.Duration) (*Store, error) {
	if err := paths.EnsureLayout(); err != nil {
		return nil, fmt.Errorf("ensure store layout: %w", err)
	}

	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	lock, err := NewAdvisoryLock(paths.LockDir(), paths.StoreName)
	if err != nil {
		return nil, err
	}

	return &Store{
		paths:       paths,
		lock:        lock,
		backups:     backups,
		lockTimeout: lockTimeout,
	}, nil
}

// Path returns the unified store document path.
func (s *Store) Path() string {
	return s.paths.StoreFile()
}

// Paths returns the on-disk layout the engine operates on.
func (s *Store) Paths() storage.Paths {
	return s.paths
}

// Read returns the current envelope without taking the write lock. A
// missing file yields an empty envelope; a corrupt file is recovered in
// memory from the newest valid backup (or reinitialized) without touching
// disk — the next Mutate persists the recovered state.
func (s *Store) Read(ctx context.Context) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env, _, err := s.load()
	return env, err
}

// Mutate applies fn to the current envelope under the cross-process lock
// and atomically replaces the store document with the result. The prior
// on-disk content is snapshotted to the backup directory before the write;
// retention is enforced only after the new content is durable.
func (s *Store) Mutate(ctx context.Context, fn func(*Envelope) error) (*Envelope, error) {
	if err := s.lock.Acquire(ctx, s.lockTimeout); err != nil {
		return nil, err
	}
	defer s.lock.Release()

	env, onDiskValid, err := s.load()
	if err != nil {
		return nil, err
	}

	if onDiskValid && s.backups != nil {
		if _, err := s.backups.Snapshot(s.paths.StoreFile()); err != nil {
			return nil, fmt.Errorf("pre-write snapshot: %w", err)
		}
	}

	if err := fn(env); err != nil {
		return nil, err
	}

	// schema_version is monotonically non-decreasing.
	if env.SchemaVersion < SchemaVersion {
		env.SchemaVersion = SchemaVersion
	}
	env.Metadata.LastModified = time.Now().UTC()

	if err := s.writeAtomic(env); err != nil {
		return nil, err
	}

	if s.backups != nil {
		if err := s.backups.EnforceRetention(); err != nil {
			return env, fmt.Errorf("retention cleanup: %w", err)
		}
	}

	return env, nil
}

// LastRecovery returns the most recent corruption recovery performed by
// this handle, or nil. Recoveries are warnings, never hard failures.
func (s *Store) LastRecovery() *RecoveryNotice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recovery
}

// load reads the document. onDiskValid reports whether the on-disk bytes
// parsed cleanly; a recovered or synthesized envelope returns false so the
// caller does not snapshot corrupt content into the backup rotation.
func (s *Store) load() (*Envelope, bool, error) {
	data, err := os.ReadFile(s.paths.StoreFile())
	if os.IsNotExist(err) {
		return NewEnvelope(), false, nil
	}
	if err != nil {
		return nil, false, err
	}

	env, err := decodeEnvelope(data)
	if err == nil {
		return env, true, nil
	}

	cause := &CorruptFileError{Path: s.paths.StoreFile(), Err: err}
	notice := &RecoveryNotice{At: time.Now().UTC(), Cause: cause}

	if s.backups != nil {
		recovered, name, berr := s.backups.LatestValid(ValidateDocument)
		if berr == nil && recovered != nil {
			env, derr := decodeEnvelope(recovered)
			if derr == nil {
				notice.FromBackup = name
				s.setRecovery(notice)
				return env, false, nil
			}
		}
	}

	s.setRecovery(notice)
	return NewEnvelope(), false, nil
}

func (s *Store) setRecovery(n *RecoveryNotice) {
	s.mu.Lock()
	s.recovery = n
	s.mu.Unlock()
}

// writeAtomic serializes env to a temp file in the store directory, syncs
// it, then renames it over the document so readers only ever observe a
// fully-written file.
func (s *Store) writeAtomic(env *Envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.paths.Root, s.paths.StoreName+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.paths.StoreFile()); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// ValidateDocument reports whether data parses as a well-formed envelope.
// Used to probe backup snapshots during corruption recovery.
func ValidateDocument(data []byte) error {
	_, err := decodeEnvelope(data)
	return err
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.SchemaVersion < 1 {
		return nil, fmt.Errorf("missing or invalid schema_version")
	}
	if env.SkillEffectiveness == nil {
		env.SkillEffectiveness = make(map[string]*SkillEffectiveness)
	}
	if env.AgentEffectiveness == nil {
		env.AgentEffectiveness = make(map[string]*AgentPerformance)
	}
	if env.Patterns == nil {
		env.Patterns = []Pattern{}
	}
	if env.QualityHistory == nil {
		env.QualityHistory = []QualityAssessment{}
	}
	return &env, nil
}
