package store

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for errors.Is checks across package boundaries.
var (
	ErrLockTimeout    = errors.New("lock acquisition timeout")
	ErrCorruptFile    = errors.New("store file corrupt")
	ErrSchemaMismatch = errors.New("schema version mismatch")
	ErrValidation     = errors.New("validation failed")
)

// LockTimeoutError reports a writer that could not acquire the store lock
// within its bounded timeout. Transient: the caller may retry; state is
// never corrupted by a timed-out acquisition.
type LockTimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock on %s not acquired within %s", e.Path, e.Timeout)
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// CorruptFileError reports a store document that failed to parse. The
// engine recovers from it automatically; it surfaces only inside a
// RecoveryNotice, never as a hard failure to the caller.
type CorruptFileError struct {
	Path string
	Err  error
}

func (e *CorruptFileError) Error() string {
	return fmt.Sprintf("corrupt store file %s: %v", e.Path, e.Err)
}

func (e *CorruptFileError) Unwrap() error { return ErrCorruptFile }

// SchemaVersionError reports a store whose unification from legacy
// fragments could not complete. Legacy sources are left untouched when
// this is returned.
type SchemaVersionError struct {
	Found int
	Want  int
	Err   error
}

func (e *SchemaVersionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema migration from v%d to v%d failed: %v", e.Found, e.Want, e.Err)
	}
	return fmt.Sprintf("schema version %d, want %d", e.Found, e.Want)
}

func (e *SchemaVersionError) Unwrap() error { return ErrSchemaMismatch }

// ValidationError reports a malformed record rejected at the API boundary
// before any write is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// RecoveryNotice records a corruption recovery performed by the engine.
type RecoveryNotice struct {
	At         time.Time
	FromBackup string // empty when the store was reinitialized empty
	Cause      error
}

func (n *RecoveryNotice) String() string {
	if n.FromBackup != "" {
		return fmt.Sprintf("recovered store from backup %s: %v", n.FromBackup, n.Cause)
	}
	return fmt.Sprintf("reinitialized empty store: %v", n.Cause)
}
