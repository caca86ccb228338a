package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/adalundhe/recall/core/backup"
	"github.com/adalundhe/recall/core/storage"
)

func newTestStore(t *testing.T, lockTimeout time.Duration) (*Store, storage.Paths) {
	t.Helper()

	paths := storage.NewPaths(t.TempDir(), "")
	backups := backup.NewManager(paths.BackupDir(), paths.StoreName, 10)

	st, err := New(paths, backups, lockTimeout)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return st, paths
}

func testPattern(id, taskType string) Pattern {
	return Pattern{
		ID:        id,
		TaskType:  taskType,
		Outcome:   Outcome{Success: true, QualityScore: 80},
		CreatedAt: time.Now().UTC(),
	}
}

func TestReadMissingFileReturnsEmptyEnvelope(t *testing.T) {
	st, _ := newTestStore(t, 0)

	env, err := st.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if env.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", env.SchemaVersion, SchemaVersion)
	}
	if len(env.Patterns) != 0 {
		t.Errorf("expected empty patterns, got %d", len(env.Patterns))
	}
}

func TestMutatePersistsAtomically(t *testing.T) {
	st, paths := newTestStore(t, 0)

	_, err := st.Mutate(context.Background(), func(env *Envelope) error {
		env.Patterns = append(env.Patterns, testPattern("p1", "refactoring"))
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	data, err := os.ReadFile(paths.StoreFile())
	if err != nil {
		t.Fatalf("store file not written: %v", err)
	}
	if err := ValidateDocument(data); err != nil {
		t.Fatalf("store file invalid: %v", err)
	}

	env, err := st.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if env.FindPattern("p1") == nil {
		t.Error("pattern p1 not persisted")
	}
	if env.Metadata.LastModified.IsZero() {
		t.Error("last_modified not set")
	}
}

func TestMutateFnErrorLeavesStoreUntouched(t *testing.T) {
	st, _ := newTestStore(t, 0)

	if _, err := st.Mutate(context.Background(), func(env *Envelope) error {
		env.Patterns = append(env.Patterns, testPattern("p1", "refactoring"))
		return nil
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	wantErr := errors.New("caller rejected")
	_, err := st.Mutate(context.Background(), func(env *Envelope) error {
		env.Patterns = nil
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected caller error, got %v", err)
	}

	env, err := st.Read(context.Background())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(env.Patterns) != 1 {
		t.Errorf("store changed despite failed mutate: %d patterns", len(env.Patterns))
	}
}

func TestSchemaVersionMonotonic(t *testing.T) {
	st, _ := newTestStore(t, 0)

	env, err := st.Mutate(context.Background(), func(env *Envelope) error {
		env.SchemaVersion = 1
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if env.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %d, want %d", env.SchemaVersion, SchemaVersion)
	}
}

func TestConcurrentMutators(t *testing.T) {
	paths := storage.NewPaths(t.TempDir(), "")
	backups := backup.NewManager(paths.BackupDir(), paths.StoreName, 100)

	const writers = 50

	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			// Separate handles: each goroutine contends through flock,
			// exactly like independent processes would.
			st, err := New(paths, backups, 60*time.Second)
			if err != nil {
				errs <- err
				return
			}

			_, err = st.Mutate(context.Background(), func(env *Envelope) error {
				env.Patterns = append(env.Patterns, testPattern(fmt.Sprintf("p%d", n), "testing"))
				return nil
			})
			if err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent mutate failed: %v", err)
	}

	data, err := os.ReadFile(paths.StoreFile())
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if err := ValidateDocument(data); err != nil {
		t.Fatalf("store corrupted by concurrent writers: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(env.Patterns) != writers {
		t.Errorf("patterns = %d, want %d (lost writes)", len(env.Patterns), writers)
	}

	seen := make(map[string]bool)
	for _, p := range env.Patterns {
		if seen[p.ID] {
			t.Errorf("duplicate pattern id %s", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestLockTimeout(t *testing.T) {
	st, paths := newTestStore(t, 200*time.Millisecond)

	holder, err := NewAdvisoryLock(paths.LockDir(), paths.StoreName)
	if err != nil {
		t.Fatalf("NewAdvisoryLock failed: %v", err)
	}
	if err := holder.Acquire(context.Background(), time.Second); err != nil {
		t.Fatalf("holder acquire failed: %v", err)
	}
	defer holder.Release()

	_, err = st.Mutate(context.Background(), func(env *Envelope) error { return nil })
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}

	var lte *LockTimeoutError
	if !errors.As(err, &lte) {
		t.Fatalf("expected *LockTimeoutError, got %T", err)
	}
}

func TestCorruptionRecoveredFromBackup(t *testing.T) {
	st, paths := newTestStore(t, 0)
	ctx := context.Background()

	if _, err := st.Mutate(ctx, func(env *Envelope) error {
		env.Patterns = append(env.Patterns, testPattern("p1", "refactoring"))
		return nil
	}); err != nil {
		t.Fatalf("first mutate: %v", err)
	}
	// Second write snapshots the one-pattern state into backups/.
	if _, err := st.Mutate(ctx, func(env *Envelope) error {
		env.Patterns = append(env.Patterns, testPattern("p2", "testing"))
		return nil
	}); err != nil {
		t.Fatalf("second mutate: %v", err)
	}

	if err := os.WriteFile(paths.StoreFile(), []byte(`{"schema_version": 2, "patterns": [{"id":`), 0644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	env, err := st.Read(ctx)
	if err != nil {
		t.Fatalf("Read after corruption: %v", err)
	}
	if env.FindPattern("p1") == nil {
		t.Error("backup content not recovered")
	}

	notice := st.LastRecovery()
	if notice == nil {
		t.Fatal("expected recovery notice")
	}
	if notice.FromBackup == "" {
		t.Error("expected recovery from a backup, got reinitialization")
	}
	if !errors.Is(notice.Cause, ErrCorruptFile) {
		t.Errorf("cause = %v, want ErrCorruptFile", notice.Cause)
	}

	// A mutate after corruption persists the recovered state.
	if _, err := st.Mutate(ctx, func(env *Envelope) error { return nil }); err != nil {
		t.Fatalf("mutate after corruption: %v", err)
	}
	data, err := os.ReadFile(paths.StoreFile())
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if err := ValidateDocument(data); err != nil {
		t.Fatalf("store still corrupt after mutate: %v", err)
	}
}

func TestCorruptionReinitializesWithoutBackups(t *testing.T) {
	st, paths := newTestStore(t, 0)

	if err := os.MkdirAll(paths.Root, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.StoreFile(), []byte("not json at all"), 0644); err != nil {
		t.Fatal(err)
	}

	env, err := st.Read(context.Background())
	if err != nil {
		t.Fatalf("Read should recover, got %v", err)
	}
	if len(env.Patterns) != 0 {
		t.Errorf("expected empty envelope, got %d patterns", len(env.Patterns))
	}

	notice := st.LastRecovery()
	if notice == nil {
		t.Fatal("expected recovery notice")
	}
	if notice.FromBackup != "" {
		t.Errorf("expected reinitialization, got recovery from %s", notice.FromBackup)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		pattern Pattern
		wantErr bool
	}{
		{"valid", testPattern("p1", "refactoring"), false},
		{"missing task type", Pattern{Outcome: Outcome{QualityScore: 50}}, true},
		{"quality out of range", Pattern{TaskType: "x", Outcome: Outcome{QualityScore: 101}}, true},
		{"negative reuse", Pattern{TaskType: "x", ReuseCount: -1}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.pattern.Validate()
			if tc.wantErr && !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	qa := QualityAssessment{
		TaskType:     "refactoring",
		OverallScore: 90,
		Breakdown:    map[string]float64{"correctness": 50, "style": 30},
	}
	if err := qa.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("breakdown not summing to overall should fail, got %v", err)
	}

	qa.Breakdown["style"] = 40
	if err := qa.Validate(); err != nil {
		t.Errorf("valid assessment rejected: %v", err)
	}
}
