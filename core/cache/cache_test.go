package cache

import (
	"context"
	"testing"
	"time"

	"github.com/adalundhe/recall/core/backup"
	"github.com/adalundhe/recall/core/storage"
	"github.com/adalundhe/recall/core/store"
)

func newCached(t *testing.T, ttl time.Duration) *CachedStore {
	t.Helper()

	paths := storage.NewPaths(t.TempDir(), "")
	backups := backup.NewManager(paths.BackupDir(), paths.StoreName, 10)

	st, err := store.New(paths, backups, 0)
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}

	c, err := New(st, ttl)
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestReadCachesWithinTTL(t *testing.T) {
	c := newCached(t, time.Minute)
	ctx := context.Background()

	if _, err := c.Read(ctx); err != nil {
		t.Fatalf("first read: %v", err)
	}
	if _, err := c.Read(ctx); err != nil {
		t.Fatalf("second read: %v", err)
	}

	stats := c.Stats()
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
	if stats.Hits != 1 {
		t.Errorf("hits = %d, want 1", stats.Hits)
	}
}

func TestTTLExpiryForcesReload(t *testing.T) {
	c := newCached(t, 50*time.Millisecond)
	ctx := context.Background()

	if _, err := c.Read(ctx); err != nil {
		t.Fatal(err)
	}

	time.Sleep(120 * time.Millisecond)

	if _, err := c.Read(ctx); err != nil {
		t.Fatal(err)
	}

	if stats := c.Stats(); stats.Misses != 2 {
		t.Errorf("misses = %d, want 2 after TTL expiry", stats.Misses)
	}
}

func TestMutateRefreshesCachedEnvelope(t *testing.T) {
	c := newCached(t, time.Minute)
	ctx := context.Background()

	if _, err := c.Read(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Mutate(ctx, func(env *store.Envelope) error {
		env.Patterns = append(env.Patterns, store.Pattern{
			ID: "p1", TaskType: "refactoring", CreatedAt: time.Now().UTC(),
		})
		return nil
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	env, err := c.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if env.FindPattern("p1") == nil {
		t.Error("cached read missed the local write")
	}
}

func TestInvalidateDropsEntry(t *testing.T) {
	c := newCached(t, time.Minute)
	ctx := context.Background()

	if _, err := c.Read(ctx); err != nil {
		t.Fatal(err)
	}

	c.Invalidate()

	if _, err := c.Read(ctx); err != nil {
		t.Fatal(err)
	}
	if stats := c.Stats(); stats.Misses != 2 {
		t.Errorf("misses = %d, want 2 after invalidate", stats.Misses)
	}
}
