// Package learning is the consumer API over the storage engine: recording
// task outcomes, similarity retrieval, and effectiveness lookups.
//
// A Client is cheap to construct and intended to live for one command
// invocation. All state is injected through config.Config; there are no
// hidden singletons.
package learning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adalundhe/recall/core/backup"
	"github.com/adalundhe/recall/core/cache"
	"github.com/adalundhe/recall/core/config"
	"github.com/adalundhe/recall/core/metrics"
	"github.com/adalundhe/recall/core/migrate"
	"github.com/adalundhe/recall/core/rank"
	"github.com/adalundhe/recall/core/store"
)

// Client wires the cache, engine, migrator, ranking, and aggregation into
// the surface the command handlers and dashboard consume.
type Client struct {
	cfg      config.Config
	st       *store.Store
	cached   *cache.CachedStore
	backups  *backup.Manager
	migrator *migrate.Migrator

	bootOnce sync.Once
	bootErr  error
}

// New builds a client from explicit configuration.
func New(cfg config.Config) (*Client, error) {
	paths := cfg.Paths()

	backups := backup.NewManager(paths.BackupDir(), paths.StoreName, cfg.BackupRetention)

	st, err := store.New(paths, backups, cfg.LockTimeout)
	if err != nil {
		return nil, err
	}

	cached, err := cache.New(st, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:      cfg,
		st:       st,
		cached:   cached,
		backups:  backups,
		migrator: migrate.New(paths, st),
	}, nil
}

// ensureReady runs legacy-store unification at most once per process.
func (c *Client) ensureReady(ctx context.Context) error {
	c.bootOnce.Do(func() {
		_, c.bootErr = c.migrator.EnsureCurrent(ctx)
	})
	return c.bootErr
}

// StorePattern validates and persists a completed-task pattern, updating
// skill and agent aggregates in the same atomic write. A pattern without
// an id is assigned one; re-inserting an existing id is a no-op returning
// that id, which makes caller retries safe.
func (c *Client) StorePattern(ctx context.Context, p store.Pattern) (string, error) {
	if err := c.ensureReady(ctx); err != nil {
		return "", err
	}
	if err := p.Validate(); err != nil {
		return "", err
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := c.cached.Mutate(ctx, func(env *store.Envelope) error {
		if env.FindPattern(p.ID) != nil {
			return nil
		}
		env.Patterns = append(env.Patterns, p)
		metrics.ApplyPattern(env, p, c.cfg.Metrics)
		return nil
	})
	if err != nil {
		return "", err
	}

	return p.ID, nil
}

// RecordOutcome is the explicit, synchronous entry point the task layer
// calls after a task completes. It is StorePattern under a name that
// matches the caller's intent.
func (c *Client) RecordOutcome(ctx context.Context, p store.Pattern) (string, error) {
	return c.StorePattern(ctx, p)
}

// RetrievePatterns returns the topK stored patterns ranked by similarity
// to the query context. Reads go through the TTL cache.
func (c *Client) RetrievePatterns(ctx context.Context, q rank.Query, topK int) ([]rank.Ranked, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}

	env, err := c.cached.Read(ctx)
	if err != nil {
		return nil, err
	}

	return rank.Retrieve(env, q, topK, c.cfg.Ranking), nil
}

// IncrementReuse bumps a pattern's reuse counter. Goes through Mutate,
// never a cached copy.
func (c *Client) IncrementReuse(ctx context.Context, id string) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}

	_, err := c.cached.Mutate(ctx, func(env *store.Envelope) error {
		p := env.FindPattern(id)
		if p == nil {
			return fmt.Errorf("pattern %s not found", id)
		}
		p.ReuseCount++
		return nil
	})
	return err
}

// RecordQualityAssessment validates and appends an assessment to the
// quality history. Assessments without an id are assigned one.
func (c *Client) RecordQualityAssessment(ctx context.Context, qa store.QualityAssessment) (string, error) {
	if err := c.ensureReady(ctx); err != nil {
		return "", err
	}
	if err := qa.Validate(); err != nil {
		return "", err
	}

	if qa.AssessmentID == "" {
		qa.AssessmentID = uuid.NewString()
	}
	if qa.Timestamp.IsZero() {
		qa.Timestamp = time.Now().UTC()
	}

	_, err := c.cached.Mutate(ctx, func(env *store.Envelope) error {
		metrics.ApplyAssessment(env, qa)
		return nil
	})
	if err != nil {
		return "", err
	}

	return qa.AssessmentID, nil
}

// GetSkillEffectiveness returns the aggregate for one skill, or nil when
// the skill has never been recorded.
func (c *Client) GetSkillEffectiveness(ctx context.Context, name string) (*store.SkillEffectiveness, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}

	env, err := c.cached.Read(ctx)
	if err != nil {
		return nil, err
	}
	return env.SkillEffectiveness[name], nil
}

// GetAgentPerformance returns the aggregate for one agent, or nil when the
// agent has never been recorded.
func (c *Client) GetAgentPerformance(ctx context.Context, name string) (*store.AgentPerformance, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}

	env, err := c.cached.Read(ctx)
	if err != nil {
		return nil, err
	}
	return env.AgentEffectiveness[name], nil
}

// ReadSnapshot returns the current envelope straight from disk, bypassing
// the cache and the write lock. The dashboard poller uses it.
func (c *Client) ReadSnapshot(ctx context.Context) (*store.Envelope, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	return c.st.Read(ctx)
}

// Reset wipes the store back to an empty envelope. The prior content is
// snapshotted to the backup rotation first; only an explicit user reset
// removes recorded patterns.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}

	_, err := c.cached.Mutate(ctx, func(env *store.Envelope) error {
		*env = *store.NewEnvelope()
		return nil
	})
	return err
}

// LastRecovery surfaces the engine's most recent corruption recovery as a
// secondary status, or nil.
func (c *Client) LastRecovery() *store.RecoveryNotice {
	return c.st.LastRecovery()
}

// Store exposes the underlying engine for collaborators that need
// lock-free snapshot access, such as the watch poller.
func (c *Client) Store() *store.Store {
	return c.st
}

// Backups exposes the backup manager for the CLI's backups commands.
func (c *Client) Backups() *backup.Manager {
	return c.backups
}

// Migrate forces a legacy-fragment scan regardless of the boot state.
func (c *Client) Migrate(ctx context.Context) (bool, error) {
	return c.migrator.EnsureCurrent(ctx)
}

// CacheStats reports the process-local read cache effectiveness.
func (c *Client) CacheStats() cache.Stats {
	return c.cached.Stats()
}

// Close releases in-process resources. The store file needs no teardown.
func (c *Client) Close() {
	c.cached.Close()
}
