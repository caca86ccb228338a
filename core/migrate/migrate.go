// Package migrate unifies fragmented legacy store files into the single
// store document, exactly once per store lifetime.
//
// Earlier plugin versions persisted learning state across several JSON
// files. On first access with an older (or absent) schema version, the
// migrator merges every fragment it finds into the unified envelope and
// moves the consumed originals into migration_backups/ with a timestamp
// suffix. Fragments are never deleted; a failed run leaves every legacy
// source untouched for manual recovery.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adalundhe/recall/core/storage"
	"github.com/adalundhe/recall/core/store"
)

// Legacy fragment filenames scanned during unification.
const (
	FragmentPatterns     = "learned_patterns.json"
	FragmentQuality      = "quality_history.json"
	FragmentSkillMetrics = "skill_metrics.json"
	FragmentAgentMetrics = "agent_metrics.json"
	FragmentTaskQueue    = "task_queue.json"
)

// fragmentNames is the fixed scan order. The task queue carries transient
// state with no unified collection; it is moved aside but not merged.
var fragmentNames = []string{
	FragmentPatterns,
	FragmentQuality,
	FragmentSkillMetrics,
	FragmentAgentMetrics,
	FragmentTaskQueue,
}

// Migrator detects the on-disk schema version and performs the one-shot
// unification when needed.
type Migrator struct {
	paths storage.Paths
	st    *store.Store
}

// New builds a migrator over the same layout the engine uses.
func New(paths storage.Paths, st *store.Store) *Migrator {
	return &Migrator{paths: paths, st: st}
}

// EnsureCurrent runs the unification if the store is missing, carries an
// older schema version, or legacy fragments are still present. Returns
// true when a migration was performed. Idempotent: a rerun after the
// version bump, or against already-moved-away fragments, is a no-op.
func (m *Migrator) EnsureCurrent(ctx context.Context) (bool, error) {
	present := m.presentFragments()
	if len(present) == 0 && m.diskVersion() >= store.SchemaVersion {
		return false, nil
	}
	if len(present) == 0 {
		// Nothing to merge; the engine bumps the version on its next write.
		return false, nil
	}

	merged, err := m.parseFragments(present)
	if err != nil {
		return false, &store.SchemaVersionError{Found: m.diskVersion(), Want: store.SchemaVersion, Err: err}
	}

	_, err = m.st.Mutate(ctx, func(env *store.Envelope) error {
		mergeInto(env, merged)
		return nil
	})
	if err != nil {
		return false, &store.SchemaVersionError{Found: m.diskVersion(), Want: store.SchemaVersion, Err: err}
	}

	if err := m.archiveFragments(present); err != nil {
		// The unified store is already written; a failed move is surfaced
		// but re-running is safe because merges deduplicate by identifier.
		return true, fmt.Errorf("archive legacy fragments: %w", err)
	}

	return true, nil
}

// diskVersion probes the unified document's schema_version. Missing or
// unreadable documents report 0.
func (m *Migrator) diskVersion() int {
	data, err := os.ReadFile(m.paths.StoreFile())
	if err != nil {
		return 0
	}
	var probe struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0
	}
	return probe.SchemaVersion
}

func (m *Migrator) presentFragments() []string {
	var present []string
	for _, name := range fragmentNames {
		if _, err := os.Stat(m.paths.LegacyFile(name)); err == nil {
			present = append(present, name)
		}
	}
	return present
}

// legacyRecords holds parsed fragment content prior to the merge.
type legacyRecords struct {
	patterns []store.Pattern
	quality  []store.QualityAssessment
	skills   map[string]*store.SkillEffectiveness
	agents   map[string]*store.AgentPerformance
}

// parseFragments reads every present fragment up front so a malformed one
// aborts the migration before anything is written or moved.
func (m *Migrator) parseFragments(present []string) (*legacyRecords, error) {
	out := &legacyRecords{
		skills: make(map[string]*store.SkillEffectiveness),
		agents: make(map[string]*store.AgentPerformance),
	}

	for _, name := range present {
		data, err := os.ReadFile(m.paths.LegacyFile(name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		switch name {
		case FragmentPatterns:
			if err := json.Unmarshal(data, &out.patterns); err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
		case FragmentQuality:
			if err := json.Unmarshal(data, &out.quality); err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
		case FragmentSkillMetrics:
			if err := json.Unmarshal(data, &out.skills); err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
		case FragmentAgentMetrics:
			if err := json.Unmarshal(data, &out.agents); err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
		case FragmentTaskQueue:
			// Validated for well-formedness only; queued work is transient
			// and survives solely in migration_backups.
			var queue []json.RawMessage
			if err := json.Unmarshal(data, &queue); err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
		}
	}

	return out, nil
}

// mergeInto applies the deterministic merge rule: records merge by
// identifier where present, otherwise append; on identifier collision the
// record with the most recent timestamp wins. Counter aggregates without
// timestamps keep the record with the higher use count.
func mergeInto(env *store.Envelope, legacy *legacyRecords) {
	for _, p := range legacy.patterns {
		existing := env.FindPattern(p.ID)
		if existing == nil || p.ID == "" {
			env.Patterns = append(env.Patterns, p)
			continue
		}
		if p.CreatedAt.After(existing.CreatedAt) {
			*existing = p
		}
	}

	for _, qa := range legacy.quality {
		merged := false
		for i := range env.QualityHistory {
			if qa.AssessmentID != "" && env.QualityHistory[i].AssessmentID == qa.AssessmentID {
				if qa.Timestamp.After(env.QualityHistory[i].Timestamp) {
					env.QualityHistory[i] = qa
				}
				merged = true
				break
			}
		}
		if !merged {
			env.QualityHistory = append(env.QualityHistory, qa)
		}
	}

	for name, se := range legacy.skills {
		existing, ok := env.SkillEffectiveness[name]
		if !ok || se.TotalUses > existing.TotalUses {
			recomputeSkill(se)
			env.SkillEffectiveness[name] = se
		}
	}

	for name, ap := range legacy.agents {
		existing, ok := env.AgentEffectiveness[name]
		if !ok || ap.TotalTasks > existing.TotalTasks {
			if ap.TotalTasks > 0 {
				ap.SuccessRate = float64(ap.SuccessfulTasks) / float64(ap.TotalTasks)
			}
			if ap.Trend == "" {
				ap.Trend = store.TrendStable
			}
			env.AgentEffectiveness[name] = ap
		}
	}
}

func recomputeSkill(se *store.SkillEffectiveness) {
	if se.TotalUses > 0 {
		se.SuccessRate = float64(se.SuccessfulUses) / float64(se.TotalUses)
	}
	for _, tt := range se.ByTaskType {
		if tt.TotalUses > 0 {
			tt.SuccessRate = float64(tt.SuccessfulUses) / float64(tt.TotalUses)
		}
	}
}

// archiveFragments moves each consumed fragment into migration_backups/
// with a timestamp suffix. Moves, never deletes.
func (m *Migrator) archiveFragments(present []string) error {
	dir := m.paths.MigrationBackupDir()
	if err := storage.EnsureDir(dir, 0755); err != nil {
		return err
	}

	timestamp := time.Now().UTC().Format("20060102T150405.000000000")
	for _, name := range present {
		base := strings.TrimSuffix(name, ".json")
		dest := filepath.Join(dir, fmt.Sprintf("%s_%s.json", base, timestamp))
		if err := os.Rename(m.paths.LegacyFile(name), dest); err != nil {
			return err
		}
	}
	return nil
}
