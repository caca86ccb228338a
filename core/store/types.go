// Package store implements the crash-safe unified learning store.
//
// A single JSON document holds every recorded pattern plus the aggregates
// derived from them. Many short-lived processes read and mutate the same
// file; an advisory file lock serializes writers and an atomic
// write-to-temp-then-rename keeps readers from ever observing a torn
// document.
package store

import (
	"time"
)

// SchemaVersion is the version written by this code. Stores carrying an
// older version (or legacy fragment files) are unified by core/migrate.
const SchemaVersion = 2

// Context keys with ranking semantics.
const (
	ContextLanguage   = "language"
	ContextFramework  = "framework"
	ContextComplexity = "complexity"
	ContextScope      = "scope"
)

// Outcome records how a completed task went.
type Outcome struct {
	Success          bool    `json:"success"`
	QualityScore     float64 `json:"quality_score"`
	ExecutionSeconds float64 `json:"execution_seconds,omitempty"`
}

// Pattern is a stored record of one completed task's context, approach, and
// outcome. Immutable once written except ReuseCount, which only grows.
type Pattern struct {
	ID              string            `json:"id"`
	TaskType        string            `json:"task_type"`
	Context         map[string]string `json:"context,omitempty"`
	SkillsUsed      []string          `json:"skills_used,omitempty"`
	AgentsDelegated []string          `json:"agents_delegated,omitempty"`
	Outcome         Outcome           `json:"outcome"`
	CreatedAt       time.Time         `json:"created_at"`
	ReuseCount      int               `json:"reuse_count"`
}

// TaskTypeStats breaks a skill's usage down by task type.
type TaskTypeStats struct {
	TotalUses      int     `json:"total_uses"`
	SuccessfulUses int     `json:"successful_uses"`
	SuccessRate    float64 `json:"success_rate"`
}

// SkillEffectiveness aggregates outcomes per skill name. SuccessRate is
// always recomputed from the counters, never mutated independently.
type SkillEffectiveness struct {
	TotalUses      int                       `json:"total_uses"`
	SuccessfulUses int                       `json:"successful_uses"`
	SuccessRate    float64                   `json:"success_rate"`
	ByTaskType     map[string]*TaskTypeStats `json:"by_task_type,omitempty"`
}

// Trend classifies the direction of an agent's recent quality scores.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// AgentPerformance aggregates outcomes per agent name. RecentScores is the
// rolling window backing the trend classification.
type AgentPerformance struct {
	TotalTasks          int       `json:"total_tasks"`
	SuccessfulTasks     int       `json:"successful_tasks"`
	SuccessRate         float64   `json:"success_rate"`
	AvgQualityScore     float64   `json:"avg_quality_score"`
	AvgExecutionSeconds float64   `json:"avg_execution_seconds"`
	Trend               Trend     `json:"trend"`
	Specializations     []string  `json:"specializations,omitempty"`
	RecentScores        []float64 `json:"recent_scores,omitempty"`
}

// QualityAssessment records a scored review of one completed task.
// Breakdown sub-scores sum to OverallScore.
type QualityAssessment struct {
	AssessmentID string             `json:"assessment_id"`
	Timestamp    time.Time          `json:"timestamp"`
	TaskType     string             `json:"task_type"`
	OverallScore float64            `json:"overall_score"`
	Breakdown    map[string]float64 `json:"breakdown,omitempty"`
}

// Metadata carries bookkeeping for the envelope.
type Metadata struct {
	LastModified time.Time `json:"last_modified"`
}

// Envelope is the full unified store document.
type Envelope struct {
	SchemaVersion      int                            `json:"schema_version"`
	Patterns           []Pattern                      `json:"patterns"`
	SkillEffectiveness map[string]*SkillEffectiveness `json:"skill_effectiveness"`
	AgentEffectiveness map[string]*AgentPerformance   `json:"agent_effectiveness"`
	QualityHistory     []QualityAssessment            `json:"quality_history"`
	Metadata           Metadata                       `json:"metadata"`
}

// NewEnvelope returns an empty envelope at the current schema version.
func NewEnvelope() *Envelope {
	return &Envelope{
		SchemaVersion:      SchemaVersion,
		Patterns:           []Pattern{},
		SkillEffectiveness: make(map[string]*SkillEffectiveness),
		AgentEffectiveness: make(map[string]*AgentPerformance),
		QualityHistory:     []QualityAssessment{},
	}
}

// FindPattern returns the pattern with the given id, or nil.
func (e *Envelope) FindPattern(id string) *Pattern {
	for i := range e.Patterns {
		if e.Patterns[i].ID == id {
			return &e.Patterns[i]
		}
	}
	return nil
}

// HasAssessment reports whether an assessment with the given id exists.
func (e *Envelope) HasAssessment(id string) bool {
	for i := range e.QualityHistory {
		if e.QualityHistory[i].AssessmentID == id {
			return true
		}
	}
	return false
}

// Skill returns the effectiveness record for name, creating it if absent.
func (e *Envelope) Skill(name string) *SkillEffectiveness {
	if e.SkillEffectiveness == nil {
		e.SkillEffectiveness = make(map[string]*SkillEffectiveness)
	}
	se, ok := e.SkillEffectiveness[name]
	if !ok {
		se = &SkillEffectiveness{ByTaskType: make(map[string]*TaskTypeStats)}
		e.SkillEffectiveness[name] = se
	}
	return se
}

// Agent returns the performance record for name, creating it if absent.
func (e *Envelope) Agent(name string) *AgentPerformance {
	if e.AgentEffectiveness == nil {
		e.AgentEffectiveness = make(map[string]*AgentPerformance)
	}
	ap, ok := e.AgentEffectiveness[name]
	if !ok {
		ap = &AgentPerformance{Trend: TrendStable}
		e.AgentEffectiveness[name] = ap
	}
	return ap
}
