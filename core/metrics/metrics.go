// Package metrics incrementally recomputes skill and agent effectiveness
// as new outcomes arrive.
//
// Every function here is pure over the envelope plus the new record; no
// full-store rescans. Persistence happens through the same Mutate call
// that inserts the record, so aggregates and raw records always commit
// atomically together.
package metrics

import (
	"gonum.org/v1/gonum/stat"

	"github.com/adalundhe/recall/core/store"
)

// Config tunes trend classification.
type Config struct {
	// TrendWindow is the number of recent scores compared against the
	// preceding window of equal size.
	TrendWindow int `yaml:"trend_window"`
	// TrendThreshold is the mean-quality delta beyond which a trend is
	// classified as improving or declining.
	TrendThreshold float64 `yaml:"trend_threshold"`
}

// DefaultConfig returns the default window and threshold.
func DefaultConfig() Config {
	return Config{
		TrendWindow:    10,
		TrendThreshold: 5.0,
	}
}

// ApplyPattern bumps every skill and agent counter referenced by p and
// recomputes the derived rates and trends.
func ApplyPattern(env *store.Envelope, p store.Pattern, cfg Config) {
	for _, name := range p.SkillsUsed {
		applySkill(env.Skill(name), p)
	}
	for _, name := range p.AgentsDelegated {
		applyAgent(env.Agent(name), p, cfg)
	}
}

// ApplyAssessment records qa in the quality history. Inserts are
// idempotent on assessment id.
func ApplyAssessment(env *store.Envelope, qa store.QualityAssessment) {
	if qa.AssessmentID != "" && env.HasAssessment(qa.AssessmentID) {
		return
	}
	env.QualityHistory = append(env.QualityHistory, qa)
}

func applySkill(se *store.SkillEffectiveness, p store.Pattern) {
	se.TotalUses++
	if p.Outcome.Success {
		se.SuccessfulUses++
	}
	se.SuccessRate = rate(se.SuccessfulUses, se.TotalUses)

	if se.ByTaskType == nil {
		se.ByTaskType = make(map[string]*store.TaskTypeStats)
	}
	tt, ok := se.ByTaskType[p.TaskType]
	if !ok {
		tt = &store.TaskTypeStats{}
		se.ByTaskType[p.TaskType] = tt
	}
	tt.TotalUses++
	if p.Outcome.Success {
		tt.SuccessfulUses++
	}
	tt.SuccessRate = rate(tt.SuccessfulUses, tt.TotalUses)
}

func applyAgent(ap *store.AgentPerformance, p store.Pattern, cfg Config) {
	ap.TotalTasks++
	if p.Outcome.Success {
		ap.SuccessfulTasks++
	}
	ap.SuccessRate = rate(ap.SuccessfulTasks, ap.TotalTasks)

	// Incremental means; no rescan of prior patterns.
	n := float64(ap.TotalTasks)
	ap.AvgQualityScore += (p.Outcome.QualityScore - ap.AvgQualityScore) / n
	ap.AvgExecutionSeconds += (p.Outcome.ExecutionSeconds - ap.AvgExecutionSeconds) / n

	window := cfg.TrendWindow
	if window <= 0 {
		window = DefaultConfig().TrendWindow
	}
	ap.RecentScores = append(ap.RecentScores, p.Outcome.QualityScore)
	if excess := len(ap.RecentScores) - 2*window; excess > 0 {
		ap.RecentScores = ap.RecentScores[excess:]
	}
	ap.Trend = classifyTrend(ap.RecentScores, window, cfg.TrendThreshold)

	if p.Outcome.Success && !contains(ap.Specializations, p.TaskType) {
		ap.Specializations = append(ap.Specializations, p.TaskType)
	}
}

// classifyTrend compares the mean of the most recent window against the
// preceding window of equal size.
func classifyTrend(scores []float64, window int, threshold float64) store.Trend {
	recentStart := len(scores) - window
	if recentStart < 0 {
		recentStart = 0
	}
	prevStart := recentStart - window
	if prevStart < 0 {
		prevStart = 0
	}

	recent := scores[recentStart:]
	prev := scores[prevStart:recentStart]
	if len(recent) == 0 || len(prev) == 0 {
		return store.TrendStable
	}

	delta := stat.Mean(recent, nil) - stat.Mean(prev, nil)
	switch {
	case delta > threshold:
		return store.TrendImproving
	case delta < -threshold:
		return store.TrendDeclining
	default:
		return store.TrendStable
	}
}

func rate(successful, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
