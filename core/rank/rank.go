// Package rank implements multi-factor similarity scoring and top-K
// selection over stored patterns.
//
// Retrieval is pure: it operates on an already-loaded envelope, performs
// no I/O, and is deterministic for a fixed pattern set and query.
package rank

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/adalundhe/recall/core/store"
)

// DefaultTopK is the number of patterns returned when the caller does not
// ask for more.
const DefaultTopK = 3

// SparseConfidenceCeiling caps confidence when fewer than topK patterns
// exist to rank against.
const SparseConfidenceCeiling = 0.6

// Weights are the named similarity-weighting constants. They are tunable
// configuration, not a fixed contract.
type Weights struct {
	TaskTypeMatch   float64       `yaml:"task_type_match"`
	StackOverlap    float64       `yaml:"stack_overlap"`
	Complexity      float64       `yaml:"complexity"`
	Recency         float64       `yaml:"recency"`
	RecencyHalfLife time.Duration `yaml:"recency_half_life"`
	FailurePenalty  float64       `yaml:"failure_penalty"`
}

// DefaultWeights weighs exact task-type agreement highest, then stack
// overlap, then complexity proximity and recency.
func DefaultWeights() Weights {
	return Weights{
		TaskTypeMatch:   0.40,
		StackOverlap:    0.30,
		Complexity:      0.15,
		Recency:         0.15,
		RecencyHalfLife: 30 * 24 * time.Hour,
		FailurePenalty:  0.25,
	}
}

// Query describes the task a caller is about to attempt.
type Query struct {
	TaskType string
	Context  map[string]string
	// Now anchors recency decay; the zero value means time.Now().
	Now time.Time
}

// Ranked is one retrieval result.
type Ranked struct {
	Pattern    store.Pattern
	Score      float64
	Confidence float64
}

// Retrieve scores every pattern in env against q and returns the topK
// ranked results. Ties break first on higher reuse count, then on more
// recent creation.
func Retrieve(env *store.Envelope, q Query, topK int, w Weights) []Ranked {
	if topK <= 0 {
		topK = DefaultTopK
	}
	now := q.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	type candidate struct {
		pattern store.Pattern
		score   float64
		key     float64
	}

	candidates := make([]candidate, 0, len(env.Patterns))
	for _, p := range env.Patterns {
		score := similarity(p, q, now, w)
		candidates = append(candidates, candidate{
			pattern: p,
			score:   score,
			key:     score * successFactor(p, w) * (1 + math.Log1p(float64(p.ReuseCount))),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.key != b.key {
			return a.key > b.key
		}
		if a.pattern.ReuseCount != b.pattern.ReuseCount {
			return a.pattern.ReuseCount > b.pattern.ReuseCount
		}
		if !a.pattern.CreatedAt.Equal(b.pattern.CreatedAt) {
			return a.pattern.CreatedAt.After(b.pattern.CreatedAt)
		}
		return a.pattern.ID < b.pattern.ID
	})

	sparse := len(candidates) < topK
	n := topK
	if n > len(candidates) {
		n = len(candidates)
	}

	results := make([]Ranked, 0, n)
	for _, c := range candidates[:n] {
		results = append(results, Ranked{Pattern: c.pattern, Score: c.score})
	}

	applyConfidence(results, sparse, func(i int) float64 {
		return candidates[i].key
	})

	return results
}

// similarity is the weighted sum of the four factors.
func similarity(p store.Pattern, q Query, now time.Time, w Weights) float64 {
	var score float64

	if q.TaskType != "" && strings.EqualFold(p.TaskType, q.TaskType) {
		score += w.TaskTypeMatch
	}

	score += w.StackOverlap * stackOverlap(p.Context, q.Context)
	score += w.Complexity * complexityProximity(p.Context, q.Context)
	score += w.Recency * recencyDecay(p.CreatedAt, now, w.RecencyHalfLife)

	return score
}

// stackOverlap is the fraction of language/framework keys in the query
// that the pattern matches.
func stackOverlap(ctx, query map[string]string) float64 {
	keys := [...]string{store.ContextLanguage, store.ContextFramework}

	var considered, matched int
	for _, key := range keys {
		want, ok := query[key]
		if !ok || want == "" {
			continue
		}
		considered++
		if strings.EqualFold(ctx[key], want) {
			matched++
		}
	}

	if considered == 0 {
		return 0
	}
	return float64(matched) / float64(considered)
}

// complexityScale maps the semantic complexity labels onto an ordinal
// scale for distance computation.
var complexityScale = map[string]float64{
	"trivial":  0,
	"low":      1,
	"simple":   1,
	"medium":   2,
	"moderate": 2,
	"high":     3,
	"complex":  3,
}

const complexitySpan = 3.0

// complexityProximity is the inverse normalized distance between the two
// complexity labels. Unknown or missing labels score a neutral midpoint.
func complexityProximity(ctx, query map[string]string) float64 {
	a, aok := complexityScale[strings.ToLower(query[store.ContextComplexity])]
	b, bok := complexityScale[strings.ToLower(ctx[store.ContextComplexity])]
	if !aok || !bok {
		return 0.5
	}
	return 1 - math.Abs(a-b)/complexitySpan
}

// recencyDecay halves a pattern's recency contribution every half-life.
func recencyDecay(createdAt, now time.Time, halfLife time.Duration) float64 {
	if createdAt.IsZero() || halfLife <= 0 {
		return 0
	}
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * age.Hours() / halfLife.Hours())
}

func successFactor(p store.Pattern, w Weights) float64 {
	if p.Outcome.Success {
		return 1.0
	}
	return w.FailurePenalty
}

// applyConfidence derives the top result's confidence from the relative
// gap between the first and second ranking keys; lower-ranked results
// scale down proportionally. Sparse result sets are capped at a
// conservative ceiling.
func applyConfidence(results []Ranked, sparse bool, key func(int) float64) {
	if len(results) == 0 {
		return
	}

	top := key(0)
	topConfidence := SparseConfidenceCeiling
	if len(results) > 1 && top > 0 {
		gap := (top - key(1)) / top
		topConfidence = 0.5 + 0.5*gap
	}

	ceiling := 1.0
	if sparse {
		ceiling = SparseConfidenceCeiling
	}

	for i := range results {
		c := topConfidence
		if top > 0 {
			c = topConfidence * (key(i) / top)
		}
		results[i].Confidence = math.Min(c, ceiling)
	}
}
