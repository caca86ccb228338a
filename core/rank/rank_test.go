package rank

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/adalundhe/recall/core/store"
)

func envWith(patterns ...store.Pattern) *store.Envelope {
	env := store.NewEnvelope()
	env.Patterns = append(env.Patterns, patterns...)
	return env
}

func TestEmptyEnvelope(t *testing.T) {
	results := Retrieve(store.NewEnvelope(), Query{TaskType: "refactoring"}, 3, DefaultWeights())
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestTaskTypeMatchOutranksMismatch(t *testing.T) {
	now := time.Now().UTC()
	env := envWith(
		store.Pattern{ID: "match", TaskType: "refactoring", Outcome: store.Outcome{Success: true}, CreatedAt: now},
		store.Pattern{ID: "other", TaskType: "debugging", Outcome: store.Outcome{Success: true}, CreatedAt: now},
	)

	results := Retrieve(env, Query{TaskType: "refactoring", Now: now}, 2, DefaultWeights())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Pattern.ID != "match" {
		t.Errorf("top = %s, want match", results[0].Pattern.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Error("matching task type should score higher")
	}
}

func TestStackOverlapFraction(t *testing.T) {
	now := time.Now().UTC()
	env := envWith(
		store.Pattern{
			ID: "full", TaskType: "refactoring",
			Context:   map[string]string{store.ContextLanguage: "go", store.ContextFramework: "cobra"},
			Outcome:   store.Outcome{Success: true},
			CreatedAt: now,
		},
		store.Pattern{
			ID: "half", TaskType: "refactoring",
			Context:   map[string]string{store.ContextLanguage: "go", store.ContextFramework: "echo"},
			Outcome:   store.Outcome{Success: true},
			CreatedAt: now,
		},
	)

	q := Query{
		TaskType: "refactoring",
		Context:  map[string]string{store.ContextLanguage: "go", store.ContextFramework: "cobra"},
		Now:      now,
	}
	results := Retrieve(env, q, 2, DefaultWeights())
	if results[0].Pattern.ID != "full" {
		t.Errorf("top = %s, want full overlap", results[0].Pattern.ID)
	}
}

func TestRetrievalDeterministic(t *testing.T) {
	now := time.Now().UTC()
	var patterns []store.Pattern
	for i := 0; i < 20; i++ {
		patterns = append(patterns, store.Pattern{
			ID:       fmt.Sprintf("p%02d", i),
			TaskType: "refactoring",
			Context:  map[string]string{store.ContextLanguage: "go"},
			Outcome:  store.Outcome{Success: i%2 == 0, QualityScore: float64(50 + i)},
			// Same timestamps on purpose: ordering must still be stable.
			CreatedAt:  now.Add(-time.Duration(i%5) * time.Hour),
			ReuseCount: i % 3,
		})
	}
	env := envWith(patterns...)
	q := Query{TaskType: "refactoring", Context: map[string]string{store.ContextLanguage: "go"}, Now: now}

	first := Retrieve(env, q, 5, DefaultWeights())
	for i := 0; i < 10; i++ {
		again := Retrieve(env, q, 5, DefaultWeights())
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("retrieval not deterministic on call %d", i)
		}
	}
}

func TestEqualScoresPreferReuseThenRecency(t *testing.T) {
	now := time.Now().UTC()
	created := now.Add(-time.Hour)

	env := envWith(
		store.Pattern{ID: "low-reuse", TaskType: "refactoring", Outcome: store.Outcome{Success: true}, CreatedAt: created, ReuseCount: 0},
		store.Pattern{ID: "high-reuse", TaskType: "refactoring", Outcome: store.Outcome{Success: true}, CreatedAt: created, ReuseCount: 3},
	)
	results := Retrieve(env, Query{TaskType: "refactoring", Now: now}, 2, DefaultWeights())
	if results[0].Pattern.ID != "high-reuse" {
		t.Errorf("top = %s, want the more reused pattern", results[0].Pattern.ID)
	}

	env = envWith(
		store.Pattern{ID: "older", TaskType: "refactoring", Outcome: store.Outcome{Success: true}, CreatedAt: created.Add(-24 * time.Hour), ReuseCount: 1},
		store.Pattern{ID: "newer", TaskType: "refactoring", Outcome: store.Outcome{Success: true}, CreatedAt: created, ReuseCount: 1},
	)
	results = Retrieve(env, Query{TaskType: "refactoring", Now: now}, 2, DefaultWeights())
	if results[0].Pattern.ID != "newer" {
		t.Errorf("top = %s, want the more recent pattern", results[0].Pattern.ID)
	}
}

// Five refactoring patterns with rising quality and recency: the most
// recently created, highest-scoring one must rank first.
func TestRisingQualityScenario(t *testing.T) {
	now := time.Now().UTC()
	scores := []float64{78, 85, 90, 91, 94}

	env := store.NewEnvelope()
	for i, score := range scores {
		env.Patterns = append(env.Patterns, store.Pattern{
			ID:         fmt.Sprintf("p%d", i),
			TaskType:   "refactoring",
			Outcome:    store.Outcome{Success: true, QualityScore: score},
			CreatedAt:  now.Add(time.Duration(i-len(scores)) * 24 * time.Hour),
			ReuseCount: 2,
		})
	}

	results := Retrieve(env, Query{TaskType: "refactoring", Now: now}, 3, DefaultWeights())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Pattern.ID != "p4" {
		t.Errorf("top = %s, want p4 (newest, highest quality)", results[0].Pattern.ID)
	}
	if results[0].Pattern.Outcome.QualityScore != 94 {
		t.Errorf("top quality = %v, want 94", results[0].Pattern.Outcome.QualityScore)
	}
}

func TestSparseResultsCapConfidence(t *testing.T) {
	now := time.Now().UTC()
	env := envWith(
		store.Pattern{ID: "only", TaskType: "refactoring", Outcome: store.Outcome{Success: true}, CreatedAt: now},
	)

	results := Retrieve(env, Query{TaskType: "refactoring", Now: now}, 3, DefaultWeights())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Confidence > SparseConfidenceCeiling {
		t.Errorf("confidence %v exceeds sparse ceiling %v", results[0].Confidence, SparseConfidenceCeiling)
	}
}

func TestLargerGapRaisesConfidence(t *testing.T) {
	now := time.Now().UTC()

	tight := envWith(
		store.Pattern{ID: "a", TaskType: "refactoring", Outcome: store.Outcome{Success: true}, CreatedAt: now},
		store.Pattern{ID: "b", TaskType: "refactoring", Outcome: store.Outcome{Success: true}, CreatedAt: now},
		store.Pattern{ID: "c", TaskType: "refactoring", Outcome: store.Outcome{Success: true}, CreatedAt: now},
	)
	wide := envWith(
		store.Pattern{ID: "a", TaskType: "refactoring", Outcome: store.Outcome{Success: true}, CreatedAt: now},
		store.Pattern{ID: "b", TaskType: "debugging", Outcome: store.Outcome{Success: true}, CreatedAt: now.Add(-60 * 24 * time.Hour)},
		store.Pattern{ID: "c", TaskType: "debugging", Outcome: store.Outcome{Success: true}, CreatedAt: now.Add(-60 * 24 * time.Hour)},
	)

	q := Query{TaskType: "refactoring", Now: now}
	tightTop := Retrieve(tight, q, 3, DefaultWeights())[0]
	wideTop := Retrieve(wide, q, 3, DefaultWeights())[0]

	if wideTop.Confidence <= tightTop.Confidence {
		t.Errorf("wide gap confidence %v should exceed tight gap confidence %v",
			wideTop.Confidence, tightTop.Confidence)
	}
}

func TestFailedPatternsRankBelowSuccessful(t *testing.T) {
	now := time.Now().UTC()
	env := envWith(
		store.Pattern{ID: "failed", TaskType: "refactoring", Outcome: store.Outcome{Success: false}, CreatedAt: now},
		store.Pattern{ID: "succeeded", TaskType: "refactoring", Outcome: store.Outcome{Success: true}, CreatedAt: now},
	)

	results := Retrieve(env, Query{TaskType: "refactoring", Now: now}, 2, DefaultWeights())
	if results[0].Pattern.ID != "succeeded" {
		t.Errorf("top = %s, want succeeded", results[0].Pattern.ID)
	}
}
