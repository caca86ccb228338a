package store

import "math"

const breakdownEpsilon = 0.01

// Validate rejects malformed patterns before any write is attempted.
func (p *Pattern) Validate() error {
	if p.TaskType == "" {
		return &ValidationError{Field: "pattern.task_type", Reason: "must not be empty"}
	}
	if p.Outcome.QualityScore < 0 || p.Outcome.QualityScore > 100 {
		return &ValidationError{Field: "pattern.outcome.quality_score", Reason: "must be in [0,100]"}
	}
	if p.Outcome.ExecutionSeconds < 0 {
		return &ValidationError{Field: "pattern.outcome.execution_seconds", Reason: "must not be negative"}
	}
	if p.ReuseCount < 0 {
		return &ValidationError{Field: "pattern.reuse_count", Reason: "must not be negative"}
	}
	return nil
}

// Validate rejects malformed assessments. Breakdown sub-scores must sum to
// the overall score.
func (q *QualityAssessment) Validate() error {
	if q.TaskType == "" {
		return &ValidationError{Field: "assessment.task_type", Reason: "must not be empty"}
	}
	if q.OverallScore < 0 || q.OverallScore > 100 {
		return &ValidationError{Field: "assessment.overall_score", Reason: "must be in [0,100]"}
	}
	if len(q.Breakdown) > 0 {
		var sum float64
		for _, v := range q.Breakdown {
			sum += v
		}
		if math.Abs(sum-q.OverallScore) > breakdownEpsilon {
			return &ValidationError{Field: "assessment.breakdown", Reason: "sub-scores must sum to overall_score"}
		}
	}
	return nil
}
