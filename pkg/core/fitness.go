package core

// EvaluationResult is the outcome of running one candidate against one
// training example. Created per oracle call, never mutated.
type EvaluationResult struct {
	CandidateID  string  `json:"candidate_id"`
	ExampleIndex int     `json:"example_index"`
	Output       string  `json:"output"`
	Score        float64 `json:"score"` // In [0,1]
	Feedback     string  `json:"feedback,omitempty"`
	Failed       bool    `json:"failed"` // Oracle call failed after retries

	// DimensionScores carries per-objective scores in multi-objective
	// mode, keyed by dimension name.
	DimensionScores map[string]float64 `json:"dimension_scores,omitempty"`
}

// FitnessRecord aggregates the evaluation results of one candidate. The
// aggregate score is always recomputed from the underlying results rather
// than stored independently, so the two can never drift apart.
type FitnessRecord struct {
	CandidateID string             `json:"candidate_id"`
	Score       float64            `json:"score"`
	Dimensions  map[string]float64 `json:"dimensions,omitempty"`
	Results     []EvaluationResult `json:"results"`
}

// GenerationMember pairs a candidate with its fitness. Fitness is nil for
// candidates whose evaluation never completed (budget exhausted mid-pass).
type GenerationMember struct {
	Candidate *Candidate     `json:"candidate"`
	Fitness   *FitnessRecord `json:"fitness,omitempty"`
}

// Generation is one full population snapshot plus fitness scores. The
// history of generations is append-only: once the controller installs a
// generation it is never mutated, preserving a full audit trail.
type Generation struct {
	Index   int                `json:"index"`
	Members []GenerationMember `json:"members"`
}

// Best returns the highest-scoring scored member, with ties broken by
// earliest discovery. Returns nil when no member has a fitness record.
func (g *Generation) Best() *GenerationMember {
	var best *GenerationMember
	for i := range g.Members {
		m := &g.Members[i]
		if m.Fitness == nil {
			continue
		}
		if best == nil ||
			m.Fitness.Score > best.Fitness.Score ||
			(m.Fitness.Score == best.Fitness.Score && m.Candidate.Discovery < best.Candidate.Discovery) {
			best = m
		}
	}
	return best
}
