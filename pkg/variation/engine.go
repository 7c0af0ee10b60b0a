// Package variation implements the mutation and crossover engine. It
// chooses a variation operator per offspring, selects parents from the
// ranked population, assembles the evaluation evidence that steers
// reflective mutation, and delegates prompt synthesis to the oracle.
package variation

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
	"github.com/XiaoConstantine/gepa-go/pkg/oracle"
)

// evidenceLimit caps how many evaluation results feed one reflection
// prompt. Reflection works best on the weakest cases; dumping the whole
// result set dilutes the signal and inflates the proposal prompt.
const evidenceLimit = 3

// Proposer is the oracle surface the engine needs. Satisfied by
// *oracle.Client.
type Proposer interface {
	Propose(ctx context.Context, parents []oracle.Parent, feedback []core.EvaluationResult, examples []core.TrainingExample) (*core.Candidate, error)
}

// Engine produces offspring candidates from a ranked parent pool. The
// random source is seeded from the run config, so operator choices and
// random-parent picks replay identically for a fixed seed.
type Engine struct {
	proposer Proposer
	examples []core.TrainingExample

	crossoverRate float64
	mutationRate  float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine builds an engine using the run's operator rates and random
// seed.
func NewEngine(proposer Proposer, cfg *core.Config) *Engine {
	return &Engine{
		proposer:      proposer,
		examples:      cfg.Examples,
		crossoverRate: cfg.CrossoverRate,
		mutationRate:  cfg.MutationRate,
		rng:           rand.New(rand.NewSource(cfg.RandomSeed)),
	}
}

// SeedVariant asks the oracle for one fresh variant of the seed prompt.
// Used while filling the initial generation, before any scores exist.
func (e *Engine) SeedVariant(ctx context.Context, seed *core.Candidate) (*core.Candidate, error) {
	return e.proposer.Propose(ctx, []oracle.Parent{{Candidate: seed}}, nil, e.examples)
}

// Offspring produces one new candidate from the ranked, scored members of
// the current generation. The operator is chosen by a single random draw:
// crossover of the two best parents, reflective mutation of the best
// parent, or mutation of a uniformly random parent. Crossover falls back
// to mutation when fewer than two scored parents exist.
func (e *Engine) Offspring(ctx context.Context, ranked []core.GenerationMember) (*core.Candidate, error) {
	scored := scoredOnly(ranked)
	if len(scored) == 0 {
		return nil, errors.New(errors.InvalidConfiguration, "offspring requires at least one scored parent")
	}

	e.mu.Lock()
	r := e.rng.Float64()
	pick := 0
	if len(scored) > 1 {
		pick = e.rng.Intn(len(scored))
	}
	e.mu.Unlock()

	switch {
	case r < e.crossoverRate:
		if len(scored) < 2 {
			// Crossover needs two distinct parents. Fall back to
			// mutating the lone scored parent.
			return e.mutate(ctx, scored[0])
		}
		a, b := scored[0], scored[1]
		return e.proposer.Propose(ctx, []oracle.Parent{
			{Candidate: a.Candidate, Score: a.Fitness.Score},
			{Candidate: b.Candidate, Score: b.Fitness.Score},
		}, nil, e.examples)

	case r < e.crossoverRate+e.mutationRate:
		return e.mutate(ctx, scored[0])

	default:
		return e.mutate(ctx, scored[pick])
	}
}

// mutate performs reflective mutation of one parent, grounding the
// reflection on the parent's weakest evaluation results.
func (e *Engine) mutate(ctx context.Context, parent core.GenerationMember) (*core.Candidate, error) {
	evidence := weakestResults(parent.Fitness.Results, evidenceLimit)
	return e.proposer.Propose(ctx, []oracle.Parent{
		{Candidate: parent.Candidate, Score: parent.Fitness.Score},
	}, evidence, e.examples)
}

func scoredOnly(members []core.GenerationMember) []core.GenerationMember {
	scored := make([]core.GenerationMember, 0, len(members))
	for _, m := range members {
		if m.Fitness != nil {
			scored = append(scored, m)
		}
	}
	return scored
}

// weakestResults returns up to limit evaluation results ordered by score
// ascending, keeping the original example order among equal scores.
func weakestResults(results []core.EvaluationResult, limit int) []core.EvaluationResult {
	sorted := make([]core.EvaluationResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score < sorted[j].Score
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
