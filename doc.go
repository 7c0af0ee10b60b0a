// Package gepa implements reflective evolutionary prompt optimization:
// a seed prompt is evolved against a labeled training set using an
// external language model as both the fitness oracle and the proposer of
// new variants.
//
// One optimization run maintains a population of candidate prompts. Each
// generation, every candidate is rolled out against the training examples
// and scored by keyword containment; the best survive through elitism and
// the rest of the next generation is filled by reflective mutation (the
// model rewrites a prompt given its failure evidence) and crossover (the
// model merges the two best prompts). Every model call draws from a fixed
// budget, so cost is bounded up front.
//
// Key packages:
//
//   - pkg/core: candidates, generations, fitness records, the shared
//     budget counter, and run configuration.
//
//   - pkg/oracle: the model client. Rollout scoring, proposal prompts,
//     retry with backoff, budget charging, and the per-run call log.
//
//   - pkg/evaluator: fitness aggregation, including multi-objective
//     dimension scoring with weighted-mean ranking.
//
//   - pkg/population: generation membership, deduplication, elitism, and
//     the append-only generation history.
//
//   - pkg/variation: operator choice and parent selection for mutation
//     and crossover.
//
//   - pkg/optimizers: the controller that drives seeding, evaluation,
//     selection, and variation to a terminal state.
//
//   - pkg/archive: SQLite persistence for finished runs, with lineage
//     queries from any candidate back to the seed.
//
// The cmd/gepa CLI wires these together against Anthropic's API.
package gepa
