// Package evaluator aggregates per-example oracle results into candidate
// fitness. Single-objective mode averages the keyword scores; holistic
// (multi-objective) mode averages each named dimension independently and
// scalarizes with a weighted mean for ranking, keeping the raw vector.
package evaluator

import (
	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

// Evaluator computes FitnessRecords. A nil or empty weight map selects
// single-objective mode.
type Evaluator struct {
	weights map[string]float64
}

func New(objectiveWeights map[string]float64) *Evaluator {
	return &Evaluator{weights: objectiveWeights}
}

// MultiObjective reports whether the evaluator scalarizes dimensions.
func (e *Evaluator) MultiObjective() bool {
	return len(e.weights) > 0
}

// Score aggregates one candidate's evaluation results. expected is the
// size of the training set: a partial result set is rejected so partial
// aggregates are never surfaced. The aggregate is always derived from the
// results embedded in the returned record.
func (e *Evaluator) Score(candidateID string, results []core.EvaluationResult, expected int) (*core.FitnessRecord, error) {
	if len(results) != expected {
		return nil, errors.WithFields(
			errors.New(errors.Unknown, "refusing to aggregate a partial evaluation"),
			errors.Fields{
				"candidate": candidateID,
				"have":      len(results),
				"expected":  expected,
			})
	}
	if expected == 0 {
		return nil, errors.New(errors.Unknown, "no evaluation results to aggregate")
	}

	record := &core.FitnessRecord{
		CandidateID: candidateID,
		Results:     results,
	}

	if e.MultiObjective() {
		record.Dimensions = dimensionMeans(results)
		record.Score = e.scalarize(record.Dimensions, results)
		return record, nil
	}

	record.Score = meanScore(results)
	return record, nil
}

// meanScore is the single-objective aggregate: the mean keyword score
// across all examples. Failed calls contribute their zero score.
func meanScore(results []core.EvaluationResult) float64 {
	total := 0.0
	for _, r := range results {
		total += r.Score
	}
	return total / float64(len(results))
}

// dimensionMeans averages each dimension independently across the
// examples that scored it.
func dimensionMeans(results []core.EvaluationResult) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range results {
		for name, score := range r.DimensionScores {
			sums[name] += score
			counts[name]++
		}
	}

	means := make(map[string]float64, len(sums))
	for name, sum := range sums {
		means[name] = sum / float64(counts[name])
	}
	return means
}

// scalarize reduces the dimension vector to one ranking score with a
// weighted mean. Dimensions absent from the weight map do not influence
// ranking but remain in the record for reporting. When no weighted
// dimension was scored at all, the flat keyword mean is used so the
// candidate still ranks.
func (e *Evaluator) scalarize(dimensions map[string]float64, results []core.EvaluationResult) float64 {
	weightSum := 0.0
	weighted := 0.0
	for name, weight := range e.weights {
		mean, ok := dimensions[name]
		if !ok {
			continue
		}
		weighted += weight * mean
		weightSum += weight
	}

	if weightSum == 0 {
		return meanScore(results)
	}
	return weighted / weightSum
}
