package core

import (
	"time"
)

// RunStatus is the terminal state of an optimization run. Callers must not
// infer termination cause any other way.
type RunStatus string

const (
	StatusConverged RunStatus = "converged"
	StatusExhausted RunStatus = "exhausted"
	StatusTimeout   RunStatus = "timeout"
)

// Phase names one state of the controller's state machine.
type Phase int

const (
	PhaseSeeding Phase = iota
	PhaseEvaluating
	PhaseSelecting
	PhaseVarying
	PhaseConverged
	PhaseExhausted
	PhaseTimeout
)

// String provides human-readable phase names.
func (p Phase) String() string {
	return [...]string{"SEEDING", "EVALUATING", "SELECTING", "VARYING", "CONVERGED", "EXHAUSTED", "TIMEOUT"}[p]
}

// Terminal reports whether the phase ends the run.
func (p Phase) Terminal() bool {
	return p == PhaseConverged || p == PhaseExhausted || p == PhaseTimeout
}

// Status maps a terminal phase to its caller-visible run status.
func (p Phase) Status() RunStatus {
	switch p {
	case PhaseConverged:
		return StatusConverged
	case PhaseTimeout:
		return StatusTimeout
	default:
		return StatusExhausted
	}
}

// OptimizationResult is returned to the caller for every run that passes
// configuration validation, regardless of how the run terminated.
type OptimizationResult struct {
	RunID string `json:"run_id"`

	BestPrompt  string         `json:"best_prompt"`
	BestScore   float64        `json:"best_score"`
	Best        *Candidate     `json:"best"`
	BestFitness *FitnessRecord `json:"best_fitness"`

	Status      RunStatus     `json:"status"`
	Generations []*Generation `json:"generations"`

	// Improvement is the delta between the best score and the seed
	// prompt's score.
	Improvement  float64       `json:"improvement"`
	RolloutsUsed int           `json:"rollouts_used"`
	Elapsed      time.Duration `json:"elapsed"`
}
