package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Operator identifies which variation operator produced a candidate.
type Operator string

const (
	OperatorSeed      Operator = "seed"
	OperatorMutation  Operator = "mutation"
	OperatorCrossover Operator = "crossover"
)

// Candidate is one immutable prompt variant under evaluation. Its ID is
// derived from the prompt text, so two candidates with the same text are
// the same candidate for deduplication purposes.
type Candidate struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	Generation int       `json:"generation"` // Generation index of discovery
	Discovery  int       `json:"discovery"`  // Monotonic discovery sequence, assigned by the population manager
	ParentIDs  []string  `json:"parent_ids"`
	Operator   Operator  `json:"operator"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewCandidate builds a candidate for the given prompt text. The content
// hash identity means callers never construct duplicate IDs for equal text.
func NewCandidate(prompt string, generation int, op Operator, parentIDs ...string) *Candidate {
	return &Candidate{
		ID:         ContentID(prompt),
		Prompt:     prompt,
		Generation: generation,
		ParentIDs:  parentIDs,
		Operator:   op,
		CreatedAt:  time.Now(),
	}
}

// ContentID returns the content-hash identity for a prompt text.
func ContentID(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:12]
}
