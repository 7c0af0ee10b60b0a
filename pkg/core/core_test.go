package core

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

func TestNewCandidateIdentity(t *testing.T) {
	a := NewCandidate("Summarize this text", 0, OperatorSeed)
	b := NewCandidate("Summarize this text", 3, OperatorMutation, a.ID)
	c := NewCandidate("Summarize this text!", 0, OperatorSeed)

	assert.Equal(t, a.ID, b.ID, "identical text must hash to the same identity")
	assert.NotEqual(t, a.ID, c.ID)
	assert.Len(t, a.ID, 12)
	assert.Equal(t, []string{a.ID}, b.ParentIDs)
}

func TestBudgetReserveRefund(t *testing.T) {
	b := NewBudget(2)

	assert.True(t, b.Reserve())
	assert.True(t, b.Reserve())
	assert.False(t, b.Reserve())
	assert.True(t, b.Exhausted())
	assert.Equal(t, 2, b.Spent())

	b.Refund()
	assert.False(t, b.Exhausted())
	assert.Equal(t, 1, b.Remaining())
	assert.Equal(t, 1, b.Spent())
}

func TestBudgetNeverOverspendsConcurrently(t *testing.T) {
	const total = 50
	const workers = 20
	const attempts = 10

	b := NewBudget(total)
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < attempts; j++ {
				if b.Reserve() {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, total, granted)
	assert.Equal(t, 0, b.Remaining())
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.SeedPrompt = "Summarize this text"
	valid.Examples = []TrainingExample{{Input: "hello", ExpectedKeywords: []string{"greeting"}}}
	valid.Budget = 10
	valid.ApplyDefaults()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty training set", func(c *Config) { c.Examples = nil }},
		{"zero budget", func(c *Config) { c.Budget = 0 }},
		{"population below two", func(c *Config) { c.PopulationSize = 1 }},
		{"mutation rate above one", func(c *Config) { c.MutationRate = 1.2 }},
		{"negative crossover rate", func(c *Config) { c.CrossoverRate = -0.1 }},
		{"negative objective weight", func(c *Config) { c.ObjectiveWeights = map[string]float64{"clarity": -1} }},
		{"elitism consumes whole population", func(c *Config) { c.ElitismCount = c.PopulationSize }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *valid
			cfg.Examples = append([]TrainingExample(nil), valid.Examples...)
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.InvalidConfiguration, errors.CodeOf(err))
		})
	}
}

func TestConfigApplyDefaultsKeepsZeroRates(t *testing.T) {
	cfg := &Config{
		SeedPrompt:    "seed",
		Examples:      []TrainingExample{{Input: "x"}},
		Budget:        5,
		MutationRate:  0,
		CrossoverRate: 1,
	}
	cfg.ApplyDefaults()

	assert.Zero(t, cfg.MutationRate, "explicit zero rate must survive defaulting")
	assert.Equal(t, 1.0, cfg.CrossoverRate)
	assert.Equal(t, 4, cfg.PopulationSize)
	assert.Equal(t, cfg.MaxGenerations, cfg.Patience)
}

func TestGenerationBestTieBreak(t *testing.T) {
	early := NewCandidate("prompt a", 0, OperatorSeed)
	early.Discovery = 1
	late := NewCandidate("prompt b", 0, OperatorMutation)
	late.Discovery = 2
	unscored := NewCandidate("prompt c", 0, OperatorMutation)
	unscored.Discovery = 3

	gen := &Generation{
		Index: 0,
		Members: []GenerationMember{
			{Candidate: late, Fitness: &FitnessRecord{CandidateID: late.ID, Score: 0.5}},
			{Candidate: early, Fitness: &FitnessRecord{CandidateID: early.ID, Score: 0.5}},
			{Candidate: unscored},
		},
	}

	best := gen.Best()
	require.NotNil(t, best)
	assert.Equal(t, early.ID, best.Candidate.ID, "ties must break toward earlier discovery")
}

func TestGenerationBestEmpty(t *testing.T) {
	gen := &Generation{Index: 0}
	assert.Nil(t, gen.Best())

	var errCheck error = errors.New(errors.InvalidConfiguration, "x")
	assert.False(t, stderrors.Is(errCheck, errors.New(errors.Canceled, "x")))
}

func TestPhaseMapping(t *testing.T) {
	assert.Equal(t, StatusConverged, PhaseConverged.Status())
	assert.Equal(t, StatusExhausted, PhaseExhausted.Status())
	assert.Equal(t, StatusTimeout, PhaseTimeout.Status())
	assert.True(t, PhaseExhausted.Terminal())
	assert.False(t, PhaseEvaluating.Terminal())
	assert.Equal(t, "SEEDING", PhaseSeeding.String())
}
