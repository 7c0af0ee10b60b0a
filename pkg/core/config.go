package core

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

// Config enumerates every knob for one optimization run. Validation is
// fail-fast: an invalid configuration is rejected before any oracle call
// is made and therefore before any budget is consumed.
type Config struct {
	// Required inputs.
	SeedPrompt string            `json:"seed_prompt" validate:"required"`
	Examples   []TrainingExample `json:"training_examples" validate:"required,min=1"`
	Budget     int               `json:"budget" validate:"required,gt=0"`

	// Evolutionary parameters.
	PopulationSize int     `json:"population_size" validate:"gte=2"`    // Default: 4
	MaxGenerations int     `json:"max_generations" validate:"gte=1"`    // Default: 5
	MutationRate   float64 `json:"mutation_rate" validate:"gte=0,lte=1"`  // Default: 0.3
	CrossoverRate  float64 `json:"crossover_rate" validate:"gte=0,lte=1"` // Default: 0.7
	ElitismCount   int     `json:"elitism_count" validate:"gte=1"`      // Default: 1

	// Convergence parameters.
	Patience int `json:"patience" validate:"gte=1"` // Default: MaxGenerations (no early convergence)

	// Multi-objective mode: dimension name -> scalarization weight.
	// Ranking uses the weighted mean; raw dimension scores are preserved
	// in each FitnessRecord for reporting.
	ObjectiveWeights map[string]float64 `json:"objective_weights,omitempty"`

	// Oracle parameters.
	MaxRetries  int     `json:"max_retries" validate:"gte=0"`          // Default: 2
	Temperature float64 `json:"temperature" validate:"gte=0,lte=2"`    // Default: 0.7
	MaxTokens   int     `json:"max_tokens" validate:"gt=0"`            // Default: 100

	// Resource parameters.
	Concurrency int           `json:"concurrency" validate:"gte=1"`          // Default: 3
	Timeout     time.Duration `json:"timeout" validate:"gte=0"`              // 0 = no wall-clock limit
	RateLimit   float64       `json:"rate_limit,omitempty" validate:"gte=0"` // Oracle calls per second, 0 = unthrottled

	// RandomSeed fixes the operator-choice RNG for reproducible runs.
	// 0 seeds from the clock.
	RandomSeed int64 `json:"random_seed"`
}

// DefaultConfig returns a configuration with every optional field at its
// documented default. SeedPrompt, Examples and Budget must still be set.
func DefaultConfig() *Config {
	return &Config{
		PopulationSize: 4,
		MaxGenerations: 5,
		MutationRate:   0.3,
		CrossoverRate:  0.7,
		ElitismCount:   1,
		MaxRetries:     2,
		Temperature:    0.7,
		MaxTokens:      100,
		Concurrency:    3,
	}
}

// ApplyDefaults fills structural zero fields. Rate fields are left alone:
// a zero mutation or crossover rate is a meaningful setting, not an
// omission.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.PopulationSize == 0 {
		c.PopulationSize = d.PopulationSize
	}
	if c.MaxGenerations == 0 {
		c.MaxGenerations = d.MaxGenerations
	}
	if c.ElitismCount == 0 {
		c.ElitismCount = d.ElitismCount
	}
	if c.Patience == 0 {
		c.Patience = c.MaxGenerations
	}
	if c.Temperature == 0 {
		c.Temperature = d.Temperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Concurrency == 0 {
		c.Concurrency = d.Concurrency
	}
}

var validate = validator.New()

// Validate checks the configuration against its constraints, returning an
// InvalidConfiguration error describing the first problem found.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return errors.WithFields(
				errors.New(errors.InvalidConfiguration, "invalid configuration"),
				errors.Fields{
					"field":      first.Field(),
					"constraint": first.Tag(),
				})
		}
		return errors.Wrap(err, errors.InvalidConfiguration, "invalid configuration")
	}

	for name, weight := range c.ObjectiveWeights {
		if weight < 0 {
			return errors.WithFields(
				errors.New(errors.InvalidConfiguration, "objective weights must be non-negative"),
				errors.Fields{"dimension": name, "weight": weight})
		}
	}

	if c.ElitismCount >= c.PopulationSize {
		return errors.WithFields(
			errors.New(errors.InvalidConfiguration, "elitism count must leave room for offspring"),
			errors.Fields{
				"elitism_count":   c.ElitismCount,
				"population_size": c.PopulationSize,
			})
	}

	return nil
}

// MultiObjective reports whether the run scores named dimensions.
func (c *Config) MultiObjective() bool {
	return len(c.ObjectiveWeights) > 0
}
