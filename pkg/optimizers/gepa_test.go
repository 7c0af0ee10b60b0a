package optimizers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/gepa-go/internal/testutil"
	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
	"github.com/XiaoConstantine/gepa-go/pkg/oracle"
)

func runConfig() *core.Config {
	return &core.Config{
		SeedPrompt:     "Summarize this text",
		Examples:       []core.TrainingExample{{Input: "the quick brown fox", ExpectedKeywords: []string{"alpha"}}},
		Budget:         100,
		PopulationSize: 3,
		MaxGenerations: 2,
		MutationRate:   0.3,
		CrossoverRate:  0.7,
		RandomSeed:     7,
	}
}

// improvingOracle answers proposal prompts with numbered variants and
// scores seed rollouts worse than variant rollouts.
func improvingOracle() func(system, user string) (string, error) {
	var mu sync.Mutex
	var n int
	return func(system, user string) (string, error) {
		if strings.Contains(system, "prompt engineer") {
			mu.Lock()
			n++
			v := n
			mu.Unlock()
			return fmt.Sprintf("Improved variant %d", v), nil
		}
		if strings.Contains(system, "Improved variant") {
			return "alpha beta", nil
		}
		return "no keywords here", nil
	}
}

func assertUniquePromptsPerGeneration(t *testing.T, generations []*core.Generation) {
	t.Helper()
	for _, gen := range generations {
		seen := map[string]bool{}
		for _, member := range gen.Members {
			assert.False(t, seen[member.Candidate.Prompt],
				"generation %d contains duplicate prompt %q", gen.Index, member.Candidate.Prompt)
			seen[member.Candidate.Prompt] = true
		}
	}
}

func TestEmptyTrainingSetFailsFastWithoutOracleCalls(t *testing.T) {
	model := testutil.NewScriptedModel()
	cfg := runConfig()
	cfg.Examples = nil

	_, err := NewGEPA(model, cfg)
	require.Error(t, err)
	assert.Equal(t, errors.InvalidConfiguration, errors.CodeOf(err))
	assert.Zero(t, model.CallCount(), "invalid configuration must not cost any oracle call")
}

func TestTightBudgetRunStaysWithinBudget(t *testing.T) {
	model := testutil.NewScriptedModel()
	model.Fallback = testutil.EchoProposals("alpha")

	cfg := runConfig()
	cfg.Budget = 6

	g, err := NewGEPA(model, cfg)
	require.NoError(t, err)

	result, err := g.Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, result.RolloutsUsed, 6)
	assert.LessOrEqual(t, g.CallLog().Charged(), 6)
	assert.Contains(t, []core.RunStatus{core.StatusExhausted, core.StatusConverged}, result.Status)
	assert.NotEmpty(t, result.BestPrompt)
	assertUniquePromptsPerGeneration(t, result.Generations)
}

func TestBestScoreNeverRegressesAcrossGenerations(t *testing.T) {
	model := testutil.NewScriptedModel()
	model.Fallback = improvingOracle()

	cfg := runConfig()
	cfg.MaxGenerations = 3

	g, err := NewGEPA(model, cfg)
	require.NoError(t, err)

	result, err := g.Run(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.Generations), 2, "run must complete at least two generations")

	prev := -1.0
	for _, gen := range result.Generations {
		best := gen.Best()
		require.NotNil(t, best, "generation %d has no scored member", gen.Index)
		assert.GreaterOrEqual(t, best.Fitness.Score, prev,
			"elitism must keep generation bests monotone (generation %d)", gen.Index)
		prev = best.Fitness.Score
	}

	assert.Equal(t, 1.0, result.BestScore)
	assert.Equal(t, 1.0, result.Improvement, "seed scored zero, best scored one")
}

func TestDuplicateProposalsAreSkipped(t *testing.T) {
	model := testutil.NewScriptedModel()
	model.Fallback = func(system, user string) (string, error) {
		if strings.Contains(system, "prompt engineer") {
			return "The one and only variant", nil
		}
		return "alpha", nil
	}

	g, err := NewGEPA(model, runConfig())
	require.NoError(t, err)

	result, err := g.Run(context.Background())
	require.NoError(t, err)

	assertUniquePromptsPerGeneration(t, result.Generations)
	for _, gen := range result.Generations {
		assert.LessOrEqual(t, len(gen.Members), 2,
			"a proposer stuck on one prompt cannot fill more than seed plus one variant")
	}
}

func TestIdenticalConfigurationsProduceIdenticalResults(t *testing.T) {
	run := func() *core.OptimizationResult {
		model := testutil.NewScriptedModel()
		model.Fallback = improvingOracle()
		cfg := runConfig()
		cfg.Examples = append(cfg.Examples,
			core.TrainingExample{Input: "jumps over the lazy dog", ExpectedKeywords: []string{"beta"}})
		g, err := NewGEPA(model, cfg)
		require.NoError(t, err)
		result, err := g.Run(context.Background())
		require.NoError(t, err)
		return result
	}

	a, b := run(), run()

	assert.Equal(t, a.BestPrompt, b.BestPrompt)
	assert.Equal(t, a.BestScore, b.BestScore)
	assert.Equal(t, a.Status, b.Status)
	assert.Equal(t, a.RolloutsUsed, b.RolloutsUsed)
	require.Equal(t, len(a.Generations), len(b.Generations))
	for i := range a.Generations {
		require.Equal(t, len(a.Generations[i].Members), len(b.Generations[i].Members))
		for j := range a.Generations[i].Members {
			ma, mb := a.Generations[i].Members[j], b.Generations[i].Members[j]
			assert.Equal(t, ma.Candidate.Prompt, mb.Candidate.Prompt)
			if ma.Fitness != nil || mb.Fitness != nil {
				require.NotNil(t, ma.Fitness)
				require.NotNil(t, mb.Fitness)
				assert.Equal(t, ma.Fitness.Score, mb.Fitness.Score)
				require.Equal(t, len(ma.Fitness.Results), len(mb.Fitness.Results))
				for k := range ma.Fitness.Results {
					assert.Equal(t, ma.Fitness.Results[k].ExampleIndex, mb.Fitness.Results[k].ExampleIndex,
						"result order must not depend on rollout completion order")
					assert.Equal(t, ma.Fitness.Results[k].Feedback, mb.Fitness.Results[k].Feedback)
				}
			}
		}
	}
}

func TestConcurrentEvaluationKeepsExampleOrder(t *testing.T) {
	model := testutil.NewScriptedModel()
	inner := improvingOracle()
	model.Fallback = func(system, user string) (string, error) {
		// Make the first example the slowest rollout so completion order
		// inverts submission order.
		if strings.Contains(user, "the quick brown fox") {
			time.Sleep(5 * time.Millisecond)
		}
		return inner(system, user)
	}

	cfg := runConfig()
	cfg.Examples = []core.TrainingExample{
		{Input: "the quick brown fox", ExpectedKeywords: []string{"alpha"}},
		{Input: "jumps over the lazy dog", ExpectedKeywords: []string{"beta"}},
		{Input: "and lands on its feet", ExpectedKeywords: []string{"gamma"}},
	}
	cfg.Concurrency = 3

	g, err := NewGEPA(model, cfg)
	require.NoError(t, err)

	result, err := g.Run(context.Background())
	require.NoError(t, err)

	for _, gen := range result.Generations {
		for _, member := range gen.Members {
			if member.Fitness == nil {
				continue
			}
			require.Len(t, member.Fitness.Results, len(cfg.Examples))
			for i, r := range member.Fitness.Results {
				assert.Equal(t, i, r.ExampleIndex,
					"generation %d member %s holds results out of example order",
					gen.Index, member.Candidate.ID)
			}
		}
	}
}

func TestAllZeroScoresReturnSeedPrompt(t *testing.T) {
	model := testutil.NewScriptedModel()
	model.Fallback = testutil.EchoProposals("nothing relevant at all")

	g, err := NewGEPA(model, runConfig())
	require.NoError(t, err)

	result, err := g.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, []core.RunStatus{core.StatusExhausted, core.StatusConverged}, result.Status)
	assert.Equal(t, 0.0, result.BestScore)
	assert.Equal(t, "Summarize this text", result.BestPrompt,
		"with all scores tied at zero the earliest discovery, the seed, wins")
	assert.Equal(t, 0.0, result.Improvement)
}

func TestZeroMutationRateProducesOnlyCrossoverOffspring(t *testing.T) {
	model := testutil.NewScriptedModel()
	model.Fallback = improvingOracle()

	cfg := runConfig()
	cfg.PopulationSize = 4
	cfg.MutationRate = 0.0
	cfg.CrossoverRate = 1.0
	cfg.MaxGenerations = 3

	g, err := NewGEPA(model, cfg)
	require.NoError(t, err)

	result, err := g.Run(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(result.Generations), 2)

	counts := g.CallLog().CountByRole()
	assert.Zero(t, counts[oracle.RoleReflect],
		"mutation_rate zero must produce no reflective mutations")
	assert.Greater(t, counts[oracle.RoleCrossover], 0)
	assert.Equal(t, 3, counts[oracle.RoleVariation],
		"seed-stage variations fill the initial generation only")
}

func TestRateLimitThrottlesOracleCalls(t *testing.T) {
	model := testutil.NewScriptedModel()
	model.Fallback = improvingOracle()

	cfg := runConfig()
	cfg.MaxGenerations = 1
	cfg.Concurrency = 1
	cfg.RateLimit = 50 // one oracle call per 20ms

	g, err := NewGEPA(model, cfg)
	require.NoError(t, err)

	start := time.Now()
	result, err := g.Run(context.Background())
	require.NoError(t, err)

	calls := len(g.CallLog().Records())
	require.Greater(t, calls, 1)
	assert.GreaterOrEqual(t, time.Since(start), time.Duration(calls-1)*20*time.Millisecond,
		"every call past the first must wait out the limiter interval")
	assert.NotEmpty(t, result.BestPrompt)
}

func TestQuotaExhaustionTerminatesRun(t *testing.T) {
	model := testutil.NewScriptedModel(
		testutil.ScriptedResponse{Err: errors.New(errors.OracleQuotaExhausted, "credit balance too low")},
	)

	g, err := NewGEPA(model, runConfig())
	require.NoError(t, err)

	result, err := g.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.StatusExhausted, result.Status)
	assert.Equal(t, "Summarize this text", result.BestPrompt)
	assert.Equal(t, 1, model.CallCount(), "quota errors surface immediately, no retry")
	assert.Zero(t, result.RolloutsUsed, "a refunded call is not charged")
}

func TestWallClockTimeoutReturnsTimeoutStatus(t *testing.T) {
	model := testutil.NewScriptedModel()
	inner := improvingOracle()
	model.Fallback = func(system, user string) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return inner(system, user)
	}

	cfg := runConfig()
	cfg.Timeout = time.Millisecond

	g, err := NewGEPA(model, cfg)
	require.NoError(t, err)

	result, err := g.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.StatusTimeout, result.Status)
	assert.NotEmpty(t, result.BestPrompt)
}

func TestCallerCancellationReturnsError(t *testing.T) {
	model := testutil.NewScriptedModel()
	model.Fallback = improvingOracle()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g, err := NewGEPA(model, runConfig())
	require.NoError(t, err)

	_, err = g.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, errors.Canceled, errors.CodeOf(err))
}

func TestBudgetExhaustionDuringEvaluationUsesScoresSoFar(t *testing.T) {
	model := testutil.NewScriptedModel()
	model.Fallback = improvingOracle()

	cfg := runConfig()
	// Two proposals fill the population; the third rollout has no budget.
	cfg.Budget = 4
	cfg.Concurrency = 1

	g, err := NewGEPA(model, cfg)
	require.NoError(t, err)

	result, err := g.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, core.StatusExhausted, result.Status)
	assert.Equal(t, 4, result.RolloutsUsed)
	assert.NotEmpty(t, result.BestPrompt)
	require.Len(t, result.Generations, 1)
}

func TestDefaultsAppliedAndConfigNotMutated(t *testing.T) {
	model := testutil.NewScriptedModel()
	model.Fallback = testutil.EchoProposals("alpha")

	cfg := &core.Config{
		SeedPrompt: "Summarize this text",
		Examples:   []core.TrainingExample{{Input: "x", ExpectedKeywords: []string{"alpha"}}},
		Budget:     50,
	}

	g, err := NewGEPA(model, cfg)
	require.NoError(t, err)
	assert.Zero(t, cfg.PopulationSize, "caller's configuration must stay untouched")

	result, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.NotEmpty(t, result.BestPrompt)
	assert.GreaterOrEqual(t, result.Elapsed, time.Duration(0))
}
