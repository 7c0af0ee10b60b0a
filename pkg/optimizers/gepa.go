// Package optimizers contains the optimization controller. GEPA drives
// the evolutionary loop: seed an initial population, evaluate every
// candidate against the training set, select survivors, vary, and repeat
// until convergence, budget exhaustion, or timeout.
package optimizers

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
	"github.com/XiaoConstantine/gepa-go/pkg/evaluator"
	"github.com/XiaoConstantine/gepa-go/pkg/logging"
	"github.com/XiaoConstantine/gepa-go/pkg/oracle"
	"github.com/XiaoConstantine/gepa-go/pkg/population"
	"github.com/XiaoConstantine/gepa-go/pkg/variation"
)

// proposalAttemptFactor bounds how many proposal attempts a single
// population fill may make, as a multiple of the population size. Keeps
// the loop finite when the oracle keeps returning duplicates or garbage.
const proposalAttemptFactor = 3

// GEPA is the optimization controller for one run. It owns the budget,
// the population, and the run's state machine. Not reusable: construct a
// new GEPA per run.
type GEPA struct {
	cfg    core.Config
	client *oracle.Client
	engine *variation.Engine
	eval   *evaluator.Evaluator
	budget *core.Budget
	pop    *population.Manager
	log    *oracle.CallLog
	logger *logging.Logger

	phase      core.Phase
	seed       *core.Candidate
	lastRanked []core.GenerationMember
	bestSoFar  float64
	stale      int
}

// NewGEPA validates the configuration and assembles a controller around
// the given model client. InvalidConfiguration is the only error path and
// it occurs before any oracle call, so a rejected config never costs
// budget.
func NewGEPA(model core.ModelClient, cfg *core.Config, opts ...oracle.Option) (*GEPA, error) {
	run := *cfg
	run.ApplyDefaults()
	if err := run.Validate(); err != nil {
		return nil, err
	}
	if run.RandomSeed == 0 {
		run.RandomSeed = time.Now().UnixNano()
	}

	budget := core.NewBudget(run.Budget)
	log := oracle.NewCallLog()
	clientOpts := []oracle.Option{oracle.WithCallLog(log)}
	if run.RateLimit > 0 {
		clientOpts = append(clientOpts, oracle.WithRateLimit(rate.Limit(run.RateLimit), run.Concurrency))
	}
	clientOpts = append(clientOpts, opts...)
	client := oracle.NewClient(model, budget, &run, clientOpts...)

	return &GEPA{
		cfg:       run,
		client:    client,
		engine:    variation.NewEngine(client, &run),
		eval:      evaluator.New(run.ObjectiveWeights),
		budget:    budget,
		pop:       population.NewManager(run.PopulationSize),
		log:       log,
		logger:    logging.GetLogger(),
		phase:     core.PhaseSeeding,
		bestSoFar: -1,
	}, nil
}

// CallLog exposes the run's oracle call log for inspection.
func (g *GEPA) CallLog() *oracle.CallLog {
	return g.log
}

// Run executes the optimization to a terminal state. Every run that
// starts returns an OptimizationResult; the only returned errors are
// caller cancellation of the context. A configured wall-clock timeout is
// not an error but the timeout terminal status.
func (g *GEPA) Run(ctx context.Context) (*core.OptimizationResult, error) {
	start := time.Now()
	runID := uuid.New().String()

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	g.logger.Info(ctx, "Starting GEPA run %s: population=%d, max_generations=%d, budget=%d",
		runID, g.cfg.PopulationSize, g.cfg.MaxGenerations, g.cfg.Budget)

	for !g.phase.Terminal() {
		var err error
		var next core.Phase

		switch g.phase {
		case core.PhaseSeeding:
			next, err = g.seeding(ctx)
		case core.PhaseEvaluating:
			next, err = g.evaluating(ctx)
		case core.PhaseSelecting:
			next, err = g.selecting(ctx)
		case core.PhaseVarying:
			next, err = g.varying(ctx)
		}

		if err != nil {
			return nil, err
		}
		g.logger.Debug(ctx, "Phase transition: %s -> %s (budget remaining: %d)",
			g.phase, next, g.budget.Remaining())
		g.phase = next
	}

	result := g.result(runID, start)
	g.logger.Info(ctx, "GEPA run %s finished: status=%s, best_score=%.3f, rollouts=%d, elapsed=%s",
		runID, result.Status, result.BestScore, result.RolloutsUsed, result.Elapsed)
	return result, nil
}

// seeding builds generation zero: the seed prompt plus fresh variants of
// it until the population is full, each variant costing one proposal.
func (g *GEPA) seeding(ctx context.Context) (core.Phase, error) {
	g.seed = core.NewCandidate(g.cfg.SeedPrompt, 0, core.OperatorSeed)
	g.pop.Install(g.seed)

	maxAttempts := g.pop.Size() * proposalAttemptFactor
	for attempts := 0; g.pop.Len() < g.pop.Size() && attempts < maxAttempts; attempts++ {
		child, err := g.engine.SeedVariant(ctx, g.seed)
		if err != nil {
			if phase, fatal, runErr := g.classify(ctx, err); fatal {
				return phase, runErr
			}
			continue
		}
		if !g.pop.Install(child) {
			g.logger.Debug(ctx, "Seed variant %s duplicated an existing candidate, skipping", child.ID)
		}
	}

	return core.PhaseEvaluating, nil
}

// evaluating scores every unscored member of the current generation.
// Rollouts are independent, so candidate-example pairs run concurrently
// up to the configured ceiling. When the budget dies mid-pass the run
// terminates with the scores obtained so far.
func (g *GEPA) evaluating(ctx context.Context) (core.Phase, error) {
	members := g.pop.Members()

	var mu sync.Mutex
	resultsByID := make(map[string][]core.EvaluationResult)
	var exhausted, timedOut bool
	var fatalErr error

	p := pool.New().WithMaxGoroutines(g.cfg.Concurrency)
	for _, member := range members {
		if member.Fitness != nil {
			continue
		}
		candidate := member.Candidate
		for i, example := range g.cfg.Examples {
			i, example := i, example
			p.Go(func() {
				mu.Lock()
				stop := exhausted || timedOut || fatalErr != nil
				mu.Unlock()
				if stop {
					return
				}

				result, err := g.client.Evaluate(ctx, candidate, i, example)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					switch {
					case stderrors.Is(err, oracle.ErrBudgetExhausted):
						exhausted = true
					case errors.CodeOf(err) == errors.OracleQuotaExhausted:
						exhausted = true
					case errors.CodeOf(err) == errors.Canceled:
						if ctx.Err() == context.DeadlineExceeded {
							timedOut = true
						} else {
							fatalErr = err
						}
					default:
						fatalErr = err
					}
					return
				}
				resultsByID[candidate.ID] = append(resultsByID[candidate.ID], result)
			})
		}
	}
	p.Wait()

	// Score every candidate whose evaluation completed. Partial result
	// sets stay unscored rather than producing a misleading aggregate.
	allFailed := true
	scoredAny := false
	for id, results := range resultsByID {
		if len(results) != len(g.cfg.Examples) {
			continue
		}
		// Rollouts land in completion order; restore example order so
		// fitness records and reflection evidence are reproducible.
		sort.Slice(results, func(a, b int) bool {
			return results[a].ExampleIndex < results[b].ExampleIndex
		})
		record, err := g.eval.Score(id, results, len(g.cfg.Examples))
		if err != nil {
			return 0, err
		}
		g.pop.SetFitness(id, record)
		scoredAny = true
		for _, r := range results {
			if !r.Failed {
				allFailed = false
			}
		}
	}

	switch {
	case fatalErr != nil:
		return 0, fatalErr
	case timedOut:
		g.pop.Freeze()
		g.pop.Commit()
		return core.PhaseTimeout, nil
	case exhausted:
		g.pop.Freeze()
		g.pop.Commit()
		return core.PhaseExhausted, nil
	case scoredAny && allFailed:
		// Every rollout in the generation failed after retries. The
		// oracle is effectively down; stop and report the best prior
		// candidate.
		g.logger.Warn(ctx, "All rollouts in generation %d failed, terminating run", g.pop.GenerationIndex())
		g.pop.Freeze()
		g.pop.Commit()
		return core.PhaseExhausted, nil
	}

	return core.PhaseSelecting, nil
}

// selecting commits the scored generation, ranks it, and applies the
// convergence policy: stop after patience generations without a better
// best score, or when the generation schedule is complete.
func (g *GEPA) selecting(ctx context.Context) (core.Phase, error) {
	gen := g.pop.Commit()
	g.lastRanked = g.pop.Ranked()

	if best := g.pop.Best(); best != nil && best.Fitness.Score > g.bestSoFar {
		g.bestSoFar = best.Fitness.Score
		g.stale = 0
	} else {
		g.stale++
	}

	if best := gen.Best(); best != nil {
		g.logger.Info(ctx, "Generation %d: best_score=%.3f (candidate %s), stale=%d",
			gen.Index, best.Fitness.Score, best.Candidate.ID, g.stale)
	}

	if g.stale >= g.cfg.Patience {
		return core.PhaseConverged, nil
	}
	if gen.Index+1 >= g.cfg.MaxGenerations {
		return core.PhaseConverged, nil
	}
	return core.PhaseVarying, nil
}

// varying builds the next generation: elites carry over with their
// scores, then offspring proposals fill the remaining slots. A proposal
// that fails or duplicates an existing member is skipped; only budget
// exhaustion stops the fill early.
func (g *GEPA) varying(ctx context.Context) (core.Phase, error) {
	elites := g.pop.Elites(g.cfg.ElitismCount)
	g.pop.Advance(elites)

	maxAttempts := g.pop.Size() * proposalAttemptFactor
	for attempts := 0; g.pop.Len() < g.pop.Size() && attempts < maxAttempts; attempts++ {
		child, err := g.engine.Offspring(ctx, g.lastRanked)
		if err != nil {
			if phase, fatal, runErr := g.classify(ctx, err); fatal {
				return phase, runErr
			}
			continue
		}
		if !g.pop.Install(child) {
			g.logger.Debug(ctx, "Offspring %s duplicated an existing candidate, skipping", child.ID)
		}
	}

	return core.PhaseEvaluating, nil
}

// classify sorts a proposal error into terminal conditions. Non-fatal
// errors (transient failure after retries, unusable response) just skip
// the offspring attempt.
func (g *GEPA) classify(ctx context.Context, err error) (core.Phase, bool, error) {
	switch {
	case stderrors.Is(err, oracle.ErrBudgetExhausted),
		errors.CodeOf(err) == errors.OracleQuotaExhausted:
		g.pop.Freeze()
		g.pop.Commit()
		return core.PhaseExhausted, true, nil
	case errors.CodeOf(err) == errors.Canceled:
		if ctx.Err() == context.DeadlineExceeded {
			g.pop.Freeze()
			g.pop.Commit()
			return core.PhaseTimeout, true, nil
		}
		return 0, true, err
	}
	return 0, false, nil
}

// result assembles the caller-visible outcome. Every terminated run has
// one; when nothing was ever scored the seed prompt is reported with a
// zero score.
func (g *GEPA) result(runID string, start time.Time) *core.OptimizationResult {
	res := &core.OptimizationResult{
		RunID:        runID,
		Status:       g.phase.Status(),
		Generations:  g.pop.History(),
		RolloutsUsed: g.budget.Spent(),
		Elapsed:      time.Since(start),
	}

	if best := g.pop.Best(); best != nil {
		res.Best = best.Candidate
		res.BestFitness = best.Fitness
		res.BestPrompt = best.Candidate.Prompt
		res.BestScore = best.Fitness.Score
		res.Improvement = res.BestScore - g.seedScore()
	} else {
		res.Best = g.seed
		res.BestPrompt = g.cfg.SeedPrompt
	}

	return res
}

// seedScore finds the seed prompt's own aggregate score in generation
// zero, the baseline for the reported improvement.
func (g *GEPA) seedScore() float64 {
	history := g.pop.History()
	if len(history) == 0 || g.seed == nil {
		return 0
	}
	for _, member := range history[0].Members {
		if member.Candidate.ID == g.seed.ID && member.Fitness != nil {
			return member.Fitness.Score
		}
	}
	return 0
}
