package oracle

import (
	"context"
	stderrors "errors"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
	"github.com/XiaoConstantine/gepa-go/pkg/logging"
)

// ErrBudgetExhausted signals that the run's oracle budget reached zero.
// It is a terminal condition for the run, not a failure of the call.
var ErrBudgetExhausted = stderrors.New("oracle budget exhausted")

// proposalMaxTokens is the output ceiling for proposal roles. Proposals
// return whole prompts, which need more room than rollout outputs.
const proposalMaxTokens = 512

// Parent pairs a parent candidate with its current fitness score for
// proposal prompts.
type Parent struct {
	Candidate *core.Candidate
	Score     float64
}

// Client is the oracle client: it sends candidate prompts and proposal
// requests to the external model, scores rollout outputs, charges the
// budget, and retries transient failures with exponential backoff.
// Stateless per call apart from the shared budget and call log.
type Client struct {
	model   core.ModelClient
	budget  *core.Budget
	log     *CallLog
	limiter *rate.Limiter

	retries     int
	backoffBase time.Duration

	rolloutSampling  core.SamplingConfig
	proposalSampling core.SamplingConfig

	variationSeq atomic.Int64
}

// Option configures optional client behavior.
type Option func(*Client)

// WithCallLog attaches a call log that records every oracle invocation.
func WithCallLog(log *CallLog) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithRateLimit bounds the request rate to the model service.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithBackoffBase overrides the first retry delay. Mainly for tests.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = d
	}
}

// NewClient builds an oracle client for one run. The budget is the run's
// shared rollout counter; sampling settings come from the run config so
// evaluation stays comparable across candidates.
func NewClient(model core.ModelClient, budget *core.Budget, cfg *core.Config, opts ...Option) *Client {
	c := &Client{
		model:       model,
		budget:      budget,
		retries:     cfg.MaxRetries,
		backoffBase: 200 * time.Millisecond,
		rolloutSampling: core.SamplingConfig{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
		proposalSampling: core.SamplingConfig{
			Temperature: cfg.Temperature,
			MaxTokens:   proposalMaxTokens,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Log returns the attached call log, if any.
func (c *Client) Log() *CallLog {
	return c.log
}

// Evaluate runs one candidate against one training example and scores the
// output. Consumes exactly one budget unit on success. A call that still
// fails after retries is recorded as a failed zero-score result and the
// budget reservation is refunded, so outages degrade scores rather than
// silently draining the budget. Quota exhaustion and cancellation are
// returned to the caller instead.
func (c *Client) Evaluate(ctx context.Context, candidate *core.Candidate, exampleIndex int, example core.TrainingExample) (core.EvaluationResult, error) {
	if !c.budget.Reserve() {
		return core.EvaluationResult{}, ErrBudgetExhausted
	}

	output, attempts, err := c.complete(ctx, candidate.Prompt, rolloutPrompt(example.Input), c.rolloutSampling)
	if err != nil {
		c.budget.Refund()
		c.log.add(CallRecord{
			Role:         RoleRollout,
			CandidateIDs: []string{candidate.ID},
			Charged:      false,
			Attempts:     attempts,
			Err:          err,
		})

		switch errors.CodeOf(err) {
		case errors.Canceled, errors.OracleQuotaExhausted:
			return core.EvaluationResult{}, err
		}

		return core.EvaluationResult{
			CandidateID:  candidate.ID,
			ExampleIndex: exampleIndex,
			Score:        0.0,
			Feedback:     "oracle call failed: " + err.Error(),
			Failed:       true,
		}, nil
	}

	c.log.add(CallRecord{
		Role:         RoleRollout,
		CandidateIDs: []string{candidate.ID},
		Charged:      true,
		Attempts:     attempts,
	})

	score, feedback := ScoreKeywords(output, example.ExpectedKeywords)
	result := core.EvaluationResult{
		CandidateID:  candidate.ID,
		ExampleIndex: exampleIndex,
		Output:       output,
		Score:        score,
		Feedback:     feedback,
	}

	if len(example.Dimensions) > 0 {
		result.DimensionScores = make(map[string]float64, len(example.Dimensions))
		for name, keywords := range example.Dimensions {
			dimScore, _ := ScoreKeywords(output, keywords)
			result.DimensionScores[name] = dimScore
		}
	}

	return result, nil
}

// Propose asks the oracle for a new candidate. One parent with feedback
// performs reflective mutation, one parent without feedback produces a
// seed-stage variation, and two parents perform crossover. Consumes one
// budget unit on success; a proposal that fails after retries is refunded
// and the error returned so the caller can skip the offspring.
func (c *Client) Propose(ctx context.Context, parents []Parent, feedback []core.EvaluationResult, examples []core.TrainingExample) (*core.Candidate, error) {
	if len(parents) == 0 || len(parents) > 2 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidConfiguration, "propose requires one or two parents"),
			errors.Fields{"parents": len(parents)})
	}

	if !c.budget.Reserve() {
		return nil, ErrBudgetExhausted
	}

	var (
		system, user string
		role         Role
		op           core.Operator
		parentIDs    []string
		generation   int
	)

	switch {
	case len(parents) == 2:
		role, op = RoleCrossover, core.OperatorCrossover
		a, b := parents[0], parents[1]
		system, user = crossoverPrompt(a.Candidate, a.Score, b.Candidate, b.Score)
		parentIDs = []string{a.Candidate.ID, b.Candidate.ID}
		generation = maxInt(a.Candidate.Generation, b.Candidate.Generation) + 1
	case len(feedback) > 0:
		role, op = RoleReflect, core.OperatorMutation
		parent := parents[0]
		system, user = reflectionPrompt(parent.Candidate.Prompt, formatEvidence(examples, feedback))
		parentIDs = []string{parent.Candidate.ID}
		generation = parent.Candidate.Generation + 1
	default:
		role, op = RoleVariation, core.OperatorMutation
		parent := parents[0]
		system, user = variationPrompt(parent.Candidate.Prompt, int(c.variationSeq.Add(1)))
		parentIDs = []string{parent.Candidate.ID}
		generation = parent.Candidate.Generation + 1
	}

	content, attempts, err := c.complete(ctx, system, user, c.proposalSampling)
	if err != nil {
		c.budget.Refund()
		c.log.add(CallRecord{Role: role, CandidateIDs: parentIDs, Charged: false, Attempts: attempts, Err: err})
		return nil, err
	}

	prompt := extractPrompt(content)
	if prompt == "" {
		// The model answered but produced nothing usable. The call is
		// still charged: the service did its work.
		c.log.add(CallRecord{Role: role, CandidateIDs: parentIDs, Charged: true, Attempts: attempts})
		return nil, errors.New(errors.OracleResponseInvalid, "proposal response contained no prompt text")
	}

	c.log.add(CallRecord{Role: role, CandidateIDs: parentIDs, Charged: true, Attempts: attempts})

	return core.NewCandidate(prompt, generation, op, parentIDs...), nil
}

// Explain produces an advisory comparison of an original and an optimized
// prompt. It runs outside any optimization run and consumes no budget.
func (c *Client) Explain(ctx context.Context, original, optimized string) (string, error) {
	system, user := explainPrompt(original, optimized)
	content, attempts, err := c.complete(ctx, system, user, c.proposalSampling)
	c.log.add(CallRecord{Role: RoleExplain, Charged: false, Attempts: attempts, Err: err})
	if err != nil {
		return "", err
	}
	return content, nil
}

// complete performs one logical model call with bounded retries and
// exponential backoff. Only transient errors are retried; quota
// exhaustion, cancellation, and invalid-response errors surface at once.
func (c *Client) complete(ctx context.Context, system, user string, sampling core.SamplingConfig) (string, int, error) {
	logger := logging.GetLogger()

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(c.backoffBase) * math.Pow(2, float64(attempt-1)))
			logger.Debug(ctx, "Retrying oracle call: attempt=%d, backoff=%s", attempt+1, backoff)
			select {
			case <-ctx.Done():
				return "", attempt, errors.Wrap(ctx.Err(), errors.Canceled, "oracle call canceled during retry backoff")
			case <-time.After(backoff):
			}
		}

		if err := errors.CheckContext(ctx, "oracle call"); err != nil {
			return "", attempt, err
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", attempt + 1, errors.Wrap(err, errors.Canceled, "oracle call canceled while rate limited")
			}
		}

		content, err := c.model.Complete(ctx, system, user, sampling)
		if err == nil {
			return content, attempt + 1, nil
		}
		lastErr = err

		switch errors.CodeOf(err) {
		case errors.OracleQuotaExhausted, errors.Canceled, errors.OracleResponseInvalid:
			return "", attempt + 1, err
		}
		// Unknown and TransientOracle codes are retried.
	}

	return "", c.retries + 1, errors.Wrap(lastErr, errors.TransientOracle, "oracle call failed after retries")
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
