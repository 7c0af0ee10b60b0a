package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/gepa-go/pkg/archive"
	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/optimizers"
	"github.com/XiaoConstantine/gepa-go/pkg/oracle"
)

const defaultModel = string(anthropic.ModelClaude_3_Haiku_20240307)

// optimizeCmd runs one optimization from the command line.
func optimizeCmd() *cobra.Command {
	var (
		seedPrompt   string
		examplesPath string
		budget       int
		population   int
		generations  int
		mutationRate float64
		crossover    float64
		patience     int
		elitism      int
		concurrency  int
		timeout      time.Duration
		rateLimit    float64
		temperature  float64
		maxTokens    int
		retries      int
		randomSeed   int64
		weights      []string
		model        string
		apiKey       string
		archivePath  string
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Optimize a seed prompt against a training set",
		Long: `Run one GEPA optimization. Training examples are read from a JSON file:

  [{"input": "...", "expected_keywords": ["...", "..."]}, ...]

Each example may also carry a "dimensions" object mapping objective names
to keyword lists for multi-objective runs (pair it with --weight flags).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			examples, err := loadExamples(examplesPath)
			if err != nil {
				return err
			}

			objectiveWeights, err := parseWeights(weights)
			if err != nil {
				return err
			}

			cfg := &core.Config{
				SeedPrompt:       seedPrompt,
				Examples:         examples,
				Budget:           budget,
				PopulationSize:   population,
				MaxGenerations:   generations,
				MutationRate:     mutationRate,
				CrossoverRate:    crossover,
				Patience:         patience,
				ElitismCount:     elitism,
				Concurrency:      concurrency,
				Timeout:          timeout,
				RateLimit:        rateLimit,
				Temperature:      temperature,
				MaxTokens:        maxTokens,
				MaxRetries:       retries,
				RandomSeed:       randomSeed,
				ObjectiveWeights: objectiveWeights,
			}

			modelClient, err := oracle.NewAnthropicModel(apiKey, anthropic.Model(model))
			if err != nil {
				return err
			}

			g, err := optimizers.NewGEPA(modelClient, cfg)
			if err != nil {
				return err
			}

			result, err := g.Run(cmd.Context())
			if err != nil {
				return err
			}

			printResult(result)

			if archivePath != "" {
				if err := archiveResult(cmd.Context(), archivePath, seedPrompt, result); err != nil {
					return err
				}
				fmt.Printf("\nArchived run %s to %s\n", result.RunID, archivePath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&seedPrompt, "seed", "", "seed prompt to optimize (required)")
	cmd.Flags().StringVar(&examplesPath, "examples", "", "path to training examples JSON file (required)")
	cmd.Flags().IntVar(&budget, "budget", 30, "maximum oracle calls for the run")
	cmd.Flags().IntVar(&population, "population", 0, "population size (default 4)")
	cmd.Flags().IntVar(&generations, "generations", 0, "maximum generations (default 5)")
	cmd.Flags().Float64Var(&mutationRate, "mutation-rate", 0.3, "reflective mutation probability")
	cmd.Flags().Float64Var(&crossover, "crossover-rate", 0.7, "crossover probability")
	cmd.Flags().IntVar(&patience, "patience", 0, "generations without improvement before converging (default: max generations)")
	cmd.Flags().IntVar(&elitism, "elitism", 0, "top candidates carried over unchanged (default 1)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel oracle calls during evaluation (default 3)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "wall-clock limit for the whole run (0 = none)")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "oracle calls per second (0 = unthrottled)")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature (default 0.7)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "rollout output token ceiling (default 100)")
	cmd.Flags().IntVar(&retries, "retries", 2, "retries per oracle call for transient failures")
	cmd.Flags().Int64Var(&randomSeed, "random-seed", 0, "operator RNG seed for reproducible runs (0 = from clock)")
	cmd.Flags().StringArrayVar(&weights, "weight", nil, "objective weight as name=value, repeatable (enables multi-objective mode)")
	cmd.Flags().StringVar(&model, "model", defaultModel, "Anthropic model ID")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Anthropic API key (default: ANTHROPIC_API_KEY)")
	cmd.Flags().StringVar(&archivePath, "archive", "", "SQLite file to archive the run to")

	_ = cmd.MarkFlagRequired("seed")
	_ = cmd.MarkFlagRequired("examples")

	return cmd
}

func loadExamples(path string) ([]core.TrainingExample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read examples file: %w", err)
	}
	var examples []core.TrainingExample
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("failed to parse examples file: %w", err)
	}
	return examples, nil
}

func parseWeights(flags []string) (map[string]float64, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	weights := make(map[string]float64, len(flags))
	for _, flag := range flags {
		name, value, ok := strings.Cut(flag, "=")
		if !ok {
			return nil, fmt.Errorf("invalid weight %q, expected name=value", flag)
		}
		w, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight value in %q: %w", flag, err)
		}
		weights[name] = w
	}
	return weights, nil
}

func printResult(result *core.OptimizationResult) {
	fmt.Printf("Run %s finished: %s\n\n", result.RunID, result.Status)
	fmt.Printf("Best prompt:\n  %s\n\n", result.BestPrompt)
	fmt.Printf("Best score:   %.3f\n", result.BestScore)
	fmt.Printf("Improvement:  %+.3f\n", result.Improvement)
	fmt.Printf("Rollouts:     %d\n", result.RolloutsUsed)
	fmt.Printf("Elapsed:      %s\n", result.Elapsed.Round(time.Millisecond))

	if result.BestFitness != nil && len(result.BestFitness.Dimensions) > 0 {
		fmt.Println("\nDimension scores:")
		for name, score := range result.BestFitness.Dimensions {
			fmt.Printf("  %-16s %.3f\n", name, score)
		}
	}

	fmt.Println("\nGenerations:")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  GEN\tCANDIDATES\tBEST SCORE\tBEST PROMPT")
	for _, gen := range result.Generations {
		best := gen.Best()
		if best == nil {
			fmt.Fprintf(w, "  %d\t%d\t-\t-\n", gen.Index, len(gen.Members))
			continue
		}
		fmt.Fprintf(w, "  %d\t%d\t%.3f\t%s\n", gen.Index, len(gen.Members), best.Fitness.Score, truncate(best.Candidate.Prompt, 60))
	}
	w.Flush()
}

func archiveResult(ctx context.Context, path, seedPrompt string, result *core.OptimizationResult) error {
	store, err := archive.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveRun(ctx, seedPrompt, result)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
