package main

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/oracle"
)

// explainCmd asks the model why an optimized prompt outperforms the
// original. Advisory output for humans; consumes no run budget.
func explainCmd() *cobra.Command {
	var (
		original  string
		optimized string
		model     string
		apiKey    string
	)

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain how an optimized prompt differs from the original",
		RunE: func(cmd *cobra.Command, args []string) error {
			modelClient, err := oracle.NewAnthropicModel(apiKey, anthropic.Model(model))
			if err != nil {
				return err
			}

			cfg := core.DefaultConfig()
			client := oracle.NewClient(modelClient, core.NewBudget(0), cfg,
				oracle.WithCallLog(oracle.NewCallLog()))

			explanation, err := client.Explain(cmd.Context(), original, optimized)
			if err != nil {
				return err
			}

			fmt.Println(explanation)
			return nil
		},
	}

	cmd.Flags().StringVar(&original, "original", "", "original prompt (required)")
	cmd.Flags().StringVar(&optimized, "optimized", "", "optimized prompt (required)")
	cmd.Flags().StringVar(&model, "model", defaultModel, "Anthropic model ID")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Anthropic API key (default: ANTHROPIC_API_KEY)")

	_ = cmd.MarkFlagRequired("original")
	_ = cmd.MarkFlagRequired("optimized")

	return cmd
}
