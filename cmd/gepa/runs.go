package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/gepa-go/pkg/archive"
)

// runsCmd inspects archived optimization runs.
func runsCmd() *cobra.Command {
	var archivePath string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect archived optimization runs",
	}

	cmd.PersistentFlags().StringVar(&archivePath, "archive", "gepa.db", "SQLite archive file")

	cmd.AddCommand(
		runsListCmd(&archivePath),
		runsShowCmd(&archivePath),
		runsLineageCmd(&archivePath),
	)

	return cmd
}

func runsListCmd(archivePath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := archive.Open(*archivePath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No archived runs found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTATUS\tBEST SCORE\tIMPROVEMENT\tROLLOUTS\tCREATED")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%.3f\t%+.3f\t%d\t%s\n",
					run.RunID, run.Status, run.BestScore, run.Improvement,
					run.RolloutsUsed, run.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func runsShowCmd(archivePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one archived run with its candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := archive.Open(*archivePath)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Run %s (%s)\n", run.RunID, run.Status)
			fmt.Printf("Seed prompt:  %s\n", run.SeedPrompt)
			fmt.Printf("Best prompt:  %s\n", run.BestPrompt)
			fmt.Printf("Best score:   %.3f (improvement %+.3f)\n", run.BestScore, run.Improvement)
			fmt.Printf("Rollouts:     %d in %s\n\n", run.RolloutsUsed, run.Elapsed.Round(time.Millisecond))

			candidates, err := store.Candidates(cmd.Context(), run.RunID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GEN\tID\tOPERATOR\tSCORE\tPROMPT")
			for _, c := range candidates {
				score := "-"
				if c.Score != nil {
					score = fmt.Sprintf("%.3f", *c.Score)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					c.Generation, c.CandidateID, c.Operator, score, truncate(c.Prompt, 60))
			}
			return w.Flush()
		},
	}
}

func runsLineageCmd(archivePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <run-id> <candidate-id>",
		Short: "Trace a candidate's ancestry back to the seed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := archive.Open(*archivePath)
			if err != nil {
				return err
			}
			defer store.Close()

			lineage, err := store.Lineage(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			for i, c := range lineage {
				score := "unscored"
				if c.Score != nil {
					score = fmt.Sprintf("score %.3f", *c.Score)
				}
				fmt.Printf("%s%s (%s, generation %d, %s)\n", indent(i), c.CandidateID, c.Operator, c.Generation, score)
				fmt.Printf("%s  %s\n", indent(i), truncate(c.Prompt, 80))
			}
			return nil
		},
	}
}

func indent(depth int) string {
	s := ""
	for i := 0; i < depth; i++ {
		s += "  "
	}
	return s
}
