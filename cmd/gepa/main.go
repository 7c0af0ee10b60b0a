package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/gepa-go/pkg/logging"
)

var (
	verbose  bool
	logLevel string
	logFile  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gepa",
		Short: "GEPA - reflective evolutionary prompt optimization",
		Long: `gepa optimizes a seed prompt against a labeled training set using an
external language model as both fitness oracle and variation proposer.
Finished runs can be archived to SQLite and inspected later.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			severity := logging.ParseSeverity(logLevel)
			if verbose {
				severity = logging.DEBUG
			}
			outputs := []logging.Output{logging.NewConsoleOutput(true)}
			if logFile != "" {
				fileOut, err := logging.NewFileOutput(logFile)
				if err != nil {
					return err
				}
				outputs = append(outputs, fileOut)
			}
			logging.SetLogger(logging.NewLogger(logging.Config{
				Severity: severity,
				Outputs:  outputs,
			}))
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")

	rootCmd.AddCommand(
		optimizeCmd(),
		runsCmd(),
		explainCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
