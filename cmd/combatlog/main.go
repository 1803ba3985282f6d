// Command combatlog is a reference host for the combat log pipeline (§6
// "CLI: outside the core"). It drives a Manager one line at a time and
// reports per-stream statistics on completion; no flag here is part of
// the pipeline's own contract.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "combatlog",
	Short: "Process combat logs through the combatlog pipeline",
	Long: `combatlog is a reference host for the combat log pipeline.

It is not part of the pipeline's own contract: the pipeline is driven by
calling Manager.ProcessLine on each log line, and this CLI exists only to
exercise that loop against real files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log pipeline diagnostics (malformed lines, plugin panics) to stderr")
	rootCmd.AddCommand(processCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
