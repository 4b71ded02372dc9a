// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/neurogears/antsct-prep/internal/paths"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop()

// NewRootCmd builds the command tree. The root command prepares a run when
// invoked without a subcommand.
func NewRootCmd() *cobra.Command {
	root := newPrepareCmd("antsct-prep")
	root.Short = "Resolve the anatomical input and template, then write the cortical thickness command"
	root.Long = `antsct-prep selects one T1-weighted image from a BIDS dataset (or takes a
manually supplied one), optionally stages a custom template bundle, and writes
the runAntsCT_nonBIDS.pl invocation to <output-dir>/` + paths.ArtifactName + `.`
	root.SilenceUsage = true
	root.SilenceErrors = true

	root.PersistentFlags().CountP("verbose", "v", "Increase log verbosity")
	root.PersistentFlags().String("data-dir", "", "Directory holding the preparation journal; overrides DATA_DIR")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
			paths.SetDataDirOverride(dir)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		l, err := newLogger(verbosity)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	}
	root.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	}

	root.AddCommand(newPrepareCmd("prepare"))
	root.AddCommand(NewHistoryCmd())
	root.AddCommand(NewCompletionCmd(root))
	return root
}

func newLogger(verbosity int) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if verbosity > 0 {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

// Execute runs the CLI and exits 1 on any failure.
func Execute() {
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		paths.SetDataDirOverride(dataDir)
	}
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "[x]", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}
