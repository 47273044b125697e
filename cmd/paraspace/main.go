/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/paraspace/internal/config"
	"github.com/friendsincode/paraspace/internal/logging"
	"github.com/friendsincode/paraspace/internal/problem"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "paraspace",
		Short: "paraspace - timeline planner",
		Long: `paraspace solves timeline planning problems: timelines of values with
duration bounds, temporal conditions between values and goal or fact tokens.
It runs locally on problem files or as an HTTP planner service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newSolveCmd(),
		newValidateCmd(),
		newGroundCmd(),
		newServeCmd(),
		newMigrateCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, styles.Error.Render("error: "+err.Error()))
		os.Exit(exitCode(err))
	}
}

// exitCode maps problem error kinds to distinct process exit codes.
func exitCode(err error) int {
	switch problem.KindOf(err) {
	case problem.KindMalformedProblem:
		return 2
	case problem.KindInfeasible, problem.KindUnbounded:
		return 3
	case problem.KindCancelled:
		return 4
	}
	return 1
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}
