/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/paraspace/internal/logging"
	"github.com/friendsincode/paraspace/internal/planner"
	"github.com/friendsincode/paraspace/internal/solver"
	"github.com/friendsincode/paraspace/internal/wire"
)

// problemFlags are shared by commands that read a problem file.
type problemFlags struct {
	inputFormat string
	format      string
}

func (f *problemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.inputFormat, "input-format", "json", "Format of a problem read from stdin (json|yaml)")
	cmd.Flags().StringVarP(&f.format, "format", "o", "table", "Output format (table|json|yaml)")
}

// load reads a problem file, or stdin when path is "-".
func (f *problemFlags) load(cmd *cobra.Command, path string) (wire.ProblemDoc, error) {
	if path != "-" {
		return wire.LoadFile(path)
	}
	format, err := wire.ParseFormat(f.inputFormat)
	if err != nil {
		return wire.ProblemDoc{}, err
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return wire.ProblemDoc{}, fmt.Errorf("read stdin: %w", err)
	}
	return wire.Decode(data, format)
}

func newSolveCmd() *cobra.Command {
	var (
		pf        problemFlags
		verbose   bool
		deadline  time.Duration
		maxTokens int
	)
	cmd := &cobra.Command{
		Use:   "solve <file>",
		Short: "Solve a problem file and print the plan",
		Long: `Load a problem (.json, .yaml or "-" for stdin), validate it and search for
a plan. The plan is printed as a table or as a json/yaml solution document.

Examples:
  paraspace solve rover.yaml
  paraspace solve rover.json --format json --deadline 5s
  cat rover.yaml | paraspace solve - --input-format yaml --verbose`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := pf.load(cmd, args[0])
			if err != nil {
				return err
			}
			p, err := doc.ToProblem()
			if err != nil {
				return err
			}

			opts := solver.Options{Verbose: verbose, MaxTokens: maxTokens}
			if verbose {
				opts.Trace = logging.Trace(cmd.ErrOrStderr(), "solver")
			}
			if deadline > 0 {
				opts.Deadline = time.Now().Add(deadline)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			started := time.Now()
			res, err := solver.Plan(ctx, p, opts)
			if err != nil {
				return err
			}

			sol := wire.FromSolution(res.Solution)
			out := cmd.OutOrStdout()
			if handled, err := writeDoc(out, sol, pf.format); handled {
				return err
			}
			renderSolution(out, sol)
			fmt.Fprintln(cmd.ErrOrStderr(), styles.Success.Render(
				fmt.Sprintf("solved: %s in %s", res, time.Since(started).Round(time.Millisecond))))
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Write search trace events to stderr")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "Abort the search after this long (0 = no deadline)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", solver.DefaultMaxTokens, "Ground token limit (negative disables)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var pf problemFlags
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a problem file is well formed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := pf.load(cmd, args[0])
			if err != nil {
				return err
			}
			resp, err := planner.ValidateDoc(doc)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if handled, err := writeDoc(out, resp, pf.format); handled {
				return err
			}
			fmt.Fprintln(out, styles.Success.Render("valid"))
			fmt.Fprintf(out, "timelines: %d\ngroups:    %d\ntokens:    %d\n", resp.Timelines, resp.Groups, resp.Tokens)
			fmt.Fprintln(out, styles.Muted.Render("fingerprint "+resp.Fingerprint))
			return nil
		},
	}
	pf.register(cmd)
	return cmd
}

func newGroundCmd() *cobra.Command {
	var (
		pf        problemFlags
		maxTokens int
	)
	cmd := &cobra.Command{
		Use:   "ground <file>",
		Short: "Preview the ground tokens and condition edges of a problem",
		Long: `Expand every goal and fact greedily until no condition is left open and
list the resulting ground tokens and edges. The preview ignores time, so a
problem that grounds may still be infeasible.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := pf.load(cmd, args[0])
			if err != nil {
				return err
			}
			p, err := doc.ToProblem()
			if err != nil {
				return err
			}
			g, err := planner.Ground(p, maxTokens)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if handled, err := writeDoc(out, g, pf.format); handled {
				return err
			}
			renderGround(out, g)
			return nil
		},
	}
	pf.register(cmd)
	cmd.Flags().IntVar(&maxTokens, "max-tokens", solver.DefaultMaxTokens, "Ground token limit (negative disables)")
	return cmd
}
