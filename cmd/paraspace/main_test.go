/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/friendsincode/paraspace/internal/planner"
	"github.com/friendsincode/paraspace/internal/problem"
	"github.com/friendsincode/paraspace/internal/wire"
)

const goalJSON = `{
  "timelines": [{"name": "T", "values": [{"name": "v", "duration": [1, 1], "capacity": 1}]}],
  "tokens": [{"timeline_name": "T", "value": "v", "capacity": 1, "const_time": null}]
}`

const infeasibleJSON = `{
  "timelines": [{"name": "T", "values": [{"name": "v", "duration": [2, 2], "capacity": 1}]}],
  "tokens": [{"timeline_name": "T", "value": "v", "capacity": 1, "const_time": [0, 5]}]
}`

const goalYAML = `
timelines:
  - name: T
    values:
      - name: v
        duration: [1, 1]
        capacity: 1
tokens:
  - timeline_name: T
    value: v
    capacity: 1
    const_time: null
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestSolveJSON(t *testing.T) {
	path := writeFile(t, "goal.json", goalJSON)
	out, _, err := run(t, "", "solve", path, "--format", "json")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	var sol wire.SolutionDoc
	if err := json.Unmarshal([]byte(out), &sol); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	found := false
	for _, tok := range sol.Tokens {
		if tok.ObjectName == "T" && tok.Value == "v" {
			found = true
		}
	}
	if !found {
		t.Fatalf("goal token missing from %+v", sol.Tokens)
	}
}

func TestSolveTableAndTrace(t *testing.T) {
	path := writeFile(t, "goal.yaml", goalYAML)
	out, errOut, err := run(t, "", "solve", path, "--verbose")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !strings.Contains(out, "OBJECT") || !strings.Contains(out, "T") {
		t.Fatalf("expected a solution table, got %q", out)
	}
	if !strings.Contains(errOut, `"component":"solver"`) || !strings.Contains(errOut, `"message":"solved"`) {
		t.Fatalf("expected solver trace on stderr, got %q", errOut)
	}
}

func TestSolveInfeasible(t *testing.T) {
	path := writeFile(t, "bad.json", infeasibleJSON)
	_, _, err := run(t, "", "solve", path)
	if problem.KindOf(err) != problem.KindInfeasible {
		t.Fatalf("expected infeasible, got %v", err)
	}
	if code := exitCode(err); code != 3 {
		t.Fatalf("exit code=%d, want 3", code)
	}
}

func TestValidate(t *testing.T) {
	path := writeFile(t, "goal.yaml", goalYAML)
	out, _, err := run(t, "", "validate", path, "--format", "json")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var resp planner.ValidateResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !resp.Valid || resp.Timelines != 1 || resp.Tokens != 1 || resp.Fingerprint == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	bad := writeFile(t, "bad.json", strings.Replace(goalJSON, `"value": "v"`, `"value": "w"`, 1))
	_, _, err = run(t, "", "validate", bad)
	if !errors.Is(err, problem.ErrMalformedProblem) {
		t.Fatalf("expected malformed problem, got %v", err)
	}
	if code := exitCode(err); code != 2 {
		t.Fatalf("exit code=%d, want 2", code)
	}
}

func TestGroundFromStdin(t *testing.T) {
	out, _, err := run(t, goalYAML, "ground", "-", "--input-format", "yaml", "--format", "json")
	if err != nil {
		t.Fatalf("ground: %v", err)
	}
	var g planner.GroundResponse
	if err := json.Unmarshal([]byte(out), &g); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(g.Tokens) != 1 || !g.Tokens[0].Goal {
		t.Fatalf("unexpected ground tokens: %+v", g.Tokens)
	}
}

func TestUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "goal.toml", goalJSON)
	if _, _, err := run(t, "", "solve", path); err == nil {
		t.Fatalf("expected error for .toml file")
	}
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "paraspace ") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{problem.Malformed("T", "bad"), 2},
		{problem.Errorf(problem.KindUnbounded, "loop"), 3},
		{problem.Errorf(problem.KindCancelled, "deadline"), 4},
		{problem.Errorf(problem.KindInternal, "bug"), 1},
		{errors.New("plain"), 1},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Fatalf("exitCode(%v)=%d, want %d", tt.err, got, tt.want)
		}
	}
}
