/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/friendsincode/paraspace/internal/planner"
	"github.com/friendsincode/paraspace/internal/wire"
)

var (
	colorAccent  = lipgloss.Color("#20B9B4")
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#2C4A54")
)

var styles = struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Success: lipgloss.NewStyle().Foreground(colorSuccess),
	Error:   lipgloss.NewStyle().Foreground(colorError),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1),
	Cell:    lipgloss.NewStyle().Padding(0, 1),
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			return styles.Cell
		}).
		Headers(headers...)
}

func formatTime(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func renderSolution(w io.Writer, doc wire.SolutionDoc) {
	t := newTable("OBJECT", "VALUE", "START", "END")
	for _, tok := range doc.Tokens {
		end := "inf"
		if tok.EndTime != nil {
			end = formatTime(*tok.EndTime)
		}
		t.Row(tok.ObjectName, tok.Value, formatTime(tok.StartTime), end)
	}
	fmt.Fprintln(w, t.Render())
}

func renderGround(w io.Writer, g *planner.GroundResponse) {
	fmt.Fprintln(w, styles.Title.Render(fmt.Sprintf("%d ground tokens", len(g.Tokens))))
	t := newTable("ID", "TIMELINE", "VALUE", "AMOUNT", "START", "END", "ROLE")
	for _, tok := range g.Tokens {
		role := "-"
		switch {
		case tok.Goal:
			role = "goal"
		case tok.Fact:
			role = "fact"
		case tok.Support:
			role = "support of " + strconv.Itoa(tok.Parent)
		}
		t.Row(strconv.Itoa(tok.ID), tok.Timeline, tok.Value, strconv.Itoa(tok.Amount), tok.Start, tok.End, role)
	}
	fmt.Fprintln(w, t.Render())

	if len(g.Edges) == 0 {
		return
	}
	fmt.Fprintln(w, styles.Title.Render(fmt.Sprintf("%d condition edges", len(g.Edges))))
	e := newTable("FROM", "RELATION", "TO", "AMOUNT")
	for _, edge := range g.Edges {
		e.Row(strconv.Itoa(edge.From), edge.Relation, strconv.Itoa(edge.To), strconv.Itoa(edge.Amount))
	}
	fmt.Fprintln(w, e.Render())
}

// writeDoc encodes v as json or yaml, or reports false for the table format.
func writeDoc(w io.Writer, v any, format string) (bool, error) {
	if format == "" || format == "table" {
		return false, nil
	}
	f, err := wire.ParseFormat(format)
	if err != nil {
		return true, err
	}
	data, err := wire.Encode(v, f)
	if err != nil {
		return true, err
	}
	if _, err := w.Write(data); err != nil {
		return true, err
	}
	if f == wire.FormatJSON {
		_, err = fmt.Fprintln(w)
	}
	return true, err
}
