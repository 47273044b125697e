/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/friendsincode/paraspace/internal/wire"
)

// ProblemRecord stores a validated problem document, deduplicated by fingerprint.
type ProblemRecord struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Fingerprint string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"fingerprint"`
	Document    string    `gorm:"type:text;not null" json:"-"`
	Timelines   int       `json:"timelines"`
	Groups      int       `json:"groups"`
	Tokens      int       `json:"tokens"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the table name for GORM.
func (ProblemRecord) TableName() string { return "problems" }

// Doc decodes the stored problem document.
func (p *ProblemRecord) Doc() (wire.ProblemDoc, error) {
	var doc wire.ProblemDoc
	if err := json.Unmarshal([]byte(p.Document), &doc); err != nil {
		return doc, fmt.Errorf("decode problem %s: %w", p.ID, err)
	}
	return doc, nil
}

// RunStatus is the lifecycle state of a solve run.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunSolved  RunStatus = "solved"
	RunFailed  RunStatus = "failed"
)

// SolveRun records one solve request and its outcome.
type SolveRun struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProblemID    string     `gorm:"type:varchar(36);index;not null" json:"problem_id"`
	Fingerprint  string     `gorm:"type:varchar(64);index" json:"fingerprint"`
	Status       RunStatus  `gorm:"type:varchar(16);index;not null" json:"status"`
	ErrorKind    string     `gorm:"type:varchar(32)" json:"error_kind,omitempty"`
	Error        string     `gorm:"type:text" json:"error,omitempty"`
	Solution     string     `gorm:"type:text" json:"-"`
	Nodes        int        `json:"nodes"`
	Backtracks   int        `json:"backtracks"`
	GroundTokens int        `json:"ground_tokens"`
	DurationMS   int64      `json:"duration_ms"`
	Verbose      bool       `json:"verbose"`
	CacheHit     bool       `json:"cache_hit"`
	ArchiveKey   string     `json:"archive_key,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// TableName returns the table name for GORM.
func (SolveRun) TableName() string { return "solve_runs" }

// SolutionDoc decodes the stored solution. It returns nil for failed runs.
func (r *SolveRun) SolutionDoc() (*wire.SolutionDoc, error) {
	if r.Solution == "" {
		return nil, nil
	}
	var doc wire.SolutionDoc
	if err := json.Unmarshal([]byte(r.Solution), &doc); err != nil {
		return nil, fmt.Errorf("decode solution of run %s: %w", r.ID, err)
	}
	return &doc, nil
}

// SetSolution encodes doc into the run.
func (r *SolveRun) SetSolution(doc wire.SolutionDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode solution: %w", err)
	}
	r.Solution = string(data)
	return nil
}
