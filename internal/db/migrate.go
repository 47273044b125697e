/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"github.com/friendsincode/paraspace/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.ProblemRecord{},
		&models.SolveRun{},
	); err != nil {
		return err
	}

	return failStaleRuns(database)
}

// failStaleRuns closes runs left pending by a process that exited mid-solve.
func failStaleRuns(database *gorm.DB) error {
	return database.Model(&models.SolveRun{}).
		Where("status = ?", models.RunPending).
		Updates(map[string]any{
			"status":     models.RunFailed,
			"error_kind": "cancelled",
			"error":      "interrupted by restart",
		}).Error
}
