package database

import (
	"fmt"

	"gorm.io/gorm"
)

// Composite indexes are declared on the models. Earlier schemas created them
// with raw multi-line SQL, which the sqlite migrator cannot parse back.
var legacyIndexes = []string{
	"idx_cases_group_status",
	"idx_cases_type_time",
	"idx_evidence_case_type",
}

// RunMigrations executes migrations that AutoMigrate cannot express. It runs
// before AutoMigrate.
func RunMigrations(db *gorm.DB) error {
	if err := dropLegacyIndexes(db); err != nil {
		return fmt.Errorf("failed to drop legacy indexes: %w", err)
	}

	return nil
}

// dropLegacyIndexes removes index definitions stored with line breaks so
// AutoMigrate can recreate them from the model tags.
func dropLegacyIndexes(db *gorm.DB) error {
	var names []string
	if err := db.Raw(
		"SELECT name FROM sqlite_master WHERE type = 'index' AND name IN ? AND instr(sql, char(10)) > 0",
		legacyIndexes,
	).Scan(&names).Error; err != nil {
		return err
	}

	for _, name := range names {
		if err := db.Exec("DROP INDEX IF EXISTS " + name).Error; err != nil {
			return err
		}
	}

	return nil
}
