package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize opens the SQLite database at dbPath and brings the schema up to date.
// The pool is capped at one connection: SQLite allows a single writer, and
// group creation relies on writes being serialized. Timestamps are stored in
// UTC so date range filters compare consistently.
func Initialize(dbPath string) (*gorm.DB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Migrate brings the schema up to date. It is safe to run on every start.
func Migrate(db *gorm.DB) error {
	if err := RunMigrations(db); err != nil {
		return err
	}

	return db.AutoMigrate(
		&Complainant{},
		&Officer{},
		&CaseGroup{},
		&GroupMerge{},
		&Case{},
		&Suspect{},
		&StructuredEvidence{},
		&EvidenceFile{},
	)
}
