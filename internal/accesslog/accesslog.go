// Package accesslog implements the optional persisted access log
// (SPEC_FULL.md §B.5): a gorm-over-sqlite recorder generalized from the
// teacher's internal/store/sqlite driver (same gorm.Open +
// db.AutoMigrate shape, one purpose-built table instead of the OCM share
// tables). Additive to, never a replacement for, the mandatory stdout
// access log line (spec.md §4.8 step 5) — and not a response cache,
// since it only records that a request happened, never serves one from
// a prior entry.
package accesslog

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Entry is one recorded request.
type Entry struct {
	ID                  uint      `gorm:"primaryKey"`
	Timestamp           time.Time `gorm:"index"`
	ConnID              string
	Host                string
	Path                string
	Status              int
	Meta                string
	PeerCertFingerprint string
}

// Log is a handle to the access log database.
type Log struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// migrates its schema.
func Open(path string) (*Log, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("accesslog: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("accesslog: migrate: %w", err)
	}
	return &Log{db: db}, nil
}

// Record persists one entry. Errors are the caller's to decide whether
// to log-and-continue or treat as fatal; the connection server treats
// them as non-fatal, since losing one access log row must never fail a
// Gemini response.
func (l *Log) Record(ctx context.Context, e Entry) error {
	result := l.db.WithContext(ctx).Create(&e)
	return result.Error
}

// Close closes the underlying database connection.
func (l *Log) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
