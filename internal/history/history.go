// Package history persists terminal job snapshots independently of the live
// registry.
package history

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dammysspp/YT-SP/internal/models"
)

// Store is an append-only record of finished downloads backed by SQLite.
// Individual entries are never updated or deleted; Clear wipes everything.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the history database at path and migrates the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.AutoMigrate(&models.HistoryEntry{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &Store{db: db}, nil
}

// Append writes one entry. Entries are write-once.
func (s *Store) Append(e *models.HistoryEntry) error {
	return s.db.Create(e).Error
}

// List returns entries most-recent-first. A positive limit caps the result;
// limit <= 0 returns everything.
func (s *Store) List(limit int) ([]models.HistoryEntry, error) {
	var out []models.HistoryEntry
	q := s.db.Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Clear deletes all entries in one statement. Later appends are unaffected.
func (s *Store) Clear() error {
	return s.db.Where("1 = 1").Delete(&models.HistoryEntry{}).Error
}
