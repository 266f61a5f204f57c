// Package highlightcache stores hashes of already-synced highlights so a
// re-run never duplicates quote blocks on existing pages.
package highlightcache

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CorruptionError signals that the cache database cannot be read or
// written and needs a rebuild.
type CorruptionError struct {
	Err error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("highlight cache corrupted: %v", e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

const schemaVersion = 1

// Meta carries the cache schema version so future migrations can detect
// older layouts.
type Meta struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

func (Meta) TableName() string { return "cache_meta" }

// Entry is one synced highlight, keyed by the highlight's content hash.
type Entry struct {
	HighlightHash string    `gorm:"primaryKey;column:highlight_hash"`
	BookID        string    `gorm:"index;column:book_id"`
	NotionPageID  string    `gorm:"column:notion_page_id"`
	SyncTimestamp time.Time `gorm:"column:sync_timestamp"`
}

func (Entry) TableName() string { return "highlights" }

// Validation reports the outcome of a cache integrity check.
type Validation struct {
	Valid      bool
	Reason     string
	EntryCount int64
	SizeBytes  int64
}

// Store is the on-disk highlight cache.
type Store struct {
	db   *gorm.DB
	path string
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, &CorruptionError{Err: err}
	}
	if err := db.AutoMigrate(&Meta{}, &Entry{}); err != nil {
		return nil, &CorruptionError{Err: err}
	}
	version := Meta{Key: "schema_version", Value: fmt.Sprintf("%d", schemaVersion)}
	if err := db.Save(&version).Error; err != nil {
		return nil, &CorruptionError{Err: err}
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Path returns the cache database location.
func (s *Store) Path() string { return s.path }

// Has reports whether the highlight hash has been synced before.
func (s *Store) Has(hash string) (bool, error) {
	var count int64
	if err := s.db.Model(&Entry{}).Where("highlight_hash = ?", hash).Count(&count).Error; err != nil {
		return false, &CorruptionError{Err: err}
	}
	return count > 0, nil
}

// Add records a synced highlight. Re-adding an existing hash updates the
// page reference and timestamp.
func (s *Store) Add(hash, bookID, notionPageID string) error {
	entry := Entry{
		HighlightHash: hash,
		BookID:        bookID,
		NotionPageID:  notionPageID,
		SyncTimestamp: time.Now().UTC(),
	}
	if err := s.db.Save(&entry).Error; err != nil {
		return &CorruptionError{Err: err}
	}
	return nil
}

// ForBook returns the cached highlight hashes for one book.
func (s *Store) ForBook(bookID string) ([]string, error) {
	var hashes []string
	err := s.db.Model(&Entry{}).Where("book_id = ?", bookID).
		Pluck("highlight_hash", &hashes).Error
	if err != nil {
		return nil, &CorruptionError{Err: err}
	}
	return hashes, nil
}

// ClearBook removes every cached highlight for a book, used before a
// page is recreated.
func (s *Store) ClearBook(bookID string) error {
	if err := s.db.Where("book_id = ?", bookID).Delete(&Entry{}).Error; err != nil {
		return &CorruptionError{Err: err}
	}
	return nil
}

// ApplyBatch records all entries in one transaction so a crash mid-sync
// never leaves the cache claiming highlights that were not written.
func (s *Store) ApplyBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i := range entries {
			if entries[i].SyncTimestamp.IsZero() {
				entries[i].SyncTimestamp = time.Now().UTC()
			}
			if err := tx.Save(&entries[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &CorruptionError{Err: err}
	}
	return nil
}

// EntryCount returns the total number of cached highlights.
func (s *Store) EntryCount() (int64, error) {
	var count int64
	if err := s.db.Model(&Entry{}).Count(&count).Error; err != nil {
		return 0, &CorruptionError{Err: err}
	}
	return count, nil
}

// Validate checks that the cache database is readable and carries the
// expected table. A missing database is valid (first run).
func Validate(path string) Validation {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Validation{Valid: true}
	}
	if err != nil {
		return Validation{Valid: false, Reason: err.Error()}
	}

	result := Validation{SizeBytes: info.Size()}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		result.Reason = fmt.Sprintf("cannot open cache: %v", err)
		return result
	}
	defer func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
	}()

	if !db.Migrator().HasTable(&Entry{}) {
		result.Reason = "highlights table not found"
		return result
	}

	var count int64
	if err := db.Model(&Entry{}).Count(&count).Error; err != nil {
		result.Reason = fmt.Sprintf("cannot read cache: %v", err)
		return result
	}

	result.Valid = true
	result.EntryCount = count
	return result
}

// Rebuild deletes the cache database and recreates it empty.
func Rebuild(path string) (*Store, error) {
	log.Printf("Rebuilding highlight cache at %s", path)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove corrupted cache: %w", err)
	}
	return Open(path)
}

// DefaultPath returns the cache location under the user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".kobo-notion-sync", "cache", "highlights.db"), nil
}
