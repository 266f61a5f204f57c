package entities

import (
	"errors"
	"fmt"
	"time"
)

// Kobo ReadStatus codes as stored in the content table.
const (
	ReadStatusNotStarted = 0
	ReadStatusReading    = 1
	ReadStatusFinished   = 2
)

// ProgressCode is the derived reading status shown in Notion.
type ProgressCode string

const (
	ProgressNew      ProgressCode = "New"
	ProgressReading  ProgressCode = "Reading"
	ProgressFinished ProgressCode = "Finished"
)

var (
	ErrEmptyContentID    = errors.New("kobo content id must not be empty")
	ErrEmptyTitle        = errors.New("title must not be empty")
	ErrInvalidISBN       = errors.New("isbn must be 10 or 13 characters")
	ErrInvalidReadStatus = errors.New("read status must be 0, 1 or 2")
	ErrInvalidPercent    = errors.New("percent read must be between 0 and 100")
)

// Book is a snapshot of one book from the Kobo library. It is read fresh
// from the device on every run and never mutated in place.
type Book struct {
	KoboContentID    string // filename portion of the device ContentID, stable per book file
	Title            string
	Author           string
	ISBN             string
	Publisher        string
	Description      string
	TimeSpentMinutes int
	ReadStatus       int
	PercentRead      float64
	DateLastRead     *time.Time
	DateFirstRead    *time.Time
	DateFinished     *time.Time

	// Set once the book has a page in Notion.
	NotionPageID string
}

// Validate checks constructor-time invariants. Extraction skips books that
// fail validation instead of aborting the run.
func (b *Book) Validate() error {
	if b.KoboContentID == "" {
		return ErrEmptyContentID
	}
	if b.Title == "" {
		return ErrEmptyTitle
	}
	if b.ISBN != "" && !ValidISBN(b.ISBN) {
		return fmt.Errorf("%w: %q", ErrInvalidISBN, b.ISBN)
	}
	if !ValidReadStatus(b.ReadStatus) {
		return fmt.Errorf("%w: %d", ErrInvalidReadStatus, b.ReadStatus)
	}
	if b.PercentRead < 0 || b.PercentRead > 100 {
		return fmt.Errorf("%w: %.1f", ErrInvalidPercent, b.PercentRead)
	}
	return nil
}

// ProgressCode derives the display status from the Kobo read state.
// PercentRead == 0 always means New; otherwise ReadStatus == 2 is
// authoritative over the percentage.
func (b *Book) ProgressCode() ProgressCode {
	if b.PercentRead == 0 {
		return ProgressNew
	}
	if b.ReadStatus == ReadStatusFinished {
		return ProgressFinished
	}
	return ProgressReading
}

// LastReadDate returns the device last-read timestamp truncated to date
// granularity, formatted as 2006-01-02. Empty when the book was never opened.
func (b *Book) LastReadDate() string {
	if b.DateLastRead == nil {
		return ""
	}
	return b.DateLastRead.UTC().Format("2006-01-02")
}

func (b *Book) IsSynced() bool {
	return b.NotionPageID != ""
}

func (b *Book) String() string {
	return fmt.Sprintf("%q by %s (%s)", b.Title, b.Author, b.ProgressCode())
}
