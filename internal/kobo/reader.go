// Package kobo reads books and highlights from a USB-mounted Kobo
// e-reader. All database access is read-only; nothing is ever written to
// the device.
package kobo

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mrlokans/kobo-notion-sync/internal/entities"
)

const (
	// DatabaseRelPath is the Kobo database location relative to the mount
	// point.
	DatabaseRelPath = ".kobo/KoboReader.sqlite"

	// versionRelPath holds the device serial used for model identification.
	versionRelPath = ".kobo/version"

	// contentTypeEPUB filters the content table to ebooks, excluding
	// audiobooks (9) and articles (899).
	contentTypeEPUB = 6
)

// Volume names Kobo devices mount under.
var mountNames = []string{"KOBOeReader", "Kobo eReader", "KOBO"}

// Mount roots scanned during auto-detection.
var mountRoots = func() []string {
	roots := []string{"/Volumes"}
	if user := os.Getenv("USER"); user != "" {
		roots = append(roots,
			filepath.Join("/media", user),
			filepath.Join("/run/media", user),
		)
	}
	return roots
}()

// ErrDeviceNotFound signals that no mounted volume verified as a Kobo.
var ErrDeviceNotFound = errors.New("kobo device not found, connect your e-reader via USB")

// DeviceError wraps database-level failures with diagnostic detail.
type DeviceError struct {
	Op     string
	Detail string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("kobo device error during %s (%s): %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("kobo device error during %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// DeviceInfo describes the connected device, best effort.
type DeviceInfo struct {
	Model        string
	MountPath    string
	DatabasePath string
	Recognized   bool
}

// ExtractOptions controls whether expensive optional columns are read.
type ExtractOptions struct {
	Description bool
	TimeSpent   bool
}

// Reader provides read-only snapshots of a Kobo device database.
type Reader struct {
	mountPath string
}

// NewReader returns a reader for an explicitly provided mount path. The
// path is verified the same way auto-detection verifies candidates.
func NewReader(mountPath string) (*Reader, error) {
	if !Verify(mountPath) {
		return nil, fmt.Errorf("%w: %s is not a valid kobo mount", ErrDeviceNotFound, mountPath)
	}
	return &Reader{mountPath: mountPath}, nil
}

// DetectDevice scans known mount locations and returns a reader for the
// first candidate that verifies.
func DetectDevice() (*Reader, error) {
	for _, root := range mountRoots {
		for _, name := range mountNames {
			candidate := filepath.Join(root, name)
			if Verify(candidate) {
				return &Reader{mountPath: candidate}, nil
			}
		}
	}
	return nil, ErrDeviceNotFound
}

// Verify reports whether path looks like a readable Kobo mount: the
// database file exists and contains the content and Bookmark tables.
func Verify(mountPath string) bool {
	if mountPath == "" {
		return false
	}
	dbPath := filepath.Join(mountPath, DatabaseRelPath)
	if _, err := os.Stat(dbPath); err != nil {
		return false
	}

	db, err := openReadOnly(dbPath)
	if err != nil {
		return false
	}
	defer db.Close()

	rows, err := db.Query(
		"SELECT name FROM sqlite_master WHERE type='table' AND name IN ('content', 'Bookmark')",
	)
	if err != nil {
		return false
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false
		}
		found[name] = true
	}
	return found["content"] && found["Bookmark"]
}

func (r *Reader) MountPath() string { return r.mountPath }

func (r *Reader) dbPath() string { return filepath.Join(r.mountPath, DatabaseRelPath) }

// Connected is the cheap mid-run check: the database file must still be
// reachable through the mount.
func (r *Reader) Connected() bool {
	_, err := os.Stat(r.dbPath())
	return err == nil
}

// DeviceInfo identifies the device model from the .kobo/version file,
// falling back to a generic label. Unknown models are never an error.
func (r *Reader) DeviceInfo() DeviceInfo {
	info := DeviceInfo{
		Model:        GenericModelName,
		MountPath:    r.mountPath,
		DatabasePath: r.dbPath(),
	}

	raw, err := os.ReadFile(filepath.Join(r.mountPath, versionRelPath))
	if err != nil {
		return info
	}
	// First comma-separated field is the device serial, e.g.
	// "N418190060008,4.1.15,4.38.23429,...".
	code := strings.SplitN(strings.TrimSpace(string(raw)), ",", 2)[0]
	if code == "" {
		return info
	}
	info.Model, info.Recognized = modelForDeviceCode(code)
	return info
}

// ExtractBooks returns the owned, downloaded ebooks on the device, ordered
// by last-read descending. Malformed rows are skipped with a warning.
func (r *Reader) ExtractBooks(opts ExtractOptions) ([]entities.Book, error) {
	db, err := openReadOnly(r.dbPath())
	if err != nil {
		return nil, &DeviceError{Op: "extract books", Err: err}
	}
	defer db.Close()

	query := `
		SELECT
			ContentID,
			Title,
			Attribution,
			ISBN,
			Publisher,
			Description,
			___PercentRead,
			ReadStatus,
			DateLastRead,
			DateCreated,
			TimeSpentReading
		FROM content
		WHERE ContentType = ?
			AND IsDownloaded = 'true'
			AND Accessibility = 1
		ORDER BY DateLastRead DESC
	`

	rows, err := db.Query(query, contentTypeEPUB)
	if err != nil {
		return nil, &DeviceError{Op: "extract books", Detail: r.dbPath(), Err: err}
	}
	defer rows.Close()

	var books []entities.Book
	for rows.Next() {
		var (
			contentID                             sql.NullString
			title, author, isbn, publisher, descr sql.NullString
			dateLastRead, dateCreated             sql.NullString
			percentRead                           sql.NullFloat64
			readStatus, timeSpentSeconds          sql.NullInt64
		)

		err := rows.Scan(
			&contentID, &title, &author, &isbn, &publisher, &descr,
			&percentRead, &readStatus, &dateLastRead, &dateCreated,
			&timeSpentSeconds,
		)
		if err != nil {
			log.Printf("kobo: skipping malformed book row: %v", err)
			continue
		}

		book := entities.Book{
			KoboContentID: TrimContentID(contentID.String),
			Title:         orUnknown(title.String, "Unknown Title"),
			Author:        orUnknown(author.String, "Unknown Author"),
			ISBN:          isbn.String,
			Publisher:     publisher.String,
			ReadStatus:    int(readStatus.Int64),
			PercentRead:   percentRead.Float64,
			DateLastRead:  parseKoboTime(dateLastRead.String),
			DateFirstRead: parseKoboTime(dateCreated.String),
		}
		if book.ReadStatus == entities.ReadStatusFinished {
			book.DateFinished = book.DateLastRead
		}
		if opts.Description {
			book.Description = descr.String
		}
		if opts.TimeSpent && timeSpentSeconds.Valid {
			book.TimeSpentMinutes = int(timeSpentSeconds.Int64 / 60)
		}

		if err := book.Validate(); err != nil {
			log.Printf("kobo: skipping book %q: %v", title.String, err)
			continue
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, &DeviceError{Op: "extract books", Detail: "row iteration", Err: err}
	}

	return books, nil
}

// ExtractHighlights returns the visible user highlights for one book,
// ordered by creation time ascending. Chronological order is part of the
// user-visible contract.
func (r *Reader) ExtractHighlights(bookID string) ([]entities.Highlight, error) {
	db, err := openReadOnly(r.dbPath())
	if err != nil {
		return nil, &DeviceError{Op: "extract highlights", Err: err}
	}
	defer db.Close()

	// Bookmark.VolumeID carries the book's ContentID; Bookmark.ContentID
	// points at the chapter file inside the epub. Hidden is stored as the
	// TEXT value 'false', not a boolean. Store-bought books use a bare UUID
	// ContentID while sideloaded ones use a file:// path, so the trimmed
	// book id must match either form.
	query := `
		SELECT
			b.Text,
			b.ChapterProgress,
			b.DateCreated,
			b.Annotation
		FROM Bookmark b
		INNER JOIN content c ON b.VolumeID = c.ContentID
		WHERE b.Type = 'highlight'
			AND b.Hidden = 'false'
			AND c.ContentType = ?
			AND (c.ContentID = ? OR c.ContentID LIKE '%/' || ?)
		ORDER BY b.DateCreated ASC
	`

	rows, err := db.Query(query, contentTypeEPUB, bookID, bookID)
	if err != nil {
		return nil, &DeviceError{Op: "extract highlights", Detail: bookID, Err: err}
	}
	defer rows.Close()

	var highlights []entities.Highlight
	for rows.Next() {
		var (
			text, dateCreated, annotation sql.NullString
			chapterProgress               sql.NullFloat64
		)
		if err := rows.Scan(&text, &chapterProgress, &dateCreated, &annotation); err != nil {
			log.Printf("kobo: skipping malformed highlight row for %s: %v", bookID, err)
			continue
		}

		h := entities.Highlight{
			BookID:      bookID,
			Text:        text.String,
			Annotation:  annotation.String,
			DateCreated: time.Now(),
		}
		if ts := parseKoboTime(dateCreated.String); ts != nil {
			h.DateCreated = *ts
		}
		if chapterProgress.Valid {
			v := chapterProgress.Float64
			h.ChapterProgress = &v
		}

		if err := h.Validate(); err != nil {
			log.Printf("kobo: skipping highlight for %s: %v", bookID, err)
			continue
		}
		highlights = append(highlights, h)
	}
	if err := rows.Err(); err != nil {
		return nil, &DeviceError{Op: "extract highlights", Detail: bookID, Err: err}
	}

	return highlights, nil
}

// TrimContentID reduces a device ContentID such as
// "file:///mnt/onboard/book.epub" to its filename, the stable per-book
// identifier used everywhere downstream.
func TrimContentID(contentID string) string {
	if strings.HasPrefix(contentID, "file://") {
		return filepath.Base(contentID)
	}
	return contentID
}

func openReadOnly(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open device database: %w", err)
	}
	return db, nil
}

// Kobo stores timestamps as ISO strings, with and without timezone suffix
// depending on firmware.
var koboTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseKoboTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range koboTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

func orUnknown(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
