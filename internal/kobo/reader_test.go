package kobo

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/kobo-notion-sync/internal/entities"
)

// newFakeDevice builds a minimal Kobo filesystem layout in a temp dir.
func newFakeDevice(t *testing.T) string {
	t.Helper()

	mount := t.TempDir()
	koboDir := filepath.Join(mount, ".kobo")
	require.NoError(t, os.MkdirAll(koboDir, 0o755))

	db, err := sql.Open("sqlite3", filepath.Join(koboDir, "KoboReader.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	schema := []string{
		`CREATE TABLE content (
			ContentID TEXT PRIMARY KEY,
			Title TEXT,
			Attribution TEXT,
			ISBN TEXT,
			Publisher TEXT,
			Description TEXT,
			___PercentRead REAL,
			ReadStatus INTEGER,
			DateLastRead TEXT,
			DateCreated TEXT,
			TimeSpentReading INTEGER,
			ContentType INTEGER,
			IsDownloaded TEXT,
			Accessibility INTEGER
		)`,
		`CREATE TABLE Bookmark (
			BookmarkID TEXT PRIMARY KEY,
			VolumeID TEXT,
			Text TEXT,
			ChapterProgress REAL,
			DateCreated TEXT,
			Annotation TEXT,
			Type TEXT,
			Hidden TEXT
		)`,
	}
	for _, stmt := range schema {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return mount
}

func insertBook(t *testing.T, mount string, contentID, title string, percent float64, readStatus int, lastRead string) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(mount, DatabaseRelPath))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		INSERT INTO content (ContentID, Title, Attribution, ISBN, Publisher, Description,
			___PercentRead, ReadStatus, DateLastRead, DateCreated, TimeSpentReading,
			ContentType, IsDownloaded, Accessibility)
		VALUES (?, ?, 'Some Author', '9780805209990', 'Schocken', 'A description',
			?, ?, ?, '2026-01-01T08:00:00Z', 5400, 6, 'true', 1)`,
		contentID, title, percent, readStatus, lastRead)
	require.NoError(t, err)
}

func insertHighlight(t *testing.T, mount, id, volumeID, text, created string, hidden string) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(mount, DatabaseRelPath))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		INSERT INTO Bookmark (BookmarkID, VolumeID, Text, ChapterProgress, DateCreated, Annotation, Type, Hidden)
		VALUES (?, ?, ?, 33.3, ?, '', 'highlight', ?)`,
		id, volumeID, text, created, hidden)
	require.NoError(t, err)
}

func TestVerify(t *testing.T) {
	mount := newFakeDevice(t)
	assert.True(t, Verify(mount))

	assert.False(t, Verify(t.TempDir()), "empty dir must not verify")
	assert.False(t, Verify(""), "empty path must not verify")
}

func TestVerify_MissingTables(t *testing.T) {
	mount := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(mount, ".kobo"), 0o755))

	db, err := sql.Open("sqlite3", filepath.Join(mount, DatabaseRelPath))
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE content (ContentID TEXT)`)
	require.NoError(t, err)
	db.Close()

	assert.False(t, Verify(mount), "Bookmark table missing")
}

func TestNewReader_ExplicitPathStillVerifies(t *testing.T) {
	mount := newFakeDevice(t)
	r, err := NewReader(mount)
	require.NoError(t, err)
	assert.Equal(t, mount, r.MountPath())

	_, err = NewReader(t.TempDir())
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestReader_DeviceInfo(t *testing.T) {
	mount := newFakeDevice(t)
	r, err := NewReader(mount)
	require.NoError(t, err)

	// No version file: generic fallback, not recognized.
	info := r.DeviceInfo()
	assert.Equal(t, GenericModelName, info.Model)
	assert.False(t, info.Recognized)

	err = os.WriteFile(filepath.Join(mount, ".kobo", "version"),
		[]byte("N418190060008,4.1.15,4.38.23429"), 0o644)
	require.NoError(t, err)

	info = r.DeviceInfo()
	assert.Equal(t, "Kobo Libra 2", info.Model)
	assert.True(t, info.Recognized)
	assert.Equal(t, mount, info.MountPath)
}

func TestModelForDeviceCode(t *testing.T) {
	model, ok := modelForDeviceCode("N905B123456")
	assert.True(t, ok)
	assert.Equal(t, "Kobo Touch", model)

	model, ok = modelForDeviceCode("X000")
	assert.False(t, ok)
	assert.Equal(t, GenericModelName, model)
}

func TestReader_ExtractBooks(t *testing.T) {
	mount := newFakeDevice(t)
	insertBook(t, mount, "file:///mnt/onboard/trial.epub", "The Trial", 42.0, entities.ReadStatusReading, "2026-02-10T21:15:00Z")
	insertBook(t, mount, "file:///mnt/onboard/castle.epub", "The Castle", 100.0, entities.ReadStatusFinished, "2026-03-01T09:00:00Z")

	// Not downloaded: must be filtered out.
	db, err := sql.Open("sqlite3", filepath.Join(mount, DatabaseRelPath))
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO content (ContentID, Title, ContentType, IsDownloaded, Accessibility)
		VALUES ('cloud.epub', 'Cloud Only', 6, 'false', 1)`)
	require.NoError(t, err)
	// Audiobook: wrong content type.
	_, err = db.Exec(`INSERT INTO content (ContentID, Title, ContentType, IsDownloaded, Accessibility)
		VALUES ('audio', 'An Audiobook', 9, 'true', 1)`)
	require.NoError(t, err)
	db.Close()

	r, err := NewReader(mount)
	require.NoError(t, err)

	books, err := r.ExtractBooks(ExtractOptions{Description: true, TimeSpent: true})
	require.NoError(t, err)
	require.Len(t, books, 2)

	// Ordered by last read descending.
	assert.Equal(t, "castle.epub", books[0].KoboContentID)
	assert.Equal(t, "trial.epub", books[1].KoboContentID)

	castle := books[0]
	assert.Equal(t, "The Castle", castle.Title)
	assert.Equal(t, entities.ProgressFinished, castle.ProgressCode())
	assert.Equal(t, "A description", castle.Description)
	assert.Equal(t, 90, castle.TimeSpentMinutes)
	require.NotNil(t, castle.DateLastRead)
	assert.Equal(t, "2026-03-01", castle.LastReadDate())
	assert.NotNil(t, castle.DateFinished)
}

func TestReader_ExtractBooks_OptionalFieldsOff(t *testing.T) {
	mount := newFakeDevice(t)
	insertBook(t, mount, "file:///mnt/onboard/trial.epub", "The Trial", 42.0, entities.ReadStatusReading, "2026-02-10T21:15:00Z")

	r, err := NewReader(mount)
	require.NoError(t, err)

	books, err := r.ExtractBooks(ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Empty(t, books[0].Description)
	assert.Zero(t, books[0].TimeSpentMinutes)
}

func TestReader_ExtractHighlights(t *testing.T) {
	mount := newFakeDevice(t)
	insertBook(t, mount, "trial.epub", "The Trial", 42.0, entities.ReadStatusReading, "2026-02-10T21:15:00Z")

	insertHighlight(t, mount, "h2", "trial.epub", "Second passage", "2026-02-09T10:00:00Z", "false")
	insertHighlight(t, mount, "h1", "trial.epub", "First passage", "2026-02-08T10:00:00Z", "false")
	insertHighlight(t, mount, "h3", "trial.epub", "Hidden one", "2026-02-07T10:00:00Z", "true")
	insertHighlight(t, mount, "h4", "other.epub", "Wrong book", "2026-02-07T10:00:00Z", "false")
	insertHighlight(t, mount, "h5", "trial.epub", "   ", "2026-02-07T10:00:00Z", "false")

	r, err := NewReader(mount)
	require.NoError(t, err)

	highlights, err := r.ExtractHighlights("trial.epub")
	require.NoError(t, err)
	require.Len(t, highlights, 2, "hidden, foreign and empty rows are skipped")

	// Chronological, oldest first.
	assert.Equal(t, "First passage", highlights[0].Text)
	assert.Equal(t, "Second passage", highlights[1].Text)
	require.NotNil(t, highlights[0].ChapterProgress)
	assert.InDelta(t, 33.3, *highlights[0].ChapterProgress, 0.001)
}

func TestReader_Connected(t *testing.T) {
	mount := newFakeDevice(t)
	r, err := NewReader(mount)
	require.NoError(t, err)
	assert.True(t, r.Connected())

	require.NoError(t, os.RemoveAll(filepath.Join(mount, ".kobo")))
	assert.False(t, r.Connected())
}

func TestTrimContentID(t *testing.T) {
	assert.Equal(t, "book.epub", TrimContentID("file:///mnt/onboard/books/book.epub"))
	assert.Equal(t, "already-trimmed.epub", TrimContentID("already-trimmed.epub"))
}
