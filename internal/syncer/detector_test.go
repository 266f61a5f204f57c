package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mrlokans/kobo-notion-sync/internal/entities"
	"github.com/mrlokans/kobo-notion-sync/internal/notion"
)

func bookWithLastRead(contentID, title string, lastRead time.Time) entities.Book {
	return entities.Book{
		KoboContentID: contentID,
		Title:         title,
		PercentRead:   40,
		ReadStatus:    entities.ReadStatusReading,
		DateLastRead:  &lastRead,
	}
}

func TestClassify(t *testing.T) {
	feb10 := time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)
	mar01 := time.Date(2026, 3, 1, 22, 15, 0, 0, time.UTC)

	books := []entities.Book{
		bookWithLastRead("new.epub", "Brand New", feb10),
		bookWithLastRead("changed.epub", "Read Further", mar01),
		bookWithLastRead("same.epub", "Untouched", feb10),
	}
	tracked := map[string]notion.TrackedBook{
		"changed.epub": {PageID: "page-changed", LastReadDate: "2026-02-10"},
		"same.epub":    {PageID: "page-same", LastReadDate: "2026-02-10"},
	}

	plan := Classify(books, tracked)

	assert.Equal(t, 1, plan.CreateCount())
	assert.Equal(t, 1, plan.RecreateCount())
	assert.Equal(t, []string{"page-changed"}, plan.StalePageIDs())

	assert.Len(t, plan.Skip, 1)
	assert.Equal(t, "same.epub", plan.Skip[0].KoboContentID)

	assert.Len(t, plan.Work, 2)
	assert.Equal(t, "new.epub", plan.Work[0].Book.KoboContentID)
	assert.Empty(t, plan.Work[0].StalePageID)
	assert.Equal(t, "changed.epub", plan.Work[1].Book.KoboContentID)
	assert.Equal(t, "page-changed", plan.Work[1].StalePageID)
}

func TestClassify_DateGranularity(t *testing.T) {
	// Same calendar day, later time of day: unchanged.
	evening := time.Date(2026, 2, 10, 23, 59, 0, 0, time.UTC)
	books := []entities.Book{bookWithLastRead("same.epub", "Untouched", evening)}
	tracked := map[string]notion.TrackedBook{
		"same.epub": {PageID: "page-1", LastReadDate: "2026-02-10"},
	}

	plan := Classify(books, tracked)
	assert.Empty(t, plan.Work)
	assert.Len(t, plan.Skip, 1)
}

func TestClassify_EmptyRemoteCreatesEverything(t *testing.T) {
	now := time.Now()
	books := []entities.Book{
		bookWithLastRead("a.epub", "A", now),
		bookWithLastRead("b.epub", "B", now),
	}

	plan := Classify(books, nil)
	assert.Equal(t, 2, plan.CreateCount())
	assert.Zero(t, plan.RecreateCount())
	assert.Empty(t, plan.Skip)
}
