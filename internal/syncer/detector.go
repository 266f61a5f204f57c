package syncer

import (
	"github.com/mrlokans/kobo-notion-sync/internal/entities"
	"github.com/mrlokans/kobo-notion-sync/internal/notion"
)

// WorkItem is one book that needs syncing. StalePageID is set when an
// outdated page must be archived before the book is recreated.
type WorkItem struct {
	Book        entities.Book
	StalePageID string
}

// Plan is the per-run work list produced by change detection. Work keeps
// the device's reading order.
type Plan struct {
	Work []WorkItem
	Skip []entities.Book
}

func (p Plan) CreateCount() int {
	n := 0
	for _, item := range p.Work {
		if item.StalePageID == "" {
			n++
		}
	}
	return n
}

func (p Plan) RecreateCount() int {
	return len(p.Work) - p.CreateCount()
}

// StalePageIDs lists the pages to archive before recreation, in work order.
func (p Plan) StalePageIDs() []string {
	var ids []string
	for _, item := range p.Work {
		if item.StalePageID != "" {
			ids = append(ids, item.StalePageID)
		}
	}
	return ids
}

// Classify compares the device library against the remote comparison state
// at date granularity. A book absent remotely is created; a book whose
// last-read date moved is archived and recreated; an unchanged book is
// skipped without any further device or remote reads.
func Classify(books []entities.Book, tracked map[string]notion.TrackedBook) Plan {
	var plan Plan
	for _, book := range books {
		remote, exists := tracked[book.KoboContentID]
		switch {
		case !exists:
			plan.Work = append(plan.Work, WorkItem{Book: book})
		case remote.LastReadDate != book.LastReadDate():
			plan.Work = append(plan.Work, WorkItem{Book: book, StalePageID: remote.PageID})
		default:
			plan.Skip = append(plan.Skip, book)
		}
	}
	return plan
}
