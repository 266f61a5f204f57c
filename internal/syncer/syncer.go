// Package syncer orchestrates a sync run: change detection against the
// remote database, page recreation, highlight transfer, and session
// accounting.
package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mrlokans/kobo-notion-sync/internal/entities"
	"github.com/mrlokans/kobo-notion-sync/internal/highlightcache"
	"github.com/mrlokans/kobo-notion-sync/internal/kobo"
	"github.com/mrlokans/kobo-notion-sync/internal/notion"
)

// DeviceReader reads the connected e-reader.
type DeviceReader interface {
	Connected() bool
	ExtractBooks(opts kobo.ExtractOptions) ([]entities.Book, error)
	ExtractHighlights(bookID string) ([]entities.Highlight, error)
}

// RemoteClient is the subset of the Notion API the orchestrator drives.
type RemoteClient interface {
	GetTrackedBooks(ctx context.Context, databaseID string) (map[string]notion.TrackedBook, error)
	DeleteAllTrackedBooks(ctx context.Context, databaseID string) (int, error)
	ArchivePages(ctx context.Context, pageIDs []string) error
	CreateBookPage(ctx context.Context, databaseID string, book *entities.Book, fields notion.BookPageFields) (string, error)
	UpdateBookPage(ctx context.Context, pageID string, book *entities.Book, fields notion.BookPageFields) error
	SetCoverImage(ctx context.Context, pageID, imageURL string) error
	AppendHighlightBlocks(ctx context.Context, pageID string, book *entities.Book, highlights []entities.Highlight) error
	UpdateSyncMetadata(ctx context.Context, pageID string, highlightCount int, syncTime time.Time) error
	UpdateDatabaseDescription(ctx context.Context, databaseID, text string) error
}

// CoverFinder resolves cover image URLs. Lookups are best effort.
type CoverFinder interface {
	FindCoverURL(ctx context.Context, isbn, title, author string) (string, error)
}

// HighlightCache is the optional hash-based dedup store.
type HighlightCache interface {
	Has(hash string) (bool, error)
	ClearBook(bookID string) error
	ApplyBatch(entries []highlightcache.Entry) error
}

// Options selects the run mode.
type Options struct {
	// Full archives every tracked page first and rebuilds from scratch.
	Full bool
	// DryRun reports the plan without any remote or cache mutation.
	DryRun bool
	// MetadataOnly refreshes page properties of tracked books and never
	// touches highlight blocks.
	MetadataOnly bool
}

// Syncer runs sync sessions against one configured database.
type Syncer struct {
	device DeviceReader
	remote RemoteClient
	covers CoverFinder
	cache  HighlightCache // nil unless the cache dedup strategy is selected

	databaseID string
	fields     notion.BookPageFields

	progress func(format string, args ...any)
	now      func() time.Time
}

// New creates a Syncer. covers and cache may be nil.
func New(device DeviceReader, remote RemoteClient, covers CoverFinder, cache HighlightCache, databaseID string, fields notion.BookPageFields) *Syncer {
	return &Syncer{
		device:     device,
		remote:     remote,
		covers:     covers,
		cache:      cache,
		databaseID: databaseID,
		fields:     fields,
		progress:   func(string, ...any) {},
		now:        time.Now,
	}
}

// SetProgress installs a printf-style callback for per-book progress lines.
func (s *Syncer) SetProgress(fn func(format string, args ...any)) {
	if fn != nil {
		s.progress = fn
	}
}

// Run executes one sync session. The returned session is always finalized;
// its Status tells the caller whether the run succeeded, partially
// succeeded, or failed.
func (s *Syncer) Run(ctx context.Context, opts Options) *entities.SyncSession {
	mode := entities.SyncModeFull
	if opts.MetadataOnly {
		mode = entities.SyncModeMetadataOnly
	}
	session := entities.NewSyncSession(mode)
	defer session.Complete()

	if !s.device.Connected() {
		session.AddError("device disconnected before sync started")
		return session
	}

	if opts.Full && !opts.DryRun {
		deleted, err := s.remote.DeleteAllTrackedBooks(ctx, s.databaseID)
		if err != nil {
			session.AddError(fmt.Sprintf("full resync: failed to remove tracked pages: %v", err))
			return session
		}
		s.progress("Removed %d tracked pages for full resync", deleted)
	}

	books, err := s.device.ExtractBooks(kobo.ExtractOptions{
		Description: s.fields.Description,
		TimeSpent:   s.fields.TimeSpent,
	})
	if err != nil {
		session.AddError(fmt.Sprintf("failed to read device library: %v", err))
		return session
	}
	if len(books) == 0 {
		s.progress("No synced books found on device")
		return session
	}

	if opts.MetadataOnly {
		s.runMetadataOnly(ctx, session, books, opts)
		return session
	}

	tracked := map[string]notion.TrackedBook{}
	if !opts.Full {
		tracked, err = s.remote.GetTrackedBooks(ctx, s.databaseID)
		if err != nil {
			session.AddError(fmt.Sprintf("failed to fetch tracked books: %v", err))
			return session
		}
	}

	plan := Classify(books, tracked)
	session.BooksSkipped = len(plan.Skip)
	s.progress("%d books on device: %d new, %d changed, %d unchanged",
		len(books), plan.CreateCount(), plan.RecreateCount(), len(plan.Skip))

	if opts.DryRun {
		s.dryRunReport(session, plan)
		return session
	}

	// Stale pages go first so a failure here never leaves a book with
	// both an old and a new page.
	if stale := plan.StalePageIDs(); len(stale) > 0 {
		if err := s.remote.ArchivePages(ctx, stale); err != nil {
			session.AddError(fmt.Sprintf("failed to archive outdated pages: %v", err))
			return session
		}
	}

	var cacheBatch []highlightcache.Entry
	for _, item := range plan.Work {
		if !s.device.Connected() {
			session.AddError("device disconnected mid-sync, aborting")
			break
		}

		entries, err := s.syncBook(ctx, session, item)
		if err != nil {
			session.AddError(fmt.Sprintf("%s: %v", item.Book.Title, err))
			continue
		}
		cacheBatch = append(cacheBatch, entries...)
	}

	if s.cache != nil && len(cacheBatch) > 0 {
		if err := s.cache.ApplyBatch(cacheBatch); err != nil {
			session.AddError(fmt.Sprintf("failed to commit highlight cache: %v", err))
		}
	}

	s.updateBookCount(ctx, session.BooksProcessed+len(plan.Skip))
	return session
}

// syncBook pushes one book: page creation, cover, highlight blocks, and
// tracking metadata. Returns the cache entries to commit at session end.
func (s *Syncer) syncBook(ctx context.Context, session *entities.SyncSession, item WorkItem) ([]highlightcache.Entry, error) {
	book := item.Book
	recreated := item.StalePageID != ""

	highlights, err := s.device.ExtractHighlights(book.KoboContentID)
	if err != nil {
		return nil, fmt.Errorf("failed to extract highlights: %w", err)
	}

	if s.cache != nil && recreated {
		// The page is rebuilt from scratch, so its cached hashes are stale.
		if err := s.cache.ClearBook(book.KoboContentID); err != nil {
			return nil, err
		}
	}

	toSync := highlights
	if s.cache != nil {
		toSync, err = s.filterCached(session, highlights)
		if err != nil {
			return nil, err
		}
	}

	s.progress("Syncing %q (%d highlights)", book.Title, len(toSync))

	pageID, err := s.remote.CreateBookPage(ctx, s.databaseID, &book, s.fields)
	if err != nil {
		return nil, err
	}

	s.attachCover(ctx, pageID, &book)

	if len(toSync) > 0 {
		if err := s.remote.AppendHighlightBlocks(ctx, pageID, &book, toSync); err != nil {
			return nil, err
		}
	}

	if err := s.remote.UpdateSyncMetadata(ctx, pageID, len(toSync), s.now()); err != nil {
		return nil, err
	}

	session.BooksProcessed++
	if recreated {
		session.BooksUpdated++
		session.UpdatedBookTitles = append(session.UpdatedBookTitles, book.Title)
	} else {
		session.BooksCreated++
	}
	session.HighlightsSynced += len(toSync)

	var entries []highlightcache.Entry
	if s.cache != nil {
		for i := range toSync {
			entries = append(entries, highlightcache.Entry{
				HighlightHash: toSync[i].ID(),
				BookID:        book.KoboContentID,
				NotionPageID:  pageID,
			})
		}
	}
	return entries, nil
}

func (s *Syncer) filterCached(session *entities.SyncSession, highlights []entities.Highlight) ([]entities.Highlight, error) {
	var fresh []entities.Highlight
	for i := range highlights {
		known, err := s.cache.Has(highlights[i].ID())
		if err != nil {
			return nil, err
		}
		if known {
			session.CacheHits++
			session.HighlightsSkipped++
			continue
		}
		session.CacheMisses++
		fresh = append(fresh, highlights[i])
	}
	return fresh, nil
}

// runMetadataOnly refreshes the properties of already-tracked pages, for
// syncs where highlight content must stay untouched.
func (s *Syncer) runMetadataOnly(ctx context.Context, session *entities.SyncSession, books []entities.Book, opts Options) {
	tracked, err := s.remote.GetTrackedBooks(ctx, s.databaseID)
	if err != nil {
		session.AddError(fmt.Sprintf("failed to fetch tracked books: %v", err))
		return
	}

	for _, book := range books {
		remote, exists := tracked[book.KoboContentID]
		if !exists {
			session.BooksSkipped++
			continue
		}
		if opts.DryRun {
			s.progress("Would refresh metadata for %q", book.Title)
			session.BooksProcessed++
			continue
		}
		if err := s.remote.UpdateBookPage(ctx, remote.PageID, &book, s.fields); err != nil {
			session.AddError(fmt.Sprintf("%s: %v", book.Title, err))
			continue
		}
		session.BooksProcessed++
		session.BooksUpdated++
	}
}

func (s *Syncer) dryRunReport(session *entities.SyncSession, plan Plan) {
	for _, item := range plan.Work {
		if item.StalePageID == "" {
			s.progress("Would create page for %q", item.Book.Title)
		} else {
			s.progress("Would recreate page for %q", item.Book.Title)
		}
	}
	session.BooksProcessed = len(plan.Work)
	session.BooksCreated = plan.CreateCount()
	session.BooksUpdated = plan.RecreateCount()
}

func (s *Syncer) attachCover(ctx context.Context, pageID string, book *entities.Book) {
	if s.covers == nil {
		return
	}
	coverURL, err := s.covers.FindCoverURL(ctx, book.ISBN, book.Title, book.Author)
	if err != nil || coverURL == "" {
		return
	}
	if err := s.remote.SetCoverImage(ctx, pageID, coverURL); err != nil {
		log.Printf("Failed to set cover for %q: %v", book.Title, err)
	}
}

func (s *Syncer) updateBookCount(ctx context.Context, count int) {
	text := fmt.Sprintf("Contains %d books", count)
	if err := s.remote.UpdateDatabaseDescription(ctx, s.databaseID, text); err != nil {
		log.Printf("Failed to update database description: %v", err)
	}
}
