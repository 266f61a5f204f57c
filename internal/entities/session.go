package entities

import (
	"fmt"
	"time"
)

// SyncMode distinguishes a full USB sync from a metadata-only pass.
type SyncMode string

const (
	SyncModeFull         SyncMode = "full"
	SyncModeMetadataOnly SyncMode = "metadata_only"
)

// SyncStatus is derived from the session's counters and errors.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncSession tracks a single sync run. It is created at run start, mutated
// by the orchestrator, and finalized exactly once; after Complete it is
// only read for reporting.
type SyncSession struct {
	Mode      SyncMode
	StartTime time.Time
	EndTime   *time.Time

	BooksProcessed int
	BooksCreated   int
	BooksUpdated   int
	BooksSkipped   int

	HighlightsSynced  int
	HighlightsSkipped int
	CacheHits         int
	CacheMisses       int

	UpdatedBookTitles []string
	Errors            []string
}

func NewSyncSession(mode SyncMode) *SyncSession {
	return &SyncSession{Mode: mode, StartTime: time.Now()}
}

// Status derives the run outcome: Success with no errors, Partial when
// errors occurred but at least one highlight made it across, Failed
// otherwise.
func (s *SyncSession) Status() SyncStatus {
	switch {
	case len(s.Errors) == 0:
		return SyncStatusSuccess
	case s.HighlightsSynced > 0:
		return SyncStatusPartial
	default:
		return SyncStatusFailed
	}
}

func (s *SyncSession) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// Complete sets the end timestamp. Calling it again is a no-op so every
// exit path can finalize safely.
func (s *SyncSession) Complete() {
	if s.EndTime != nil {
		return
	}
	now := time.Now()
	s.EndTime = &now
}

func (s *SyncSession) Duration() time.Duration {
	if s.EndTime == nil {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// DeduplicationRate is the percentage of examined highlights that were
// already known, out of all cache lookups this run.
func (s *SyncSession) DeduplicationRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total) * 100
}

// Summary renders the one-line result used for notifications and CLI output.
func (s *SyncSession) Summary() string {
	switch s.Status() {
	case SyncStatusSuccess:
		dedup := ""
		if s.CacheHits > 0 {
			dedup = fmt.Sprintf(", %d duplicates skipped", s.CacheHits)
		}
		return fmt.Sprintf("Synced %d highlights from %d books in %.1fs%s",
			s.HighlightsSynced, s.BooksProcessed, s.Duration().Seconds(), dedup)
	case SyncStatusPartial:
		return fmt.Sprintf("Partial sync: %d highlights synced, %d errors",
			s.HighlightsSynced, len(s.Errors))
	default:
		msg := "unknown error"
		if len(s.Errors) > 0 {
			msg = s.Errors[0]
		}
		return fmt.Sprintf("Sync failed: %s", msg)
	}
}
