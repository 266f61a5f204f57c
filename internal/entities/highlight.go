package entities

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrEmptyHighlightText = errors.New("highlight text must not be empty")

// Highlight is a single highlighted passage extracted from the device.
type Highlight struct {
	BookID          string
	Text            string
	ChapterProgress *float64 // position within chapter, 0-100
	DateCreated     time.Time
	Annotation      string

	// Set once the highlight block exists in Notion.
	NotionBlockID string
}

// Validate rejects highlights that are empty after trimming. Extraction
// skips invalid rows rather than aborting.
func (h *Highlight) Validate() error {
	if strings.TrimSpace(h.Text) == "" {
		return ErrEmptyHighlightText
	}
	if h.ChapterProgress != nil && (*h.ChapterProgress < 0 || *h.ChapterProgress > 100) {
		return fmt.Errorf("chapter progress out of range: %.2f", *h.ChapterProgress)
	}
	return nil
}

// ID is the deduplication key: SHA-256 over book id, text and chapter
// position. Identical input always yields the same hash; any difference in
// the three components yields a different one.
func (h *Highlight) ID() string {
	progress := "<nil>"
	if h.ChapterProgress != nil {
		progress = fmt.Sprintf("%g", *h.ChapterProgress)
	}
	sum := sha256.Sum256([]byte(h.BookID + ":" + h.Text + ":" + progress))
	return hex.EncodeToString(sum[:])
}

// LocationDisplay is the human-readable position shown under each highlight
// in Notion. Kobo does not expose page numbers, only chapter progress.
func (h *Highlight) LocationDisplay() string {
	if h.ChapterProgress != nil {
		return fmt.Sprintf("Chapter position: %.1f%%", *h.ChapterProgress)
	}
	return "Unknown location"
}

func (h *Highlight) IsSynced() bool {
	return h.NotionBlockID != ""
}

func (h *Highlight) String() string {
	preview := h.Text
	if len(preview) > 50 {
		preview = preview[:50] + "..."
	}
	return fmt.Sprintf("Highlight: %q at %s", preview, h.LocationDisplay())
}
