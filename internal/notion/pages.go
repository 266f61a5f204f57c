package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/mrlokans/kobo-notion-sync/internal/entities"
)

// Page is a book page managed by the sync tool.
type Page struct {
	ID            string
	Title         string
	KoboContentID string
	LastReadDate  string // date-only, 2006-01-02
}

// TrackedBook is the remote comparison state for one synced book.
type TrackedBook struct {
	PageID       string
	LastReadDate string // date-only, 2006-01-02
}

// BookPageFields controls which optional properties are written.
type BookPageFields struct {
	Description bool
	TimeSpent   bool
}

type pageObject struct {
	ID         string                   `json:"id"`
	Properties map[string]propertyValue `json:"properties"`
}

type propertyValue struct {
	Type     string     `json:"type"`
	Title    []richText `json:"title"`
	RichText []richText `json:"rich_text"`
	Date     *struct {
		Start string `json:"start"`
	} `json:"date"`
	Select *struct {
		Name string `json:"name"`
	} `json:"select"`
	Number *float64 `json:"number"`
}

func (p *pageObject) toPage() Page {
	page := Page{ID: p.ID}
	if prop, ok := p.Properties[PropName]; ok {
		page.Title = plainText(prop.Title)
	}
	if prop, ok := p.Properties[PropKoboContentID]; ok {
		page.KoboContentID = plainText(prop.RichText)
	}
	if prop, ok := p.Properties[PropLastReadDate]; ok && prop.Date != nil {
		// Stored date-only; trim defensively in case a timestamp slipped in.
		start := prop.Date.Start
		if len(start) > 10 {
			start = start[:10]
		}
		page.LastReadDate = start
	}
	return page
}

// trackedFilter matches only pages carrying the content-id tracking field
// and the Type sentinel, so manually created entries are never touched.
func trackedFilter(contentID string) map[string]any {
	conditions := []map[string]any{
		{
			"property": PropType,
			"select":   map[string]any{"equals": TypeSentinel},
		},
	}
	if contentID != "" {
		conditions = append(conditions, map[string]any{
			"property":  PropKoboContentID,
			"rich_text": map[string]any{"equals": contentID},
		})
	} else {
		conditions = append(conditions, map[string]any{
			"property":  PropKoboContentID,
			"rich_text": map[string]any{"is_not_empty": true},
		})
	}
	return map[string]any{"and": conditions}
}

func (c *Client) queryPages(ctx context.Context, databaseID string, filter map[string]any) ([]pageObject, error) {
	var pages []pageObject
	cursor := ""
	for {
		payload := map[string]any{"filter": filter, "page_size": 100}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}

		body, err := c.doRequest(ctx, "POST", "/databases/"+url.PathEscape(databaseID)+"/query", payload)
		if err != nil {
			return nil, err
		}

		var resp struct {
			Results    []pageObject `json:"results"`
			HasMore    bool         `json:"has_more"`
			NextCursor string       `json:"next_cursor"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode query response: %w", err)
		}

		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	return pages, nil
}

// GetBookByKoboID looks up the tracked page for one content id. Returns
// nil when the book has no page yet.
func (c *Client) GetBookByKoboID(ctx context.Context, databaseID, contentID string) (*Page, error) {
	pages, err := c.queryPages(ctx, databaseID, trackedFilter(contentID))
	if err != nil {
		return nil, fmt.Errorf("failed to look up book %s: %w", contentID, err)
	}
	if len(pages) == 0 {
		return nil, nil
	}
	page := pages[0].toPage()
	return &page, nil
}

// GetTrackedBooks fetches the full remote comparison state in one paginated
// query: content id → page id and last-read date for every tracked page.
func (c *Client) GetTrackedBooks(ctx context.Context, databaseID string) (map[string]TrackedBook, error) {
	pages, err := c.queryPages(ctx, databaseID, trackedFilter(""))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tracked books: %w", err)
	}

	tracked := make(map[string]TrackedBook, len(pages))
	for _, raw := range pages {
		page := raw.toPage()
		if page.KoboContentID == "" {
			continue
		}
		tracked[page.KoboContentID] = TrackedBook{
			PageID:       page.ID,
			LastReadDate: page.LastReadDate,
		}
	}
	return tracked, nil
}

func textProperty(content string) map[string]any {
	return map[string]any{
		"rich_text": []map[string]any{
			{"type": "text", "text": map[string]any{"content": content}},
		},
	}
}

func (c *Client) bookProperties(book *entities.Book, fields BookPageFields) map[string]any {
	props := map[string]any{
		PropName: map[string]any{
			"title": []map[string]any{
				{"type": "text", "text": map[string]any{"content": book.Title}},
			},
		},
		PropProgressCode:  map[string]any{"select": map[string]any{"name": string(book.ProgressCode())}},
		PropType:          map[string]any{"select": map[string]any{"name": TypeSentinel}},
		PropKoboContentID: textProperty(book.KoboContentID),
	}

	if book.LastReadDate() != "" {
		props[PropLastReadDate] = map[string]any{"date": map[string]any{"start": book.LastReadDate()}}
	}
	if book.ProgressCode() == entities.ProgressFinished && book.DateFinished != nil {
		props[PropDateDone] = map[string]any{
			"date": map[string]any{"start": book.DateFinished.UTC().Format("2006-01-02")},
		}
	}
	if fields.Description && book.Description != "" {
		props[PropDescription] = textProperty(truncateRichText(book.Description))
	}
	if fields.TimeSpent && book.TimeSpentMinutes > 0 {
		props[PropTimeSpent] = map[string]any{"number": book.TimeSpentMinutes}
	}
	return props
}

// CreateBookPage creates a tracked page for the book and returns the new
// page id.
func (c *Client) CreateBookPage(ctx context.Context, databaseID string, book *entities.Book, fields BookPageFields) (string, error) {
	payload := map[string]any{
		"parent":     map[string]any{"database_id": databaseID},
		"properties": c.bookProperties(book, fields),
	}

	body, err := c.doRequest(ctx, "POST", "/pages", payload)
	if err != nil {
		return "", fmt.Errorf("failed to create page for %q: %w", book.Title, err)
	}

	var page pageObject
	if err := json.Unmarshal(body, &page); err != nil {
		return "", fmt.Errorf("failed to decode created page: %w", err)
	}
	return page.ID, nil
}

// UpdateBookPage rewrites the book's metadata properties in place.
func (c *Client) UpdateBookPage(ctx context.Context, pageID string, book *entities.Book, fields BookPageFields) error {
	payload := map[string]any{"properties": c.bookProperties(book, fields)}
	if _, err := c.doRequest(ctx, "PATCH", "/pages/"+url.PathEscape(pageID), payload); err != nil {
		return fmt.Errorf("failed to update page for %q: %w", book.Title, err)
	}
	return nil
}

// SetCoverImage attaches an external cover URL to the Image property and
// the page cover. Callers treat failure as non-fatal.
func (c *Client) SetCoverImage(ctx context.Context, pageID, imageURL string) error {
	payload := map[string]any{
		"cover": map[string]any{
			"type":     "external",
			"external": map[string]any{"url": imageURL},
		},
		"properties": map[string]any{
			PropImage: map[string]any{
				"files": []map[string]any{
					{
						"type":     "external",
						"name":     "cover",
						"external": map[string]any{"url": imageURL},
					},
				},
			},
		},
	}
	if _, err := c.doRequest(ctx, "PATCH", "/pages/"+url.PathEscape(pageID), payload); err != nil {
		return fmt.Errorf("failed to set cover image: %w", err)
	}
	return nil
}

// Notion caps children per append request.
const blocksPerRequest = 100

// Notion caps rich text content length per block.
const maxRichTextLen = 2000

func truncateRichText(s string) string {
	if len(s) <= maxRichTextLen {
		return s
	}
	return s[:maxRichTextLen-3] + "..."
}

func textBlock(blockType, content string) map[string]any {
	return map[string]any{
		"object": "block",
		"type":   blockType,
		blockType: map[string]any{
			"rich_text": []map[string]any{
				{"type": "text", "text": map[string]any{"content": truncateRichText(content)}},
			},
		},
	}
}

// AppendHighlightBlocks writes the highlight content for a book page: a
// heading, the reading-period line, then one quote per highlight with its
// location caption and any annotation, in chronological order.
func (c *Client) AppendHighlightBlocks(ctx context.Context, pageID string, book *entities.Book, highlights []entities.Highlight) error {
	blocks := []map[string]any{
		textBlock("heading_2", "Highlights"),
		textBlock("paragraph", readingPeriod(book, highlights)),
	}

	for i := range highlights {
		h := &highlights[i]
		blocks = append(blocks, textBlock("quote", h.Text))

		caption := h.LocationDisplay()
		if !h.DateCreated.IsZero() {
			caption += " · " + h.DateCreated.UTC().Format("2006-01-02")
		}
		blocks = append(blocks, textBlock("paragraph", caption))

		if h.Annotation != "" {
			blocks = append(blocks, textBlock("paragraph", "Note: "+h.Annotation))
		}
	}

	for start := 0; start < len(blocks); start += blocksPerRequest {
		end := start + blocksPerRequest
		if end > len(blocks) {
			end = len(blocks)
		}
		payload := map[string]any{"children": blocks[start:end]}
		if _, err := c.doRequest(ctx, "PATCH", "/blocks/"+url.PathEscape(pageID)+"/children", payload); err != nil {
			return fmt.Errorf("failed to append highlight blocks: %w", err)
		}
	}
	return nil
}

// readingPeriod renders the annotation line regenerated on every
// recreation, covering first-read through last-read.
func readingPeriod(book *entities.Book, highlights []entities.Highlight) string {
	first := ""
	if book.DateFirstRead != nil {
		first = book.DateFirstRead.UTC().Format("2006-01-02")
	}
	last := book.LastReadDate()

	switch {
	case first != "" && last != "":
		return fmt.Sprintf("%d highlights · Reading period: %s – %s", len(highlights), first, last)
	case last != "":
		return fmt.Sprintf("%d highlights · Last read: %s", len(highlights), last)
	default:
		return fmt.Sprintf("%d highlights", len(highlights))
	}
}

// UpdateSyncMetadata stamps the tracking fields after a successful book
// sync.
func (c *Client) UpdateSyncMetadata(ctx context.Context, pageID string, highlightCount int, syncTime time.Time) error {
	payload := map[string]any{
		"properties": map[string]any{
			PropLastSyncTime: map[string]any{
				"date": map[string]any{"start": syncTime.UTC().Format(time.RFC3339)},
			},
			PropHighlightCount: map[string]any{"number": highlightCount},
		},
	}
	if _, err := c.doRequest(ctx, "PATCH", "/pages/"+url.PathEscape(pageID), payload); err != nil {
		return fmt.Errorf("failed to update sync metadata: %w", err)
	}
	return nil
}

// ArchivePage removes a page (Notion archives rather than deletes).
func (c *Client) ArchivePage(ctx context.Context, pageID string) error {
	payload := map[string]any{"archived": true}
	if _, err := c.doRequest(ctx, "PATCH", "/pages/"+url.PathEscape(pageID), payload); err != nil {
		return fmt.Errorf("failed to archive page %s: %w", pageID, err)
	}
	return nil
}

// ArchivePages archives the batch sequentially, stopping at the first
// failure so no recreation starts while a stale page may survive.
func (c *Client) ArchivePages(ctx context.Context, pageIDs []string) error {
	for _, id := range pageIDs {
		if err := c.ArchivePage(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAllTrackedBooks archives every page managed by this tool. Used by
// full-resync mode; manually created pages are untouched.
func (c *Client) DeleteAllTrackedBooks(ctx context.Context, databaseID string) (int, error) {
	tracked, err := c.GetTrackedBooks(ctx, databaseID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, book := range tracked {
		if err := c.ArchivePage(ctx, book.PageID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
