// Package covers resolves book cover image URLs from public book APIs.
// Lookups are best effort: a book without a cover is not an error.
package covers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	openLibraryCoverURL = "https://covers.openlibrary.org/b/isbn/%s-L.jpg"
	googleBooksAPIURL   = "https://www.googleapis.com/books/v1/volumes"

	requestTimeout     = 5 * time.Second
	maxValidationTries = 3
)

// Finder looks up cover image URLs by ISBN, falling back to title/author
// search. Returned URLs are validated with a HEAD request so only real
// images reach the page.
type Finder struct {
	httpClient      *http.Client
	openLibraryBase string
	googleBooksBase string
}

// Option configures a Finder.
type Option func(*Finder)

// WithOpenLibraryBase overrides the Open Library cover URL template.
func WithOpenLibraryBase(template string) Option {
	return func(f *Finder) { f.openLibraryBase = template }
}

// WithGoogleBooksBase overrides the Google Books volumes endpoint.
func WithGoogleBooksBase(base string) Option {
	return func(f *Finder) { f.googleBooksBase = base }
}

// NewFinder creates a cover finder.
func NewFinder(opts ...Option) *Finder {
	f := &Finder{
		httpClient:      &http.Client{Timeout: requestTimeout},
		openLibraryBase: openLibraryCoverURL,
		googleBooksBase: googleBooksAPIURL,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FindCoverURL returns a validated cover image URL for the book, trying
// Open Library by ISBN, then Google Books by ISBN, then Google Books by
// title and author. Returns "" with a nil error when no cover is found.
func (f *Finder) FindCoverURL(ctx context.Context, isbn, title, author string) (string, error) {
	if isbn != "" {
		if u := f.tryOpenLibrary(ctx, isbn); u != "" {
			return u, nil
		}
		if u := f.tryGoogleBooks(ctx, "isbn:"+cleanISBN(isbn)); u != "" {
			return u, nil
		}
	}

	if title != "" {
		query := "intitle:" + title
		if author != "" {
			query += "+inauthor:" + author
		}
		if u := f.tryGoogleBooks(ctx, query); u != "" {
			return u, nil
		}
	}

	return "", nil
}

func cleanISBN(isbn string) string {
	isbn = strings.ReplaceAll(isbn, "-", "")
	return strings.ReplaceAll(isbn, " ", "")
}

func (f *Finder) tryOpenLibrary(ctx context.Context, isbn string) string {
	coverURL := fmt.Sprintf(f.openLibraryBase, cleanISBN(isbn))
	if f.validateImageURL(ctx, coverURL) {
		return coverURL
	}
	return ""
}

func (f *Finder) tryGoogleBooks(ctx context.Context, query string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.googleBooksBase+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return ""
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		log.Printf("covers: google books lookup failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	var result struct {
		Items []struct {
			VolumeInfo struct {
				ImageLinks struct {
					Thumbnail      string `json:"thumbnail"`
					SmallThumbnail string `json:"smallThumbnail"`
				} `json:"imageLinks"`
			} `json:"volumeInfo"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &result); err != nil || len(result.Items) == 0 {
		return ""
	}

	links := result.Items[0].VolumeInfo.ImageLinks
	thumbnail := links.Thumbnail
	if thumbnail == "" {
		thumbnail = links.SmallThumbnail
	}
	if thumbnail == "" {
		return ""
	}

	// Notion rejects plain-HTTP external images.
	thumbnail = strings.Replace(thumbnail, "http://", "https://", 1)
	if f.validateImageURL(ctx, thumbnail) {
		return thumbnail
	}
	return ""
}

// validateImageURL confirms the URL serves an image before it is handed
// to the page. Non-200 responses are retried; a wrong content type is
// final.
func (f *Finder) validateImageURL(ctx context.Context, imageURL string) bool {
	for attempt := 1; attempt <= maxValidationTries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, imageURL, nil)
		if err != nil {
			return false
		}

		resp, err := f.httpClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return strings.HasPrefix(resp.Header.Get("Content-Type"), "image/")
		}
	}
	return false
}
