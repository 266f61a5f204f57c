package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Property names used by the book database.
const (
	PropName           = "Name"
	PropCategory       = "Category"
	PropDateDone       = "Date Done #1"
	PropImage          = "Image"
	PropProgressCode   = "Progress Code"
	PropType           = "Type"
	PropDescription    = "Description"
	PropTimeSpent      = "Time Spent"
	PropKoboContentID  = "Kobo Content ID"
	PropLastSyncTime   = "Last Sync Time"
	PropHighlightCount = "Highlights Count"
	PropLastReadDate   = "Last Read Date"
)

// TypeSentinel marks pages managed by this tool; manually created entries
// without it are never matched or mutated.
const TypeSentinel = "Kobo"

// requiredProperties is the fixed schema every target database must carry.
var requiredProperties = map[string]string{
	PropName:         "title",
	PropCategory:     "select",
	PropDateDone:     "date",
	PropImage:        "files",
	PropProgressCode: "select",
	PropType:         "select",
}

// requiredSelectOptions lists option values that must exist on select
// properties.
var requiredSelectOptions = map[string][]string{
	PropProgressCode: {"New", "Reading", "Finished"},
	PropType:         {TypeSentinel},
}

// Database is a listed Notion database.
type Database struct {
	ID    string
	Title string
}

// MissingProperty describes one schema defect found during validation.
type MissingProperty struct {
	Name       string
	Type       string
	ActualType string // empty when absent rather than mismatched
}

// SchemaValidation is the result of checking a database against the
// required book schema.
type SchemaValidation struct {
	Valid                bool
	DatabaseTitle        string
	MissingProperties    []MissingProperty
	InvalidSelectOptions map[string][]string
}

type richText struct {
	PlainText string `json:"plain_text"`
	Text      struct {
		Content string `json:"content"`
	} `json:"text"`
}

func plainText(parts []richText) string {
	out := ""
	for _, p := range parts {
		if p.PlainText != "" {
			out += p.PlainText
		} else {
			out += p.Text.Content
		}
	}
	return out
}

type databaseObject struct {
	ID         string     `json:"id"`
	Title      []richText `json:"title"`
	Properties map[string]struct {
		Type   string `json:"type"`
		Select *struct {
			Options []struct {
				Name string `json:"name"`
			} `json:"options"`
		} `json:"select"`
	} `json:"properties"`
}

// ListDatabases returns every database the integration can see.
func (c *Client) ListDatabases(ctx context.Context) ([]Database, error) {
	var databases []Database
	cursor := ""
	for {
		payload := map[string]any{
			"filter": map[string]any{"property": "object", "value": "database"},
		}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}

		body, err := c.doRequest(ctx, "POST", "/search", payload)
		if err != nil {
			return nil, fmt.Errorf("failed to list databases: %w", err)
		}

		var resp struct {
			Results    []databaseObject `json:"results"`
			HasMore    bool             `json:"has_more"`
			NextCursor string           `json:"next_cursor"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode database list: %w", err)
		}

		for _, db := range resp.Results {
			title := plainText(db.Title)
			if title == "" {
				title = "Untitled Database"
			}
			databases = append(databases, Database{ID: db.ID, Title: title})
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	return databases, nil
}

// GetPageCount returns an approximate page count for display in the setup
// wizard. Databases with more than one query page report 100.
func (c *Client) GetPageCount(ctx context.Context, databaseID string) (int, error) {
	body, err := c.doRequest(ctx, "POST", "/databases/"+url.PathEscape(databaseID)+"/query",
		map[string]any{"page_size": 100})
	if err != nil {
		return 0, err
	}

	var resp struct {
		Results []json.RawMessage `json:"results"`
		HasMore bool              `json:"has_more"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode page count response: %w", err)
	}
	if resp.HasMore {
		return 100, nil
	}
	return len(resp.Results), nil
}

// ValidateSchema checks the database against the required book schema and
// reports precisely which properties are missing, type-mismatched, or lack
// required select options.
func (c *Client) ValidateSchema(ctx context.Context, databaseID string) (SchemaValidation, error) {
	db, err := c.retrieveDatabase(ctx, databaseID)
	if err != nil {
		return SchemaValidation{}, err
	}

	result := SchemaValidation{
		DatabaseTitle:        plainText(db.Title),
		InvalidSelectOptions: map[string][]string{},
	}
	if result.DatabaseTitle == "" {
		result.DatabaseTitle = "Untitled Database"
	}

	for name, wantType := range requiredProperties {
		prop, ok := db.Properties[name]
		if !ok {
			result.MissingProperties = append(result.MissingProperties,
				MissingProperty{Name: name, Type: wantType})
			continue
		}
		if prop.Type != wantType {
			result.MissingProperties = append(result.MissingProperties,
				MissingProperty{Name: name, Type: wantType, ActualType: prop.Type})
		}
	}

	for name, wantOptions := range requiredSelectOptions {
		prop, ok := db.Properties[name]
		if !ok || prop.Type != "select" || prop.Select == nil {
			continue // already reported as missing/mismatched above
		}
		present := map[string]bool{}
		for _, opt := range prop.Select.Options {
			present[opt.Name] = true
		}
		var missing []string
		for _, opt := range wantOptions {
			if !present[opt] {
				missing = append(missing, opt)
			}
		}
		if len(missing) > 0 {
			result.InvalidSelectOptions[name] = missing
		}
	}

	result.Valid = len(result.MissingProperties) == 0 && len(result.InvalidSelectOptions) == 0
	return result, nil
}

func (c *Client) retrieveDatabase(ctx context.Context, databaseID string) (*databaseObject, error) {
	body, err := c.doRequest(ctx, "GET", "/databases/"+url.PathEscape(databaseID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve database: %w", err)
	}
	var db databaseObject
	if err := json.Unmarshal(body, &db); err != nil {
		return nil, fmt.Errorf("failed to decode database: %w", err)
	}
	return &db, nil
}

func selectSchema(options ...string) map[string]any {
	opts := make([]map[string]any, 0, len(options))
	for _, name := range options {
		opts = append(opts, map[string]any{"name": name})
	}
	return map[string]any{"select": map[string]any{"options": opts}}
}

func requiredSchemaPayload() map[string]any {
	return map[string]any{
		PropName:         map[string]any{"title": map[string]any{}},
		PropCategory:     selectSchema("Fiction", "Non-Fiction", "Reference"),
		PropDateDone:     map[string]any{"date": map[string]any{}},
		PropImage:        map[string]any{"files": map[string]any{}},
		PropProgressCode: selectSchema("New", "Reading", "Finished"),
		PropType:         selectSchema(TypeSentinel),
	}
}

// CreateDatabase creates a new book database under the given parent page
// with the full required schema.
func (c *Client) CreateDatabase(ctx context.Context, parentPageID, name string) (Database, error) {
	payload := map[string]any{
		"parent":     map[string]any{"page_id": parentPageID},
		"title":      []map[string]any{{"type": "text", "text": map[string]any{"content": name}}},
		"properties": requiredSchemaPayload(),
	}

	body, err := c.doRequest(ctx, "POST", "/databases", payload)
	if err != nil {
		return Database{}, fmt.Errorf("failed to create database: %w", err)
	}

	var db databaseObject
	if err := json.Unmarshal(body, &db); err != nil {
		return Database{}, fmt.Errorf("failed to decode created database: %w", err)
	}

	c.invalidateSchemaCache(db.ID)
	title := plainText(db.Title)
	if title == "" {
		title = name
	}
	return Database{ID: db.ID, Title: title}, nil
}

// InitializeSchema adds the required book properties to an existing
// database. Safe to call when some or all already exist.
func (c *Client) InitializeSchema(ctx context.Context, databaseID string) error {
	if err := c.updateProperties(ctx, databaseID, requiredSchemaPayload()); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return nil
}

// AddOptionalProperties adds the Description and/or Time Spent properties.
// Idempotent in effect.
func (c *Client) AddOptionalProperties(ctx context.Context, databaseID string, description, timeSpent bool) error {
	props := map[string]any{}
	if description {
		props[PropDescription] = map[string]any{"rich_text": map[string]any{}}
	}
	if timeSpent {
		props[PropTimeSpent] = map[string]any{"number": map[string]any{}}
	}
	if len(props) == 0 {
		return nil
	}
	if err := c.updateProperties(ctx, databaseID, props); err != nil {
		return fmt.Errorf("failed to add optional properties: %w", err)
	}
	return nil
}

// AddTrackingProperties adds the internal sync-tracking fields. Idempotent
// in effect.
func (c *Client) AddTrackingProperties(ctx context.Context, databaseID string) error {
	props := map[string]any{
		PropKoboContentID:  map[string]any{"rich_text": map[string]any{}},
		PropLastSyncTime:   map[string]any{"date": map[string]any{}},
		PropHighlightCount: map[string]any{"number": map[string]any{}},
		PropLastReadDate:   map[string]any{"date": map[string]any{}},
	}
	if err := c.updateProperties(ctx, databaseID, props); err != nil {
		return fmt.Errorf("failed to add tracking properties: %w", err)
	}
	return nil
}

func (c *Client) updateProperties(ctx context.Context, databaseID string, props map[string]any) error {
	_, err := c.doRequest(ctx, "PATCH", "/databases/"+url.PathEscape(databaseID),
		map[string]any{"properties": props})
	if err != nil {
		return err
	}
	c.invalidateSchemaCache(databaseID)
	return nil
}

// UpdateDatabaseDescription sets the database description text, used for
// the aggregate book-count label at run end.
func (c *Client) UpdateDatabaseDescription(ctx context.Context, databaseID, text string) error {
	payload := map[string]any{
		"description": []map[string]any{
			{"type": "text", "text": map[string]any{"content": text}},
		},
	}
	if _, err := c.doRequest(ctx, "PATCH", "/databases/"+url.PathEscape(databaseID), payload); err != nil {
		return fmt.Errorf("failed to update database description: %w", err)
	}
	return nil
}

// HasProperty reports whether the database schema carries the named
// property, consulting a per-database cache that schema mutations
// invalidate.
func (c *Client) HasProperty(ctx context.Context, databaseID, property string) (bool, error) {
	c.mu.Lock()
	cached, ok := c.schemaCache[databaseID]
	c.mu.Unlock()

	if !ok {
		db, err := c.retrieveDatabase(ctx, databaseID)
		if err != nil {
			return false, err
		}
		cached = make(map[string]bool, len(db.Properties))
		for name := range db.Properties {
			cached[name] = true
		}
		c.mu.Lock()
		c.schemaCache[databaseID] = cached
		c.mu.Unlock()
	}

	return cached[property], nil
}

func (c *Client) invalidateSchemaCache(databaseID string) {
	c.mu.Lock()
	delete(c.schemaCache, databaseID)
	c.mu.Unlock()
}
