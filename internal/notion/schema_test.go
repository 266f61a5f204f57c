package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectProperty(options ...string) map[string]any {
	opts := make([]map[string]any, 0, len(options))
	for _, o := range options {
		opts = append(opts, map[string]any{"name": o})
	}
	return map[string]any{"type": "select", "select": map[string]any{"options": opts}}
}

func fullSchema() map[string]any {
	return map[string]any{
		PropName:         map[string]any{"type": "title"},
		PropCategory:     selectProperty("Fiction"),
		PropDateDone:     map[string]any{"type": "date"},
		PropImage:        map[string]any{"type": "files"},
		PropProgressCode: selectProperty("New", "Reading", "Finished"),
		PropType:         selectProperty(TypeSentinel),
	}
}

func databaseResponse(title string, props map[string]any) map[string]any {
	return map[string]any{
		"id":         "db-1",
		"title":      []map[string]any{{"plain_text": title}},
		"properties": props,
	}
}

func TestValidateSchema_Valid(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/databases/db-1", r.URL.Path)
		writeJSON(w, http.StatusOK, databaseResponse("Reading List", fullSchema()))
	}))

	result, err := client.ValidateSchema(context.Background(), "db-1")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "Reading List", result.DatabaseTitle)
	assert.Empty(t, result.MissingProperties)
	assert.Empty(t, result.InvalidSelectOptions)
}

func TestValidateSchema_ReportsDefectsPrecisely(t *testing.T) {
	props := fullSchema()
	delete(props, PropImage)                                  // missing
	props[PropDateDone] = map[string]any{"type": "rich_text"} // type mismatch
	props[PropProgressCode] = selectProperty("New", "Reading") // missing option
	props[PropType] = selectProperty("Manual")                 // missing sentinel option

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, databaseResponse("Reading List", props))
	}))

	result, err := client.ValidateSchema(context.Background(), "db-1")
	require.NoError(t, err)
	assert.False(t, result.Valid)

	byName := map[string]MissingProperty{}
	for _, mp := range result.MissingProperties {
		byName[mp.Name] = mp
	}
	require.Len(t, byName, 2)
	assert.Equal(t, "files", byName[PropImage].Type)
	assert.Empty(t, byName[PropImage].ActualType)
	assert.Equal(t, "date", byName[PropDateDone].Type)
	assert.Equal(t, "rich_text", byName[PropDateDone].ActualType)

	assert.Equal(t, []string{"Finished"}, result.InvalidSelectOptions[PropProgressCode])
	assert.Equal(t, []string{TypeSentinel}, result.InvalidSelectOptions[PropType])
}

func TestListDatabases_Paginates(t *testing.T) {
	call := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		call++

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		if call == 1 {
			assert.Nil(t, payload["start_cursor"])
			writeJSON(w, http.StatusOK, map[string]any{
				"results":     []map[string]any{databaseResponse("First", nil)},
				"has_more":    true,
				"next_cursor": "cursor-2",
			})
			return
		}
		assert.Equal(t, "cursor-2", payload["start_cursor"])
		second := databaseResponse("", nil)
		second["id"] = "db-2"
		writeJSON(w, http.StatusOK, map[string]any{
			"results":  []map[string]any{second},
			"has_more": false,
		})
	}))

	databases, err := client.ListDatabases(context.Background())
	require.NoError(t, err)
	require.Len(t, databases, 2)
	assert.Equal(t, "First", databases[0].Title)
	assert.Equal(t, "Untitled Database", databases[1].Title, "empty titles get a display fallback")
}

func TestAddTrackingProperties_SendsAllFields(t *testing.T) {
	var received map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		writeJSON(w, http.StatusOK, databaseResponse("x", nil))
	}))

	require.NoError(t, client.AddTrackingProperties(context.Background(), "db-1"))

	props, ok := received["properties"].(map[string]any)
	require.True(t, ok)
	for _, name := range []string{PropKoboContentID, PropLastSyncTime, PropHighlightCount, PropLastReadDate} {
		assert.Contains(t, props, name)
	}
}

func TestAddOptionalProperties_NoopWhenNothingRequested(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))
	assert.NoError(t, client.AddOptionalProperties(context.Background(), "db-1", false, false))
}

func TestHasProperty_CachesAndInvalidates(t *testing.T) {
	retrievals := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			retrievals++
			writeJSON(w, http.StatusOK, databaseResponse("x", fullSchema()))
			return
		}
		writeJSON(w, http.StatusOK, databaseResponse("x", nil))
	}))

	ctx := context.Background()

	has, err := client.HasProperty(ctx, "db-1", PropProgressCode)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = client.HasProperty(ctx, "db-1", PropDescription)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, 1, retrievals, "second lookup served from cache")

	// Schema mutation invalidates the cache, forcing a re-fetch.
	require.NoError(t, client.AddOptionalProperties(ctx, "db-1", true, false))
	_, err = client.HasProperty(ctx, "db-1", PropDescription)
	require.NoError(t, err)
	assert.Equal(t, 2, retrievals)
}

func TestGetPageCount(t *testing.T) {
	hasMore := false
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"results":  []map[string]any{{"id": "p1"}, {"id": "p2"}},
			"has_more": hasMore,
		})
	}))

	count, err := client.GetPageCount(context.Background(), "db-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	hasMore = true
	count, err = client.GetPageCount(context.Background(), "db-1")
	require.NoError(t, err)
	assert.Equal(t, 100, count, "large databases report the display cap")
}
