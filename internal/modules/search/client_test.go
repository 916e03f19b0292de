package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func worksFixture() map[string]interface{} {
	return map[string]interface{}{
		"meta": map[string]int{"count": 2},
		"results": []map[string]interface{}{
			{
				"id":               "https://openalex.org/W1",
				"title":            "Attention Is All You Need",
				"publication_year": 2017,
				"doi":              "https://doi.org/10.5555/3295222",
				"cited_by_count":   90000,
				"authorships": []map[string]interface{}{
					{"author": map[string]string{"display_name": "Ashish Vaswani"}},
					{"author": map[string]string{"display_name": "Noam Shazeer"}},
				},
				"primary_location": map[string]interface{}{
					"landing_page_url": "https://example.org/transformer",
					"source":           map[string]string{"display_name": "NeurIPS"},
				},
				"abstract_inverted_index": map[string][]int{
					"dominant": {1}, "The": {0}, "models": {3}, "sequence": {2},
				},
			},
			{
				"id":           "https://openalex.org/W2",
				"display_name": "Untitled Work",
			},
		},
	}
}

func TestClientSearch(t *testing.T) {
	var gotQuery map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/works", r.URL.Path)
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(worksFixture())
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "dev@example.org")
	result, err := client.Search(context.Background(), "transformer", 2, 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"transformer"}, gotQuery["search"])
	assert.Equal(t, []string{"2"}, gotQuery["page"])
	assert.Equal(t, []string{"10"}, gotQuery["per-page"])
	assert.Equal(t, []string{"dev@example.org"}, gotQuery["mailto"])

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Page)
	require.Len(t, result.Works, 2)

	first := result.Works[0]
	assert.Equal(t, "Attention Is All You Need", first.Title)
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, first.Authors)
	assert.Equal(t, 2017, first.Year)
	assert.Equal(t, "10.5555/3295222", first.DOI)
	assert.Equal(t, "NeurIPS", first.Venue)
	assert.Equal(t, "https://example.org/transformer", first.URL)
	assert.Equal(t, "The dominant sequence models", first.Abstract)

	// display_name fills in when title is absent.
	assert.Equal(t, "Untitled Work", result.Works[1].Title)
}

func TestClientSearchClampsPaging(t *testing.T) {
	var gotQuery map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]interface{}{"meta": map[string]int{"count": 0}})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")
	_, err := client.Search(context.Background(), "q", 0, 500)
	require.NoError(t, err)

	assert.Equal(t, []string{"1"}, gotQuery["page"])
	assert.Equal(t, []string{"25"}, gotQuery["per-page"])
	assert.NotContains(t, gotQuery, "mailto")
}

func TestClientSearchAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "")
	_, err := client.Search(context.Background(), "q", 1, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestReconstructAbstract(t *testing.T) {
	assert.Equal(t, "", reconstructAbstract(nil))
	assert.Equal(t, "a b c", reconstructAbstract(map[string][]int{
		"a": {0}, "c": {2}, "b": {1},
	}))
	// Repeated words occupy multiple positions.
	assert.Equal(t, "to be or not to be", reconstructAbstract(map[string][]int{
		"to": {0, 4}, "be": {1, 5}, "or": {2}, "not": {3},
	}))
}
