package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"
)

// Work is one scholarly record returned by the works API.
type Work struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Year     int      `json:"year"`
	Venue    string   `json:"venue,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	URL      string   `json:"url,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	Cited    int      `json:"cited_by_count"`
}

// Result is one page of search results.
type Result struct {
	Works   []Work `json:"works"`
	Total   int    `json:"total"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}

// Client queries an OpenAlex-style works endpoint.
type Client struct {
	endpoint string
	mailto   string
	client   *http.Client
}

func NewClient(endpoint, mailto string) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		mailto:   mailto,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Search runs a paginated works query.
func (c *Client) Search(ctx context.Context, query string, page, perPage int) (*Result, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 25
	}

	params := neturl.Values{}
	params.Set("search", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("per-page", strconv.Itoa(perPage))
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/works?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("works request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("works api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload worksPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode works response: %w", err)
	}

	works := make([]Work, 0, len(payload.Results))
	for _, raw := range payload.Results {
		works = append(works, raw.toWork())
	}
	return &Result{
		Works:   works,
		Total:   payload.Meta.Count,
		Page:    page,
		PerPage: perPage,
	}, nil
}

type worksPayload struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Results []rawWork `json:"results"`
}

type rawWork struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	DisplayName  string `json:"display_name"`
	PubYear      int    `json:"publication_year"`
	DOI          string `json:"doi"`
	CitedByCount int    `json:"cited_by_count"`
	Authorships  []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation *struct {
		LandingPageURL string `json:"landing_page_url"`
		Source         *struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

func (r rawWork) toWork() Work {
	title := r.Title
	if title == "" {
		title = r.DisplayName
	}

	authors := make([]string, 0, len(r.Authorships))
	for _, a := range r.Authorships {
		if name := strings.TrimSpace(a.Author.DisplayName); name != "" {
			authors = append(authors, name)
		}
	}

	w := Work{
		ID:       r.ID,
		Title:    title,
		Authors:  authors,
		Year:     r.PubYear,
		DOI:      strings.TrimPrefix(r.DOI, "https://doi.org/"),
		Cited:    r.CitedByCount,
		Abstract: reconstructAbstract(r.AbstractInvertedIndex),
	}
	if r.PrimaryLocation != nil {
		w.URL = r.PrimaryLocation.LandingPageURL
		if r.PrimaryLocation.Source != nil {
			w.Venue = r.PrimaryLocation.Source.DisplayName
		}
	}
	return w
}

// reconstructAbstract rebuilds plain text from the inverted index the
// works API ships instead of raw abstracts.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}

	maxPos := -1
	for _, positions := range index {
		for _, pos := range positions {
			if pos > maxPos {
				maxPos = pos
			}
		}
	}
	if maxPos < 0 {
		return ""
	}

	words := make([]string, maxPos+1)
	for word, positions := range index {
		for _, pos := range positions {
			if pos >= 0 && pos <= maxPos {
				words[pos] = word
			}
		}
	}

	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return strings.Join(out, " ")
}
