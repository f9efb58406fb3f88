package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	APIKey string
	// Depth controls Tavily's search_depth parameter (basic or advanced).
	Depth      string
	MaxResults int
	Endpoint   string
	client     *http.Client
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey string, maxResults int) *Tavily {
	return NewTavilyWithClient(apiKey, maxResults, newHTTPClient())
}

// NewTavilyWithClient constructs a Tavily search provider using the supplied HTTP client.
func NewTavilyWithClient(apiKey string, maxResults int, client *http.Client) *Tavily {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Tavily{APIKey: apiKey, Depth: "basic", MaxResults: maxResults, Endpoint: tavilyEndpoint, client: client}
}

// Fetch posts a query to Tavily. A 429 is returned as a failure, never retried.
func (t *Tavily) Fetch(ctx context.Context, query string) ([]research.Document, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, adapterError("tavily", errors.New("API key is missing"))
	}

	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"search_depth": t.Depth,
		"max_results":  t.MaxResults,
	})
	if err != nil {
		return nil, adapterError("tavily", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, adapterError("tavily", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, adapterError("tavily", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("tavily", resp)
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, adapterError("tavily", err)
	}

	docs := make([]research.Document, 0, len(response.Results))
	for _, r := range response.Results {
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		docs = append(docs, research.Document{Title: r.Title, Text: r.Content, SourceID: r.URL})
		if len(docs) >= t.MaxResults {
			break
		}
	}
	return docs, nil
}
