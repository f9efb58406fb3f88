package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave uses the Brave Search API. An API key is required via X-Subscription-Token.
type Brave struct {
	APIKey     string
	MaxResults int
	Endpoint   string
	client     *http.Client
}

// NewBrave constructs a Brave search provider.
func NewBrave(apiKey string, maxResults int) *Brave {
	return NewBraveWithClient(apiKey, maxResults, newHTTPClient())
}

// NewBraveWithClient constructs a Brave search provider using the supplied HTTP client.
func NewBraveWithClient(apiKey string, maxResults int, client *http.Client) *Brave {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Brave{APIKey: apiKey, MaxResults: maxResults, Endpoint: braveEndpoint, client: client}
}

// Fetch executes a Brave query. Pacing belongs to RateLimited; a 429 is a failure.
func (b *Brave) Fetch(ctx context.Context, query string) ([]research.Document, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, adapterError("brave", errors.New("API key is missing"))
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(b.MaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, adapterError("brave", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, adapterError("brave", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("brave", resp)
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title         string   `json:"title"`
				URL           string   `json:"url"`
				Description   string   `json:"description"`
				ExtraSnippets []string `json:"extra_snippets"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, adapterError("brave", err)
	}

	docs := make([]research.Document, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		text := strings.Join(append([]string{r.Description}, r.ExtraSnippets...), "\n")
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, research.Document{Title: r.Title, Text: text, SourceID: r.URL})
		if len(docs) >= b.MaxResults {
			break
		}
	}
	return docs, nil
}
