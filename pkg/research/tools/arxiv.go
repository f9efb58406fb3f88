package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mikeboe/deep-research/pkg/research"
)

const arxivEndpoint = "https://export.arxiv.org/api/query"

// ArxivEntry struct to hold arXiv entry data
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink struct to hold arXiv link data
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed struct to hold the entire arXiv feed
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// PDFLink returns the entry's PDF link, if any.
func (e ArxivEntry) PDFLink() string {
	for _, link := range e.Link {
		if link.Type == "application/pdf" {
			return link.Href
		}
	}
	return ""
}

// Arxiv queries the arXiv Atom API. With an OCR client attached, each paper's PDF
// is converted to text and replaces the abstract.
type Arxiv struct {
	MaxResults int
	Endpoint   string
	OCR        *OCR
	Logger     *slog.Logger
	client     *http.Client
}

// NewArxiv constructs an arXiv source. ocr may be nil.
func NewArxiv(maxResults int, ocr *OCR) *Arxiv {
	return NewArxivWithClient(maxResults, ocr, newHTTPClient())
}

// NewArxivWithClient constructs an arXiv source using the supplied HTTP client.
func NewArxivWithClient(maxResults int, ocr *OCR, client *http.Client) *Arxiv {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Arxiv{MaxResults: maxResults, Endpoint: arxivEndpoint, OCR: ocr, Logger: slog.Default(), client: client}
}

// Fetch searches arXiv and returns one document per paper.
func (a *Arxiv) Fetch(ctx context.Context, query string) ([]research.Document, error) {
	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(a.MaxResults))
	params.Add("start", "0") // Start from the first result

	apiURL := a.Endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, adapterError("arxiv", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, adapterError("arxiv", fmt.Errorf("failed to make API request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("arxiv", resp)
	}

	var feed ArxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, adapterError("arxiv", fmt.Errorf("failed to unmarshal XML: %w", err))
	}
	a.Logger.Debug("arXiv response received", "query", query, "entries", len(feed.Entry))

	docs := make([]research.Document, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		text := collapseSpace(entry.Summary)
		if text == "" {
			continue
		}
		pdf := entry.PDFLink()
		sourceID := strings.TrimSpace(entry.ID)
		if sourceID == "" {
			sourceID = pdf
		}

		if a.OCR != nil && pdf != "" {
			full, err := a.OCR.Extract(ctx, pdf)
			if err != nil {
				a.Logger.Warn("PDF extraction failed, using abstract", "url", pdf, "error", err)
			} else if strings.TrimSpace(full) != "" {
				text = full
			}
		}

		docs = append(docs, research.Document{
			Title:    collapseSpace(entry.Title),
			Text:     text,
			SourceID: sourceID,
		})
	}
	return docs, nil
}
