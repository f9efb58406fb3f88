package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const mistralOCREndpoint = "https://api.mistral.ai/v1/ocr"

type PdfScrapeResponsePage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type OcrResponse struct {
	Pages []PdfScrapeResponsePage `json:"pages"`
}

// OCR extracts the contents of PDF files as markdown using the Mistral OCR API.
type OCR struct {
	APIKey   string
	Model    string
	Endpoint string
	// MaxPages bounds how many pages are kept; zero keeps all.
	MaxPages int
	client   *http.Client
}

// NewOCR constructs a Mistral OCR client.
func NewOCR(apiKey string) *OCR {
	return NewOCRWithClient(apiKey, &http.Client{Timeout: 60 * time.Second})
}

// NewOCRWithClient constructs a Mistral OCR client using the supplied HTTP client.
func NewOCRWithClient(apiKey string, client *http.Client) *OCR {
	return &OCR{APIKey: apiKey, Model: "mistral-ocr-latest", Endpoint: mistralOCREndpoint, MaxPages: 20, client: client}
}

// Extract returns the PDF at url as markdown, one section per page.
func (o *OCR) Extract(ctx context.Context, url string) (string, error) {
	if o.APIKey == "" {
		return "", errors.New("MISTRAL_API_KEY is not set")
	}
	url = strings.Replace(url, "http://", "https://", 1)

	jsonBody, err := json.Marshal(map[string]any{
		"model": o.Model,
		"document": map[string]string{
			"type":         "document_url",
			"document_url": url,
		},
		"include_image_base64": false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("mistral-ocr", resp)
	}

	var ocrResponse OcrResponse
	if err := json.NewDecoder(resp.Body).Decode(&ocrResponse); err != nil {
		return "", fmt.Errorf("failed to unmarshal OCR response: %w", err)
	}

	var b strings.Builder
	for i, page := range ocrResponse.Pages {
		if o.MaxPages > 0 && i >= o.MaxPages {
			break
		}
		fmt.Fprintf(&b, "- Page %d -\n", page.Index)
		b.WriteString(page.Markdown)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String()), nil
}
