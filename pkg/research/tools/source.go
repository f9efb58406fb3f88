// Package tools holds the content sources the research engine queries.
package tools

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mikeboe/deep-research/pkg/research"
)

const (
	defaultMaxResults = 5
	defaultTimeout    = 10 * time.Second
	maxErrorBody      = 512
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// adapterError marks err as a content source failure of the named provider.
func adapterError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", research.ErrAdapterFailure, provider, err)
}

// statusError reads a bounded slice of the body so that provider messages end
// up in the logs without flooding them.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%w: %s http %d: %s", research.ErrAdapterFailure, provider, resp.StatusCode, strings.TrimSpace(string(body)))
}

// collapseSpace joins runs of whitespace, which arXiv and search snippets are full of.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
