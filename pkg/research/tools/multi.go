package tools

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/deep-research/pkg/research"
)

// Multi fans one query out to several sources and concatenates their documents.
type Multi struct {
	Sources []research.ContentSource
}

// NewMulti combines sources. Order is kept in the output.
func NewMulti(sources ...research.ContentSource) *Multi {
	return &Multi{Sources: sources}
}

// Fetch fails only when every source fails. Documents sharing a SourceID are
// returned once.
func (m *Multi) Fetch(ctx context.Context, query string) ([]research.Document, error) {
	docs := make([][]research.Document, len(m.Sources))
	errs := make([]error, len(m.Sources))

	var g errgroup.Group
	for i, src := range m.Sources {
		g.Go(func() error {
			docs[i], errs[i] = src.Fetch(ctx, query)
			return nil
		})
	}
	_ = g.Wait()

	var out []research.Document
	var failed []error
	seen := make(map[string]struct{})
	for i := range m.Sources {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		for _, d := range docs[i] {
			if d.SourceID != "" {
				if _, dup := seen[d.SourceID]; dup {
					continue
				}
				seen[d.SourceID] = struct{}{}
			}
			out = append(out, d)
		}
	}

	if len(m.Sources) > 0 && len(failed) == len(m.Sources) {
		return nil, fmt.Errorf("%w: all %d sources failed: %w", research.ErrAdapterFailure, len(failed), errors.Join(failed...))
	}
	return out, nil
}
