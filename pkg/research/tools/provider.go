package tools

import (
	"fmt"
	"log/slog"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

// NewSource builds the configured content source, wrapped in the process-wide
// rate limiter.
func NewSource(cfg *config.Config, logger *slog.Logger) (research.ContentSource, error) {
	var ocr *OCR
	if cfg.ArxivFullText {
		ocr = NewOCR(cfg.MistralApiKey)
	}
	arxiv := func() *Arxiv {
		a := NewArxiv(cfg.SearchMaxResults, ocr)
		if logger != nil {
			a.Logger = logger
		}
		return a
	}

	var src research.ContentSource
	switch cfg.SearchProvider {
	case "tavily":
		src = NewTavily(cfg.TavilyApiKey, cfg.SearchMaxResults)
	case "brave":
		src = NewBrave(cfg.BraveApiKey, cfg.SearchMaxResults)
	case "arxiv":
		src = arxiv()
	case "multi":
		sources := []research.ContentSource{arxiv()}
		if cfg.TavilyApiKey != "" {
			sources = append(sources, NewTavily(cfg.TavilyApiKey, cfg.SearchMaxResults))
		}
		if cfg.BraveApiKey != "" {
			sources = append(sources, NewBrave(cfg.BraveApiKey, cfg.SearchMaxResults))
		}
		src = NewMulti(sources...)
	default:
		return nil, fmt.Errorf("%w: unknown search provider %q", research.ErrInvalidConfig, cfg.SearchProvider)
	}

	return NewRateLimited(src, cfg.SearchRateLimit, 1, cfg.SearchTimeout), nil
}
