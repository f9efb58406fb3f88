package tools

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/mikeboe/deep-research/pkg/research"
)

// RateLimited paces calls to a source and bounds each call with a timeout.
// One instance is shared by every run of the process, so the limit applies to
// the provider account rather than to a single run.
type RateLimited struct {
	Source  research.ContentSource
	limiter *rate.Limiter
	timeout time.Duration
}

// NewRateLimited allows perSecond calls with the given burst. A zero timeout
// leaves the caller's deadline alone.
func NewRateLimited(src research.ContentSource, perSecond float64, burst int, timeout time.Duration) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		Source:  src,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		timeout: timeout,
	}
}

// Fetch waits for a token, then delegates. Waiting honours ctx.
func (r *RateLimited) Fetch(ctx context.Context, query string) ([]research.Document, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, adapterError("rate limiter", err)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.Source.Fetch(ctx, query)
}
