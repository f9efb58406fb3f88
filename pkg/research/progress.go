package research

import "sync"

// Progress is the shared progress view of one run. All updates are serialized
// and the callback sees snapshots in the order the updates happened.
type Progress struct {
	notifyMu sync.Mutex // serializes update+callback pairs
	mu       sync.RWMutex
	state    ProgressState
	onUpdate ProgressFunc
}

// NewProgress creates the aggregator for a run with the given budget.
func NewProgress(totalDepth, totalBreadth int, onUpdate ProgressFunc) *Progress {
	return &Progress{
		state: ProgressState{
			CurrentDepth:   0,
			TotalDepth:     totalDepth,
			CurrentBreadth: totalBreadth,
			TotalBreadth:   totalBreadth,
		},
		onUpdate: onUpdate,
	}
}

// Snapshot returns a consistent copy of the current state. It is safe to call
// from any goroutine, including from inside the progress callback.
func (p *Progress) Snapshot() ProgressState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Progress) update(fn func(s *ProgressState)) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()

	p.mu.Lock()
	fn(&p.state)
	snap := p.state
	p.mu.Unlock()

	if p.onUpdate != nil {
		p.onUpdate(snap)
	}
}

// enterLevel records that a frame at the given 1-based level is planning.
func (p *Progress) enterLevel(level, breadth int, topic string) {
	p.update(func(s *ProgressState) {
		if level > s.CurrentDepth {
			s.CurrentDepth = level
			s.CurrentBreadth = breadth
		}
		s.CurrentQuery = topic
	})
}

// dispatched raises the total by the number of sub-queries about to run.
func (p *Progress) dispatched(n int, first string) {
	if n <= 0 {
		return
	}
	p.update(func(s *ProgressState) {
		s.TotalQueries += n
		s.CurrentQuery = first
	})
}

// completed records one finished sub-query, successful or not.
func (p *Progress) completed(query string) {
	p.update(func(s *ProgressState) {
		if s.CompletedQueries < s.TotalQueries {
			s.CompletedQueries++
		}
		s.CurrentQuery = query
	})
}
