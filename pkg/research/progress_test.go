package research

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressLifecycle(t *testing.T) {
	var got []ProgressState
	p := NewProgress(3, 4, func(s ProgressState) { got = append(got, s) })

	initial := p.Snapshot()
	assert.Equal(t, ProgressState{TotalDepth: 3, TotalBreadth: 4, CurrentBreadth: 4}, initial)

	p.enterLevel(1, 4, "root")
	p.dispatched(2, "a")
	p.completed("a")
	p.enterLevel(2, 2, "follow-up")
	p.enterLevel(1, 4, "late sibling")
	p.completed("b")

	require.Len(t, got, 6)
	final := p.Snapshot()
	assert.Equal(t, 2, final.CurrentDepth)
	assert.Equal(t, 2, final.CurrentBreadth, "a shallower frame must not widen the breadth view")
	assert.Equal(t, 2, final.TotalQueries)
	assert.Equal(t, 2, final.CompletedQueries)
	assert.Equal(t, "b", final.CurrentQuery)
}

func TestProgressCompletedNeverExceedsTotal(t *testing.T) {
	p := NewProgress(1, 1, nil)
	p.completed("stray")
	assert.Equal(t, 0, p.Snapshot().CompletedQueries)

	p.dispatched(0, "")
	assert.Equal(t, 0, p.Snapshot().TotalQueries)
}

func TestProgressSnapshotFromCallback(t *testing.T) {
	var p *Progress
	var inside []ProgressState
	p = NewProgress(2, 2, func(s ProgressState) {
		inside = append(inside, p.Snapshot())
	})
	p.dispatched(1, "q")
	p.completed("q")

	require.Len(t, inside, 2)
	assert.Equal(t, 1, inside[1].CompletedQueries)
}

func TestProgressConcurrentUpdatesAreSerialized(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	p := NewProgress(1, 1, func(s ProgressState) {
		mu.Lock()
		seen = append(seen, s.CompletedQueries)
		mu.Unlock()
	})
	p.dispatched(100, "q")

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.completed("q")
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, p.Snapshot().CompletedQueries)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
}
