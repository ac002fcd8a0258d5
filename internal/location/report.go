package location

import (
	"context"
	"sync"
)

// Report is a Source fed by position fixes submitted from outside.
// Current never serves a cached fix; each call waits for the next
// submission so every reading is fresh.
type Report struct {
	mu      sync.Mutex
	waiters []chan Sample
}

func NewReport() *Report {
	return &Report{}
}

// Submit delivers one fix to every pending Current call.
func (r *Report) Submit(s Sample) {
	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()

	for _, w := range waiters {
		w <- s
	}
}

func (r *Report) Current(ctx context.Context) (Sample, error) {
	w := make(chan Sample, 1)
	r.mu.Lock()
	r.waiters = append(r.waiters, w)
	r.mu.Unlock()

	select {
	case s := <-w:
		return s, nil
	case <-ctx.Done():
		r.drop(w)
		return Sample{}, ctx.Err()
	}
}

func (r *Report) drop(w chan Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, have := range r.waiters {
		if have == w {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}
