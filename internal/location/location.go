package location

import (
	"context"
	"sync"
	"time"

	"github.com/jzmtx/routeguardweb/internal/shared/geo"
)

// Sample is one position fix. Speed and heading are absent when the
// source cannot provide them.
type Sample struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  float64   `json:"accuracy"`
	SpeedMps   *float64  `json:"speed"`
	HeadingDeg *float64  `json:"heading"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s Sample) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: s.Lat, Lng: s.Lng}
}

// Source acquires a single high-accuracy position fix. Implementations
// wrap the browser geolocation bridge or a replayed trace; a continuous
// watch is exposed as a Source that returns its latest fix.
type Source interface {
	Current(ctx context.Context) (Sample, error)
}

// Poller acquires a fix from a Source at a fixed cadence. The first fix
// is requested immediately, not after the first interval elapses. Each
// acquisition gets its own timeout; a failed acquisition is reported and
// does not stop the poller.
type Poller struct {
	source   Source
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewPoller(source Source, interval, timeout time.Duration) *Poller {
	return &Poller{source: source, interval: interval, timeout: timeout}
}

// Start begins polling until Stop is called or ctx is done. Samples are
// delivered in acquisition-completion order on a single goroutine.
func (p *Poller) Start(ctx context.Context, onSample func(Sample), onError func(error)) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		p.acquire(ctx, onSample, onError)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.acquire(ctx, onSample, onError)
			}
		}
	}()
}

// Stop clears the polling registration. Safe to call when not running
// and safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Running reports whether the poller currently has an active registration.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) acquire(ctx context.Context, onSample func(Sample), onError func(error)) {
	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	sample, err := p.source.Current(tctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if onError != nil {
			onError(err)
		}
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	onSample(sample)
}
