package tracking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jzmtx/routeguardweb/internal/api"
	"github.com/jzmtx/routeguardweb/internal/location"
	"github.com/jzmtx/routeguardweb/internal/mapview"
	"github.com/jzmtx/routeguardweb/internal/notify"
	"github.com/jzmtx/routeguardweb/internal/shared/geo"
)

type fakeBackend struct {
	mu       sync.Mutex
	startErr error
	starts   int
	updates  int
	ends     int
	endedID  string
	endedKm  float64
}

func (b *fakeBackend) StartTracking(ctx context.Context, req api.StartTrackingRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts++
	if b.startErr != nil {
		return "", b.startErr
	}
	return "travel-1", nil
}

func (b *fakeBackend) UpdateTracking(ctx context.Context, travelID string, s location.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates++
	return nil
}

func (b *fakeBackend) EndTracking(ctx context.Context, travelID string, endTime time.Time, distanceKm float64) (api.EndTrackingResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ends++
	b.endedID = travelID
	b.endedKm = distanceKm
	return api.EndTrackingResult{DurationMinutes: 12, DistanceKm: distanceKm}, nil
}

func (b *fakeBackend) snapshot() (starts, updates, ends int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.starts, b.updates, b.ends
}

// scriptedSource replays fixes in order and then repeats the last one.
type scriptedSource struct {
	mu      sync.Mutex
	samples []location.Sample
	next    int
}

func (s *scriptedSource) Current(ctx context.Context) (location.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return location.Sample{}, errors.New("no fix")
	}
	sample := s.samples[s.next]
	if s.next < len(s.samples)-1 {
		s.next++
	}
	return sample, nil
}

type recordedMap struct {
	mu    sync.Mutex
	calls []string
}

func (m *recordedMap) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *recordedMap) AddMarker(id string, at geo.Coordinate, opts mapview.MarkerOptions) {
	m.record("add_marker:" + id)
}
func (m *recordedMap) MoveMarker(id string, at geo.Coordinate) { m.record("move_marker:" + id) }
func (m *recordedMap) RemoveMarker(id string)                  { m.record("remove_marker:" + id) }
func (m *recordedMap) DrawPolyline(id string, path []geo.Coordinate, opts mapview.PolylineOptions) {
	m.record("draw_polyline:" + id)
}
func (m *recordedMap) RemovePolyline(id string)             { m.record("remove_polyline:" + id) }
func (m *recordedMap) SetView(center geo.Coordinate, z int) { m.record("set_view") }
func (m *recordedMap) FitBounds(path []geo.Coordinate)      { m.record("fit_bounds") }

func (m *recordedMap) count(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

type recordedNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordedNotifier) add(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordedNotifier) Info(msg string)    { n.add("info: " + msg) }
func (n *recordedNotifier) Success(msg string) { n.add("success: " + msg) }
func (n *recordedNotifier) Warning(msg string) { n.add("warning: " + msg) }
func (n *recordedNotifier) Error(msg string)   { n.add("error: " + msg) }

func (n *recordedNotifier) contains(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type recordedPublisher struct {
	mu     sync.Mutex
	events []Stats
}

func (p *recordedPublisher) Publish(topic string, v any) {
	if topic != "tracking" {
		return
	}
	if stats, ok := v.(Stats); ok {
		p.mu.Lock()
		p.events = append(p.events, stats)
		p.mu.Unlock()
	}
}

func (p *recordedPublisher) last() (Stats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return Stats{}, false
	}
	return p.events[len(p.events)-1], true
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testTrip() Trip {
	return Trip{
		Coordinates: []geo.Coordinate{
			{Lat: 3.5800, Lng: 98.6700},
			{Lat: 3.5900, Lng: 98.6750},
			{Lat: 3.6000, Lng: 98.6800},
		},
		Grade: "A",
		Score: 92,
	}
}

func newTestTracker(backend Backend, source location.Source, mapv mapview.Map, notes notify.Notifier, pub notify.Publisher) *Tracker {
	logger := slog.New(slog.NewTextHandler(testWriter{}, nil))
	return NewTracker(backend, source, mapv, notes, pub, 10*time.Millisecond, 100*time.Millisecond, logger)
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestStartBackendFailureLeavesNoSession(t *testing.T) {
	backend := &fakeBackend{startErr: errors.New("boom")}
	notes := &recordedNotifier{}
	tracker := newTestTracker(backend, &scriptedSource{}, &recordedMap{}, notes, &recordedPublisher{})

	err := tracker.Start(context.Background(), testTrip())
	if err == nil {
		t.Fatalf("expected start error")
	}
	if tracker.Active() {
		t.Fatalf("session should not be active after backend failure")
	}
	if !notes.contains("error: Failed to start tracking") {
		t.Fatalf("expected error notice, got %v", notes.messages)
	}
}

func TestStartRejectsSecondSession(t *testing.T) {
	backend := &fakeBackend{}
	source := &scriptedSource{samples: []location.Sample{{Lat: 3.58, Lng: 98.67, AccuracyM: 5}}}
	tracker := newTestTracker(backend, source, &recordedMap{}, &recordedNotifier{}, &recordedPublisher{})
	defer tracker.Stop(context.Background(), nil)

	if err := tracker.Start(context.Background(), testTrip()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := tracker.Start(context.Background(), testTrip()); !errors.Is(err, ErrAlreadyTracking) {
		t.Fatalf("expected ErrAlreadyTracking, got %v", err)
	}
	starts, _, _ := backend.snapshot()
	if starts != 1 {
		t.Fatalf("second start must not reach the backend, got %d registrations", starts)
	}
}

// blockingBackend holds StartTracking until released so two Starts can
// overlap deterministically.
type blockingBackend struct {
	fakeBackend
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingBackend) StartTracking(ctx context.Context, req api.StartTrackingRequest) (string, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.fakeBackend.StartTracking(ctx, req)
}

func TestConcurrentStartsRegisterOnce(t *testing.T) {
	backend := &blockingBackend{entered: make(chan struct{}), release: make(chan struct{})}
	source := &scriptedSource{samples: []location.Sample{{Lat: 3.58, Lng: 98.67, AccuracyM: 5}}}
	tracker := newTestTracker(backend, source, &recordedMap{}, &recordedNotifier{}, &recordedPublisher{})
	defer tracker.Stop(context.Background(), nil)

	first := make(chan error, 1)
	go func() { first <- tracker.Start(context.Background(), testTrip()) }()
	<-backend.entered

	// The first registration is still in flight; a second attempt must
	// be refused before it reaches the backend.
	if err := tracker.Start(context.Background(), testTrip()); !errors.Is(err, ErrAlreadyTracking) {
		t.Fatalf("expected ErrAlreadyTracking during registration, got %v", err)
	}

	close(backend.release)
	if err := <-first; err != nil {
		t.Fatalf("first start: %v", err)
	}
	starts, _, _ := backend.snapshot()
	if starts != 1 {
		t.Fatalf("expected exactly one registration, got %d", starts)
	}
}

func TestSampleUpdatesMapStatsAndBackend(t *testing.T) {
	speed := 1.5
	backend := &fakeBackend{}
	source := &scriptedSource{samples: []location.Sample{
		{Lat: 3.5800, Lng: 98.6700, AccuracyM: 5, SpeedMps: &speed},
		{Lat: 3.5810, Lng: 98.6705, AccuracyM: 5, SpeedMps: &speed},
	}}
	mapv := &recordedMap{}
	pub := &recordedPublisher{}
	tracker := newTestTracker(backend, source, mapv, &recordedNotifier{}, pub)
	defer tracker.Stop(context.Background(), nil)

	if err := tracker.Start(context.Background(), testTrip()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitUntil(t, "two backend updates", func() bool {
		_, updates, _ := backend.snapshot()
		return updates >= 2
	})

	if mapv.count("add_marker:user") != 1 {
		t.Fatalf("user marker should be created exactly once: %v", mapv.calls)
	}
	waitUntil(t, "marker movement", func() bool { return mapv.count("move_marker:user") >= 1 })

	stats, ok := pub.last()
	if !ok {
		t.Fatalf("no stats published")
	}
	if !stats.Active {
		t.Fatalf("published stats should be active: %+v", stats)
	}
	if stats.SpeedKmh < 5.39 || stats.SpeedKmh > 5.41 {
		t.Fatalf("1.5 m/s should publish as 5.4 km/h, got %v", stats.SpeedKmh)
	}
	if stats.DistanceKm <= 0 {
		t.Fatalf("distance should grow with movement: %+v", stats)
	}
	if stats.ETA == "" {
		t.Fatalf("stats should carry a walking ETA")
	}
}

func TestArrivalStopsWithoutConfirmation(t *testing.T) {
	backend := &fakeBackend{}
	// Second fix is ~11 m from the destination, inside the arrival radius.
	source := &scriptedSource{samples: []location.Sample{
		{Lat: 3.5900, Lng: 98.6750, AccuracyM: 5},
		{Lat: 3.6001, Lng: 98.6800, AccuracyM: 5},
	}}
	mapv := &recordedMap{}
	notes := &recordedNotifier{}
	tracker := newTestTracker(backend, source, mapv, notes, &recordedPublisher{})

	if err := tracker.Start(context.Background(), testTrip()); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitUntil(t, "session end", func() bool {
		_, _, ends := backend.snapshot()
		return ends == 1
	})
	waitUntil(t, "tracker shutdown", func() bool { return !tracker.Active() })

	if !notes.contains("You have arrived") {
		t.Fatalf("expected arrival notice, got %v", notes.messages)
	}
	if mapv.count("remove_marker:user") != 1 || mapv.count("remove_polyline:tracking-route") != 1 {
		t.Fatalf("map layers should be cleaned up on arrival: %v", mapv.calls)
	}
	if backend.endedID != "travel-1" {
		t.Fatalf("end tracking should use the registered travel id, got %q", backend.endedID)
	}
}

func TestNearMissDoesNotStop(t *testing.T) {
	backend := &fakeBackend{}
	// ~67 m from the destination, outside the 50 m arrival radius.
	source := &scriptedSource{samples: []location.Sample{
		{Lat: 3.6006, Lng: 98.6800, AccuracyM: 5},
	}}
	tracker := newTestTracker(backend, source, &recordedMap{}, &recordedNotifier{}, &recordedPublisher{})
	defer tracker.Stop(context.Background(), nil)

	if err := tracker.Start(context.Background(), testTrip()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitUntil(t, "backend update", func() bool {
		_, updates, _ := backend.snapshot()
		return updates >= 2
	})
	if !tracker.Active() {
		t.Fatalf("session should survive a fix just outside the arrival radius")
	}
	_, _, ends := backend.snapshot()
	if ends != 0 {
		t.Fatalf("session should not have ended, got %d ends", ends)
	}
}

func TestStopHonorsConfirmer(t *testing.T) {
	backend := &fakeBackend{}
	source := &scriptedSource{samples: []location.Sample{{Lat: 3.58, Lng: 98.67, AccuracyM: 5}}}
	notes := &recordedNotifier{}
	tracker := newTestTracker(backend, source, &recordedMap{}, notes, &recordedPublisher{})

	if err := tracker.Start(context.Background(), testTrip()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := tracker.Stop(context.Background(), notify.Decision(false)); err != nil {
		t.Fatalf("declined stop: %v", err)
	}
	if !tracker.Active() {
		t.Fatalf("declined confirmation must keep the session running")
	}

	if err := tracker.Stop(context.Background(), notify.Decision(true)); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if tracker.Active() {
		t.Fatalf("session should be stopped")
	}
	_, _, ends := backend.snapshot()
	if ends != 1 {
		t.Fatalf("expected one end tracking call, got %d", ends)
	}
	if !notes.contains("Trip completed") {
		t.Fatalf("expected trip summary notice, got %v", notes.messages)
	}

	// Stopping again is a no-op.
	if err := tracker.Stop(context.Background(), notify.Decision(true)); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	_, _, ends = backend.snapshot()
	if ends != 1 {
		t.Fatalf("second stop must not call the backend again, got %d", ends)
	}
}
