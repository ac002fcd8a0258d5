package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jzmtx/routeguardweb/internal/api"
	"github.com/jzmtx/routeguardweb/internal/location"
	"github.com/jzmtx/routeguardweb/internal/mapview"
	"github.com/jzmtx/routeguardweb/internal/notify"
	"github.com/jzmtx/routeguardweb/internal/shared/geo"
)

// arrivalRadiusKm is how close to the destination counts as arrived.
const arrivalRadiusKm = 0.05

const trailLength = 20

var ErrAlreadyTracking = errors.New("a tracking session is already active")

type Backend interface {
	StartTracking(ctx context.Context, req api.StartTrackingRequest) (string, error)
	UpdateTracking(ctx context.Context, travelID string, s location.Sample) error
	EndTracking(ctx context.Context, travelID string, endTime time.Time, distanceKm float64) (api.EndTrackingResult, error)
}

// Trip is the chosen route a tracking session follows.
type Trip struct {
	Coordinates []geo.Coordinate
	Grade       string
	Score       int
	RouteData   any
}

// Stats is the live session snapshot published on every position fix.
type Stats struct {
	Active      bool    `json:"active"`
	SpeedKmh    float64 `json:"speed_kmh"`
	DistanceKm  float64 `json:"distance_km"`
	RemainingKm float64 `json:"remaining_km"`
	ETA         string  `json:"eta"`
	ElapsedSec  int     `json:"elapsed_sec"`
}

// Tracker runs one live tracking session at a time: backend
// registration, position polling, map updates, and the arrival check.
type Tracker struct {
	backend  Backend
	source   location.Source
	mapv     mapview.Map
	notes    notify.Notifier
	pub      notify.Publisher
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	starting bool
	poller   *location.Poller
	travelID string
	trip     Trip
	dest     geo.Coordinate
	history  []geo.Coordinate
	started  time.Time
	hasFix   bool
}

func NewTracker(backend Backend, source location.Source, mapv mapview.Map, notes notify.Notifier, pub notify.Publisher, interval, timeout time.Duration, logger *slog.Logger) *Tracker {
	return &Tracker{
		backend:  backend,
		source:   source,
		mapv:     mapv,
		notes:    notes,
		pub:      pub,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start registers the session with the backend, draws the chosen route,
// and begins polling. Registration happens before anything else, so a
// backend failure leaves no session behind.
func (t *Tracker) Start(ctx context.Context, trip Trip) error {
	if len(trip.Coordinates) < 2 {
		return errors.New("trip needs at least two coordinates")
	}

	// The starting guard is held across backend registration so a
	// concurrent Start cannot register a second travel record.
	t.mu.Lock()
	if t.poller != nil || t.starting {
		t.mu.Unlock()
		t.notes.Warning("Tracking is already active")
		return ErrAlreadyTracking
	}
	t.starting = true
	t.mu.Unlock()

	start := trip.Coordinates[0]
	end := trip.Coordinates[len(trip.Coordinates)-1]
	travelID, err := t.backend.StartTracking(ctx, api.StartTrackingRequest{
		StartLat:    start.Lat,
		StartLng:    start.Lng,
		EndLat:      end.Lat,
		EndLng:      end.Lng,
		RouteData:   trip.RouteData,
		SafetyScore: trip.Score,
	})
	if err != nil {
		t.mu.Lock()
		t.starting = false
		t.mu.Unlock()
		t.notes.Error("Failed to start tracking")
		return fmt.Errorf("start tracking: %w", err)
	}

	poller := location.NewPoller(t.source, t.interval, t.timeout)

	t.mu.Lock()
	t.starting = false
	t.poller = poller
	t.travelID = travelID
	t.trip = trip
	t.dest = end
	t.history = nil
	t.started = time.Now()
	t.hasFix = false
	t.mu.Unlock()

	t.mapv.DrawPolyline("tracking-route", trip.Coordinates, mapview.PolylineOptions{
		Color:    mapview.GradeColor(trip.Grade),
		WeightPx: 6,
		Opacity:  0.8,
	})
	t.notes.Success("Tracking started. Stay safe!")

	poller.Start(ctx, t.onSample, func(err error) {
		t.logger.Warn("location fix failed", "error", err)
	})
	return nil
}

// Stop ends the session after the confirmer approves. A nil confirmer
// skips the prompt. Stopping an inactive tracker is a no-op.
func (t *Tracker) Stop(ctx context.Context, confirm notify.Confirmer) error {
	t.mu.Lock()
	if t.poller == nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if confirm != nil && !confirm.Confirm("Stop tracking this trip?") {
		return nil
	}
	t.finish(ctx, "")
	return nil
}

func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.poller != nil
}

// Snapshot returns the current session stats without waiting for the
// next fix.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.poller == nil {
		return Stats{}
	}
	return t.statsLocked(nil)
}

// Trip returns the route the active session follows, for redrawing.
func (t *Tracker) ActiveTrip() (Trip, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trip, t.poller != nil
}

// LastFix returns the most recent position of the active session.
func (t *Tracker) LastFix() (geo.Coordinate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.poller == nil || len(t.history) == 0 {
		return geo.Coordinate{}, false
	}
	return t.history[len(t.history)-1], true
}

func (t *Tracker) onSample(s location.Sample) {
	t.mu.Lock()
	if t.poller == nil {
		t.mu.Unlock()
		return
	}
	at := s.Coordinate()
	t.history = append(t.history, at)
	firstFix := !t.hasFix
	t.hasFix = true
	travelID := t.travelID
	stats := t.statsLocked(s.SpeedMps)
	trail := t.trailLocked()
	remaining := geo.DistanceKm(at, t.dest)
	t.mu.Unlock()

	if firstFix {
		t.mapv.AddMarker("user", at, mapview.MarkerOptions{Icon: "navigation", Color: "#2563eb", Popup: "You are here"})
	} else {
		t.mapv.MoveMarker("user", at)
	}
	t.mapv.SetView(at, 15)
	t.mapv.DrawPolyline("trail", trail, mapview.PolylineOptions{
		Color:     "#2563eb",
		WeightPx:  4,
		Opacity:   0.9,
		DashArray: "6 8",
	})
	t.pub.Publish("tracking", stats)

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	if err := t.backend.UpdateTracking(ctx, travelID, s); err != nil {
		t.logger.Warn("tracking update failed", "travel_id", travelID, "error", err)
	}
	cancel()

	if remaining < arrivalRadiusKm {
		t.notes.Success("You have arrived at your destination!")
		t.finish(context.Background(), "arrived")
	}
}

// finish tears the session down. It is the single exit path for both
// manual stop and arrival.
func (t *Tracker) finish(ctx context.Context, reason string) {
	t.mu.Lock()
	poller := t.poller
	if poller == nil {
		t.mu.Unlock()
		return
	}
	t.poller = nil
	travelID := t.travelID
	distance := geo.PathDistanceKm(t.history)
	t.travelID = ""
	t.trip = Trip{}
	t.history = nil
	t.hasFix = false
	t.mu.Unlock()

	poller.Stop()

	result, err := t.backend.EndTracking(ctx, travelID, time.Now(), distance)
	if err != nil {
		t.logger.Warn("end tracking failed", "travel_id", travelID, "error", err)
	} else if reason != "arrived" {
		t.notes.Success(fmt.Sprintf("Trip completed: %.2f km in %d minutes", result.DistanceKm, result.DurationMinutes))
	}

	t.mapv.RemoveMarker("user")
	t.mapv.RemovePolyline("tracking-route")
	t.mapv.RemovePolyline("trail")
	t.pub.Publish("tracking", Stats{Active: false})
}

// statsLocked builds the published snapshot. Caller holds t.mu.
func (t *Tracker) statsLocked(speedMps *float64) Stats {
	stats := Stats{
		Active:     true,
		DistanceKm: geo.PathDistanceKm(t.history),
		ElapsedSec: int(time.Since(t.started).Seconds()),
	}
	if speedMps != nil {
		stats.SpeedKmh = geo.SpeedKmh(*speedMps)
	}
	if len(t.history) > 0 {
		remaining := geo.DistanceKm(t.history[len(t.history)-1], t.dest)
		stats.RemainingKm = remaining
		stats.ETA = geo.FormatETA(geo.WalkingETAMinutes(remaining))
	}
	return stats
}

// trailLocked returns the recent breadcrumb, capped so the map layer
// stays light on long trips. Caller holds t.mu.
func (t *Tracker) trailLocked() []geo.Coordinate {
	if len(t.history) <= trailLength {
		out := make([]geo.Coordinate, len(t.history))
		copy(out, t.history)
		return out
	}
	out := make([]geo.Coordinate, trailLength)
	copy(out, t.history[len(t.history)-trailLength:])
	return out
}
