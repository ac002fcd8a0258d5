package route

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jzmtx/routeguardweb/internal/api"
	"github.com/jzmtx/routeguardweb/internal/mapview"
	"github.com/jzmtx/routeguardweb/internal/notify"
	"github.com/jzmtx/routeguardweb/internal/routing"
	"github.com/jzmtx/routeguardweb/internal/shared/geo"
)

var (
	ErrMissingEndpoints = errors.New("both start and end points are required")
	ErrNoCandidates     = errors.New("no routes calculated yet")
	ErrBadIndex         = errors.New("no such route")
)

// Candidate is one scored route option.
type Candidate struct {
	Coordinates     []geo.Coordinate `json:"coordinates"`
	DistanceKm      float64          `json:"distance_km"`
	DurationMinutes float64          `json:"duration_minutes"`
	Score           int              `json:"score"`
	Grade           string           `json:"grade"`
	CrimeCount      int              `json:"crime_count"`
	SafetyZoneCount int              `json:"safety_zone_count"`
	Details         string           `json:"details"`
	Recommended     bool             `json:"recommended"`
}

type Router interface {
	Routes(ctx context.Context, start, end geo.Coordinate) ([]routing.Path, error)
}

type Scorer interface {
	ScoreRoutes(ctx context.Context, routes []api.RouteGeometry, now time.Time) (api.ScoreResult, error)
}

// Planner owns endpoint selection and the candidate list for one trip.
type Planner struct {
	router Router
	scorer Scorer
	mapv   mapview.Map
	notes  notify.Notifier

	mu          sync.Mutex
	start       *geo.Coordinate
	end         *geo.Coordinate
	candidates  []Candidate
	recommended int
	explanation string
}

func NewPlanner(router Router, scorer Scorer, mapv mapview.Map, notes notify.Notifier) *Planner {
	return &Planner{router: router, scorer: scorer, mapv: mapv, notes: notes}
}

func (p *Planner) SetStart(at geo.Coordinate) {
	p.mu.Lock()
	p.start = &at
	p.mu.Unlock()

	p.mapv.RemoveMarker("start")
	p.mapv.AddMarker("start", at, mapview.MarkerOptions{Icon: "walk", Color: "#667eea", Popup: "Start Location"})
}

func (p *Planner) SetEnd(at geo.Coordinate) {
	p.mu.Lock()
	p.end = &at
	p.mu.Unlock()

	p.mapv.RemoveMarker("end")
	p.mapv.AddMarker("end", at, mapview.MarkerOptions{Icon: "target", Color: "#10b981", Popup: "Destination"})
}

func (p *Planner) Endpoints() (start, end geo.Coordinate, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.start == nil || p.end == nil {
		return geo.Coordinate{}, geo.Coordinate{}, false
	}
	return *p.start, *p.end, true
}

// Plan fetches routing alternatives, scores them, and draws each
// candidate colored by its safety grade. The precondition failure is
// reported before any network call.
func (p *Planner) Plan(ctx context.Context) ([]Candidate, error) {
	start, end, ok := p.Endpoints()
	if !ok {
		p.notes.Warning("Please set both start and end points")
		return nil, ErrMissingEndpoints
	}

	paths, err := p.router.Routes(ctx, start, end)
	if err != nil {
		if errors.Is(err, routing.ErrNoRoute) {
			p.notes.Warning("No routes found between these points")
		} else {
			p.notes.Error("Failed to calculate routes")
		}
		return nil, err
	}

	geometries := make([]api.RouteGeometry, len(paths))
	for i, path := range paths {
		coords := make([][2]float64, len(path.Coordinates))
		for j, c := range path.Coordinates {
			coords[j] = [2]float64{c.Lat, c.Lng}
		}
		geometries[i] = api.RouteGeometry{
			Coordinates: coords,
			Distance:    path.DistanceKm,
			Duration:    path.DurationMinutes,
		}
	}

	result, err := p.scorer.ScoreRoutes(ctx, geometries, time.Now())
	if err != nil {
		p.notes.Error("Failed to calculate safety scores")
		return nil, fmt.Errorf("score routes: %w", err)
	}
	if len(result.Routes) == 0 {
		p.notes.Warning("No routes found between these points")
		return nil, ErrNoCandidates
	}

	candidates := make([]Candidate, 0, len(result.Routes))
	for i, scored := range result.Routes {
		var coords []geo.Coordinate
		if i < len(paths) {
			coords = paths[i].Coordinates
		}
		candidates = append(candidates, Candidate{
			Coordinates:     coords,
			DistanceKm:      scored.DistanceKm,
			DurationMinutes: scored.DurationMinutes,
			Score:           scored.Score,
			Grade:           scored.Grade,
			CrimeCount:      scored.CrimeCount,
			SafetyZoneCount: scored.SafetyZoneCount,
			Details:         scored.Details,
			Recommended:     i == result.RecommendedIndex,
		})
	}

	p.mu.Lock()
	p.clearPolylinesLocked()
	p.candidates = candidates
	p.recommended = result.RecommendedIndex
	p.explanation = result.AIExplanation
	p.mu.Unlock()

	for i, c := range candidates {
		p.mapv.DrawPolyline(polylineID(i), c.Coordinates, mapview.PolylineOptions{
			Color:    mapview.GradeColor(c.Grade),
			WeightPx: 6,
			Opacity:  0.7,
		})
	}
	if result.RecommendedIndex < len(candidates) {
		p.mapv.FitBounds(candidates[result.RecommendedIndex].Coordinates)
	}

	p.notes.Success("Routes calculated successfully!")
	return candidates, nil
}

// Choose promotes candidate index to the chosen route.
func (p *Planner) Choose(index int) (Candidate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}
	if index < 0 || index >= len(p.candidates) {
		return Candidate{}, ErrBadIndex
	}
	return p.candidates[index], nil
}

func (p *Planner) Candidates() []Candidate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Candidate, len(p.candidates))
	copy(out, p.candidates)
	return out
}

func (p *Planner) RecommendedIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recommended
}

func (p *Planner) Explanation() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.explanation
}

// Clear resets endpoints and candidates and removes every planning
// layer from the map.
func (p *Planner) Clear() {
	p.mu.Lock()
	p.start = nil
	p.end = nil
	p.clearPolylinesLocked()
	p.candidates = nil
	p.recommended = 0
	p.explanation = ""
	p.mu.Unlock()

	p.mapv.RemoveMarker("start")
	p.mapv.RemoveMarker("end")
	p.notes.Info("Route cleared")
}

func (p *Planner) clearPolylinesLocked() {
	for i := range p.candidates {
		p.mapv.RemovePolyline(polylineID(i))
	}
}

func polylineID(i int) string {
	return fmt.Sprintf("route-%d", i)
}
