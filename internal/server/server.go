package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jzmtx/routeguardweb/internal/api"
	"github.com/jzmtx/routeguardweb/internal/config"
	"github.com/jzmtx/routeguardweb/internal/geocode"
	"github.com/jzmtx/routeguardweb/internal/location"
	"github.com/jzmtx/routeguardweb/internal/mapview"
	"github.com/jzmtx/routeguardweb/internal/media"
	"github.com/jzmtx/routeguardweb/internal/panel"
	"github.com/jzmtx/routeguardweb/internal/route"
	"github.com/jzmtx/routeguardweb/internal/sos"
	"github.com/jzmtx/routeguardweb/internal/stream"
	"github.com/jzmtx/routeguardweb/internal/tracking"
	"github.com/jzmtx/routeguardweb/internal/webapp"
)

// Deps holds the assembled engine the bridge exposes over HTTP.
type Deps struct {
	Hub      *stream.Hub
	Planner  *route.Planner
	Tracker  *tracking.Tracker
	SOS      *sos.Session
	Panels   *panel.Machine
	Backend  *api.Client
	Geocoder *geocode.Client
	Mapview  mapview.Map
	Report   *location.Report
	Audio    *media.Feed
	Video    *media.Feed
	Webapp   *webapp.Service
	Logger   *slog.Logger
}

type Server struct {
	app  *fiber.App
	cfg  config.Config
	deps Deps
}

func New(cfg config.Config, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "routeguard-bridge",
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{app: app, cfg: cfg, deps: deps}
	s.wirePanelHooks()
	s.registerRoutes()
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.ServerPort)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// wirePanelHooks refreshes panel content when a panel opens: results
// republishes the candidate list, tracking replays the stats snapshot,
// profile pushes the signed-in account.
func (s *Server) wirePanelHooks() {
	s.deps.Panels.OnEnter(panel.KindResults, func() {
		s.deps.Hub.Publish("routes", routesPayload(s.deps.Planner))
	})
	s.deps.Panels.OnEnter(panel.KindTracking, func() {
		// Re-entering the panel rebuilds the map view for the running
		// session: the chosen route first, then the latest position.
		if trip, ok := s.deps.Tracker.ActiveTrip(); ok {
			s.deps.Mapview.DrawPolyline("tracking-route", trip.Coordinates, mapview.PolylineOptions{
				Color:    mapview.GradeColor(trip.Grade),
				WeightPx: 6,
				Opacity:  0.8,
			})
			if fix, ok := s.deps.Tracker.LastFix(); ok {
				s.deps.Mapview.SetView(fix, 15)
			}
		}
		s.deps.Hub.Publish("tracking", s.deps.Tracker.Snapshot())
	})
	s.deps.Panels.OnEnter(panel.KindProfile, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		user, err := s.deps.Backend.CurrentUser(ctx)
		if err != nil {
			s.deps.Logger.Warn("profile load failed", "error", err)
			return
		}
		s.deps.Hub.Publish("profile", user)
	})
}

func routesPayload(p *route.Planner) fiber.Map {
	return fiber.Map{
		"routes":            p.Candidates(),
		"recommended_index": p.RecommendedIndex(),
		"ai_explanation":    p.Explanation(),
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
