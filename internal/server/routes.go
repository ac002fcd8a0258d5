package server

import (
	"bytes"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jzmtx/routeguardweb/internal/geocode"
	"github.com/jzmtx/routeguardweb/internal/location"
	"github.com/jzmtx/routeguardweb/internal/media"
	"github.com/jzmtx/routeguardweb/internal/notify"
	"github.com/jzmtx/routeguardweb/internal/panel"
	"github.com/jzmtx/routeguardweb/internal/route"
	"github.com/jzmtx/routeguardweb/internal/routing"
	"github.com/jzmtx/routeguardweb/internal/shared/geo"
	"github.com/jzmtx/routeguardweb/internal/stream"
	"github.com/jzmtx/routeguardweb/internal/tracking"
	"github.com/jzmtx/routeguardweb/internal/webapp"
)

type pointRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type confirmRequest struct {
	Confirmed bool `json:"confirmed"`
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := s.app.Group("/api/v1")

	v1.Post("/location", s.handleLocationReport)

	points := v1.Group("/points")
	points.Post("/start", s.handleSetStart)
	points.Post("/start/current", s.handleUseCurrentLocation)
	points.Post("/end", s.handleSetEnd)
	points.Post("/end/search", s.handleSetEndBySearch)
	points.Get("/search", s.handleSearch)
	points.Get("/reverse", s.handleReverse)

	routes := v1.Group("/routes")
	routes.Post("/plan", s.handlePlan)
	routes.Get("/", s.handleListRoutes)
	routes.Post("/choose", s.handleChooseRoute)
	routes.Post("/clear", s.handleClearRoute)

	trackingGroup := v1.Group("/tracking")
	trackingGroup.Get("/", s.handleTrackingStatus)
	trackingGroup.Post("/stop", s.handleTrackingStop)

	sosGroup := v1.Group("/sos")
	sosGroup.Post("/countdown", s.handleSOSCountdown)
	sosGroup.Post("/cancel", s.handleSOSCancel)
	sosGroup.Post("/end", s.handleSOSEnd)
	sosGroup.Get("/", s.handleSOSStatus)
	sosGroup.Post("/media/:kind", s.handleSOSMedia)
	sosGroup.Post("/media/:kind/denied", s.handleSOSMediaDenied)

	panels := v1.Group("/panels")
	panels.Post("/show", s.handlePanelShow)
	panels.Post("/close", s.handlePanelClose)
	panels.Get("/", s.handlePanelStatus)

	v1.Get("/news", s.handleNews)
	v1.Get("/profile", s.handleProfile)
	v1.Post("/auth/logout", s.handleLogout)

	data := v1.Group("/data")
	data.Post("/sample", s.handleSampleData)
	data.Post("/csv", s.handleCSVUpload)
	v1.Get("/crime-data", s.handleCrimeData)

	stream.RegisterRoutes(s.app, s.deps.Hub)
	webapp.RegisterRoutes(s.app, s.deps.Webapp)
}

func (s *Server) handleLocationReport(c *fiber.Ctx) error {
	var sample location.Sample
	if err := c.BodyParser(&sample); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid location payload")
	}
	s.deps.Report.Submit(sample)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSetStart(c *fiber.Ctx) error {
	var req pointRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid point payload")
	}
	s.deps.Planner.SetStart(geo.Coordinate{Lat: req.Lat, Lng: req.Lng})
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSetEnd(c *fiber.Ctx) error {
	var req pointRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid point payload")
	}
	s.deps.Planner.SetEnd(geo.Coordinate{Lat: req.Lat, Lng: req.Lng})
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleUseCurrentLocation(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), s.cfg.LocationTimeout)
	defer cancel()
	fix, err := s.deps.Report.Current(ctx)
	if err != nil {
		return fiber.NewError(fiber.StatusGatewayTimeout, "no position fix available")
	}
	at := fix.Coordinate()
	s.deps.Planner.SetStart(at)

	resp := fiber.Map{"lat": at.Lat, "lng": at.Lng}
	// Best effort: the point is set either way, the address is garnish.
	if place, err := s.deps.Geocoder.Reverse(c.Context(), at); err == nil {
		resp["address"] = place.DisplayName
	}
	return c.JSON(resp)
}

func (s *Server) handleReverse(c *fiber.Ctx) error {
	at := geo.Coordinate{Lat: c.QueryFloat("lat"), Lng: c.QueryFloat("lng")}
	place, err := s.deps.Geocoder.Reverse(c.Context(), at)
	if err != nil {
		if errors.Is(err, geocode.ErrNoResults) {
			return fiber.NewError(fiber.StatusNotFound, "no address found")
		}
		return fiber.NewError(fiber.StatusBadGateway, "reverse geocoding failed")
	}
	return c.JSON(place)
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing query")
	}
	places, err := s.deps.Geocoder.Search(c.Context(), query, c.QueryInt("limit", 5))
	if err != nil {
		if errors.Is(err, geocode.ErrNoResults) {
			return c.JSON([]geocode.Place{})
		}
		return fiber.NewError(fiber.StatusBadGateway, "search failed")
	}
	return c.JSON(places)
}

func (s *Server) handleSetEndBySearch(c *fiber.Ctx) error {
	var req struct {
		Query string `json:"query"`
	}
	if err := c.BodyParser(&req); err != nil || req.Query == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing query")
	}
	places, err := s.deps.Geocoder.Search(c.Context(), req.Query, 1)
	if err != nil {
		if errors.Is(err, geocode.ErrNoResults) {
			return fiber.NewError(fiber.StatusNotFound, "no places found")
		}
		return fiber.NewError(fiber.StatusBadGateway, "search failed")
	}
	place := places[0]
	s.deps.Planner.SetEnd(place.Coordinate)
	return c.JSON(place)
}

func (s *Server) handlePlan(c *fiber.Ctx) error {
	_, err := s.deps.Planner.Plan(c.Context())
	if err != nil {
		switch {
		case errors.Is(err, route.ErrMissingEndpoints):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, routing.ErrNoRoute), errors.Is(err, route.ErrNoCandidates):
			return fiber.NewError(fiber.StatusNotFound, "no routes found")
		default:
			return fiber.NewError(fiber.StatusBadGateway, "route planning failed")
		}
	}
	s.deps.Panels.Show(panel.KindResults)
	return c.JSON(routesPayload(s.deps.Planner))
}

func (s *Server) handleListRoutes(c *fiber.Ctx) error {
	return c.JSON(routesPayload(s.deps.Planner))
}

func (s *Server) handleChooseRoute(c *fiber.Ctx) error {
	var req struct {
		Index int `json:"index"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid choice payload")
	}
	chosen, err := s.deps.Planner.Choose(req.Index)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	err = s.deps.Tracker.Start(context.Background(), tracking.Trip{
		Coordinates: chosen.Coordinates,
		Grade:       chosen.Grade,
		Score:       chosen.Score,
		RouteData:   chosen,
	})
	if err != nil {
		if errors.Is(err, tracking.ErrAlreadyTracking) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		return fiber.NewError(fiber.StatusBadGateway, "failed to start tracking")
	}
	s.deps.Panels.Show(panel.KindTracking)
	return c.JSON(chosen)
}

func (s *Server) handleClearRoute(c *fiber.Ctx) error {
	s.deps.Planner.Clear()
	if s.deps.Panels.Active() == panel.KindResults {
		s.deps.Panels.Close()
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleTrackingStatus(c *fiber.Ctx) error {
	return c.JSON(s.deps.Tracker.Snapshot())
}

func (s *Server) handleTrackingStop(c *fiber.Ctx) error {
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid stop payload")
	}
	wasActive := s.deps.Tracker.Active()
	if err := s.deps.Tracker.Stop(c.Context(), notify.Decision(req.Confirmed)); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to stop tracking")
	}
	stopped := wasActive && !s.deps.Tracker.Active()
	if stopped && s.deps.Panels.Active() == panel.KindTracking {
		s.deps.Panels.Close()
	}
	return c.JSON(fiber.Map{"stopped": stopped})
}

func (s *Server) handleSOSCountdown(c *fiber.Ctx) error {
	// The countdown outlives this request on purpose.
	if err := s.deps.SOS.BeginCountdown(context.Background()); err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleSOSCancel(c *fiber.Ctx) error {
	s.deps.SOS.CancelCountdown()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSOSEnd(c *fiber.Ctx) error {
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid end payload")
	}
	if err := s.deps.SOS.End(c.Context(), notify.Decision(req.Confirmed)); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to resolve alert")
	}
	return c.JSON(s.deps.SOS.Snapshot())
}

func (s *Server) handleSOSStatus(c *fiber.Ctx) error {
	return c.JSON(s.deps.SOS.Snapshot())
}

func (s *Server) mediaFeed(kind string) *media.Feed {
	switch kind {
	case "audio":
		return s.deps.Audio
	case "video":
		return s.deps.Video
	}
	return nil
}

func (s *Server) handleSOSMedia(c *fiber.Ctx) error {
	feed := s.mediaFeed(c.Params("kind"))
	if feed == nil {
		return fiber.NewError(fiber.StatusNotFound, "unknown media kind")
	}
	body := c.Body()
	if len(body) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty chunk")
	}
	mimeType := c.Get(fiber.HeaderContentType, "application/octet-stream")
	switch feed.Push(bytes.Clone(body), mimeType) {
	case media.PushAccepted:
		return c.SendStatus(fiber.StatusAccepted)
	case media.PushBufferFull:
		return fiber.NewError(fiber.StatusTooManyRequests, "recording buffer full")
	default:
		return fiber.NewError(fiber.StatusConflict, "no recording in progress")
	}
}

// handleSOSMediaDenied records that the shell could not get capture
// permission, so the next alert downgrades instead of waiting on a
// recorder that will never start.
func (s *Server) handleSOSMediaDenied(c *fiber.Ctx) error {
	feed := s.mediaFeed(c.Params("kind"))
	if feed == nil {
		return fiber.NewError(fiber.StatusNotFound, "unknown media kind")
	}
	feed.Deny(media.ErrPermissionDenied)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handlePanelShow(c *fiber.Ctx) error {
	var req struct {
		Panel string `json:"panel"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid panel payload")
	}
	kind := panel.Kind(req.Panel)
	if !panel.Valid(kind) {
		return fiber.NewError(fiber.StatusBadRequest, "unknown panel")
	}
	changed := s.deps.Panels.Show(kind)
	return c.JSON(fiber.Map{"changed": changed, "active": s.deps.Panels.Active()})
}

func (s *Server) handlePanelClose(c *fiber.Ctx) error {
	s.deps.Panels.Close()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handlePanelStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"active": s.deps.Panels.Active(),
		"nav":    s.deps.Panels.NavIndicator(),
	})
}

func (s *Server) handleNews(c *fiber.Ctx) error {
	items, err := s.deps.Backend.LatestNews(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "failed to load news")
	}
	alerts := 0
	for _, item := range items {
		if item.Priority == "high" || item.Priority == "critical" {
			alerts++
		}
	}
	return c.JSON(fiber.Map{"items": items, "alert_count": alerts})
}

func (s *Server) handleProfile(c *fiber.Ctx) error {
	user, err := s.deps.Backend.CurrentUser(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "failed to load profile")
	}
	return c.JSON(user)
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	if err := s.deps.Backend.Logout(c.Context()); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "logout failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleSampleData(c *fiber.Ctx) error {
	var req struct {
		Lat       float64 `json:"lat"`
		Lng       float64 `json:"lng"`
		NumPoints int     `json:"num_points"`
		RadiusKm  float64 `json:"radius_km"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid sample data payload")
	}
	result, err := s.deps.Backend.GenerateSampleData(c.Context(), req.Lat, req.Lng, req.NumPoints, req.RadiusKm)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "sample data generation failed")
	}
	return c.JSON(result)
}

func (s *Server) handleCSVUpload(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "missing csv file")
	}
	file, err := header.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable csv file")
	}
	defer file.Close()

	clearExisting := c.FormValue("clear_existing") == "true"
	result, err := s.deps.Backend.UploadCrimeCSV(c.Context(), header.Filename, file, clearExisting)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "csv import failed")
	}
	return c.JSON(result)
}

func (s *Server) handleCrimeData(c *fiber.Ctx) error {
	lat := c.QueryFloat("lat")
	lng := c.QueryFloat("lng")
	radius := c.QueryInt("radius", 5000)
	points, err := s.deps.Backend.CrimeData(c.Context(), lat, lng, radius)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "failed to load crime data")
	}
	return c.JSON(points)
}
