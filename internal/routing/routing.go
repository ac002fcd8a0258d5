package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jzmtx/routeguardweb/internal/shared/geo"
)

// ErrNoRoute means the router found no way between the endpoints.
var ErrNoRoute = errors.New("no route between endpoints")

// Path is one routing alternative with full geometry.
type Path struct {
	Coordinates     []geo.Coordinate
	DistanceKm      float64
	DurationMinutes float64
}

// Client requests walking routes with alternatives from an OSRM server.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

func (c *Client) Routes(ctx context.Context, start, end geo.Coordinate) ([]Path, error) {
	// OSRM takes lng,lat pairs.
	target := fmt.Sprintf("%s/route/v1/foot/%s,%s;%s,%s?alternatives=true&geometries=geojson&overview=full",
		c.baseURL,
		coord(start.Lng), coord(start.Lat),
		coord(end.Lng), coord(end.Lat))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("route decode: %w", err)
	}
	if body.Code != "Ok" {
		return nil, fmt.Errorf("router rejected request: %s", body.Code)
	}
	if len(body.Routes) == 0 {
		return nil, ErrNoRoute
	}

	paths := make([]Path, 0, len(body.Routes))
	for _, r := range body.Routes {
		path := Path{
			Coordinates:     make([]geo.Coordinate, 0, len(r.Geometry.Coordinates)),
			DistanceKm:      r.Distance / 1000,
			DurationMinutes: r.Duration / 60,
		}
		for _, pair := range r.Geometry.Coordinates {
			if len(pair) < 2 {
				continue
			}
			path.Coordinates = append(path.Coordinates, geo.Coordinate{Lat: pair[1], Lng: pair[0]})
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
