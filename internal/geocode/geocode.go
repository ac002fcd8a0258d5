package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jzmtx/routeguardweb/internal/shared/geo"
)

// ErrNoResults means the query matched nothing. Callers surface it as a
// neutral notice, not an error.
var ErrNoResults = errors.New("no matching places")

type Place struct {
	Coordinate  geo.Coordinate `json:"coordinate"`
	DisplayName string         `json:"display_name"`
}

// Client is a Nominatim place-search and reverse-geocoding client.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Nominatim returns coordinates as strings.
type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	if limit <= 0 {
		limit = 5
	}
	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("addressdetails", "1")

	var raw []nominatimPlace
	if err := c.get(ctx, "/search", q, &raw); err != nil {
		return nil, fmt.Errorf("place search: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoResults
	}

	places := make([]Place, 0, len(raw))
	for _, p := range raw {
		place, err := p.toPlace()
		if err != nil {
			continue
		}
		places = append(places, place)
	}
	if len(places) == 0 {
		return nil, ErrNoResults
	}
	return places, nil
}

func (c *Client) Reverse(ctx context.Context, at geo.Coordinate) (Place, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(at.Lng, 'f', -1, 64))

	var raw nominatimPlace
	if err := c.get(ctx, "/reverse", q, &raw); err != nil {
		return Place{}, fmt.Errorf("reverse geocode: %w", err)
	}
	if raw.DisplayName == "" {
		return Place{}, ErrNoResults
	}
	return raw.toPlace()
}

func (p nominatimPlace) toPlace() (Place, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return Place{}, err
	}
	lng, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return Place{}, err
	}
	return Place{
		Coordinate:  geo.Coordinate{Lat: lat, Lng: lng},
		DisplayName: p.DisplayName,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	// Nominatim's usage policy requires an identifying agent.
	req.Header.Set("User-Agent", "RouteGuard/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
