package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/jzmtx/routeguardweb/internal/location"
)

const csrfCookieName = "csrftoken"

// Client talks to the RouteGuard backend. It keeps the session cookie
// jar and sends the CSRF token header on every state-changing call.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Jar:     jar,
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) StartTracking(ctx context.Context, req StartTrackingRequest) (string, error) {
	var resp struct {
		TravelID string `json:"travel_id"`
	}
	if err := c.postJSON(ctx, "/api/tracking/start/", req, &resp); err != nil {
		return "", fmt.Errorf("start tracking: %w", err)
	}
	return resp.TravelID, nil
}

func (c *Client) UpdateTracking(ctx context.Context, travelID string, s location.Sample) error {
	body := struct {
		TravelID  string    `json:"travel_id"`
		Lat       float64   `json:"lat"`
		Lng       float64   `json:"lng"`
		Accuracy  float64   `json:"accuracy"`
		Speed     *float64  `json:"speed"`
		Heading   *float64  `json:"heading"`
		Timestamp time.Time `json:"timestamp"`
	}{travelID, s.Lat, s.Lng, s.AccuracyM, s.SpeedMps, s.HeadingDeg, s.Timestamp}
	return c.postJSON(ctx, "/api/tracking/update/", body, nil)
}

func (c *Client) EndTracking(ctx context.Context, travelID string, endTime time.Time, distanceKm float64) (EndTrackingResult, error) {
	body := struct {
		TravelID   string    `json:"travel_id"`
		EndTime    time.Time `json:"end_time"`
		DistanceKm float64   `json:"distance_km"`
	}{travelID, endTime, distanceKm}
	var result EndTrackingResult
	if err := c.postJSON(ctx, "/api/tracking/end/", body, &result); err != nil {
		return EndTrackingResult{}, fmt.Errorf("end tracking: %w", err)
	}
	return result, nil
}

func (c *Client) ScoreRoutes(ctx context.Context, routes []RouteGeometry, now time.Time) (ScoreResult, error) {
	body := struct {
		Routes      []RouteGeometry `json:"routes"`
		CurrentTime time.Time       `json:"current_time"`
	}{routes, now}
	var result ScoreResult
	if err := c.postJSON(ctx, "/api/calculate-route/", body, &result); err != nil {
		return ScoreResult{}, fmt.Errorf("score routes: %w", err)
	}
	return result, nil
}

func (c *Client) TriggerSOS(ctx context.Context, lat, lng float64, at time.Time) (SOSDispatch, error) {
	body := struct {
		Latitude  float64   `json:"latitude"`
		Longitude float64   `json:"longitude"`
		Timestamp time.Time `json:"timestamp"`
	}{lat, lng, at}
	var dispatch SOSDispatch
	if err := c.postJSON(ctx, "/api/sos/trigger/", body, &dispatch); err != nil {
		return SOSDispatch{}, fmt.Errorf("trigger sos: %w", err)
	}
	return dispatch, nil
}

func (c *Client) UpdateSOSLocation(ctx context.Context, alertID string, s location.Sample) error {
	body := struct {
		AlertID   string    `json:"alert_id"`
		Latitude  float64   `json:"latitude"`
		Longitude float64   `json:"longitude"`
		Accuracy  float64   `json:"accuracy"`
		Speed     *float64  `json:"speed"`
		Heading   *float64  `json:"heading"`
		Timestamp time.Time `json:"timestamp"`
	}{alertID, s.Lat, s.Lng, s.AccuracyM, s.SpeedMps, s.HeadingDeg, s.Timestamp}
	return c.postJSON(ctx, "/api/sos/update-location/", body, nil)
}

func (c *Client) AddSOSMedia(ctx context.Context, alertID, mediaURL, mediaType string) error {
	body := struct {
		AlertID   string `json:"alert_id"`
		MediaURL  string `json:"media_url"`
		MediaType string `json:"media_type"`
	}{alertID, mediaURL, mediaType}
	return c.postJSON(ctx, "/api/sos/add-media/", body, nil)
}

func (c *Client) ResolveSOS(ctx context.Context, alertID, resolvedBy string) error {
	body := struct {
		AlertID    string `json:"alert_id"`
		ResolvedBy string `json:"resolved_by"`
	}{alertID, resolvedBy}
	return c.postJSON(ctx, "/api/sos/resolve/", body, nil)
}

func (c *Client) LatestNews(ctx context.Context) ([]NewsItem, error) {
	var resp struct {
		Success bool       `json:"success"`
		News    []NewsItem `json:"news"`
	}
	if err := c.getJSON(ctx, "/api/news/latest/", nil, &resp); err != nil {
		return nil, fmt.Errorf("latest news: %w", err)
	}
	return resp.News, nil
}

func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var user User
	if err := c.getJSON(ctx, "/api/auth/user/", nil, &user); err != nil {
		return User{}, fmt.Errorf("current user: %w", err)
	}
	return user, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, "/auth/logout/", nil, nil)
}

func (c *Client) GenerateSampleData(ctx context.Context, lat, lng float64, numPoints int, radiusKm float64) (SampleDataResult, error) {
	body := struct {
		Lat       float64 `json:"lat"`
		Lon       float64 `json:"lon"`
		NumPoints int     `json:"num_points"`
		RadiusKm  float64 `json:"radius_km"`
	}{lat, lng, numPoints, radiusKm}
	var result SampleDataResult
	if err := c.postJSON(ctx, "/api/generate-sample-data/", body, &result); err != nil {
		return SampleDataResult{}, fmt.Errorf("generate sample data: %w", err)
	}
	return result, nil
}

func (c *Client) UploadCrimeCSV(ctx context.Context, filename string, csv io.Reader, clearExisting bool) (CSVImportResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("csv_file", filename)
	if err != nil {
		return CSVImportResult{}, err
	}
	if _, err := io.Copy(part, csv); err != nil {
		return CSVImportResult{}, err
	}
	if err := mw.WriteField("clear_existing", strconv.FormatBool(clearExisting)); err != nil {
		return CSVImportResult{}, err
	}
	if err := mw.Close(); err != nil {
		return CSVImportResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload-csv/", &buf)
	if err != nil {
		return CSVImportResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setCSRF(req)

	var result CSVImportResult
	if err := c.do(req, &result); err != nil {
		return CSVImportResult{}, fmt.Errorf("upload csv: %w", err)
	}
	return result, nil
}

func (c *Client) CrimeData(ctx context.Context, lat, lng float64, radiusM int) ([]CrimePoint, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(radiusM))

	var resp struct {
		Crimes []CrimePoint `json:"crimes"`
		Count  int          `json:"count"`
	}
	if err := c.getJSON(ctx, "/api/get-crime-data/", q, &resp); err != nil {
		return nil, fmt.Errorf("crime data: %w", err)
	}
	return resp.Crimes, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setCSRF(req)
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setCSRF(req *http.Request) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return
	}
	for _, cookie := range c.http.Jar.Cookies(base) {
		if cookie.Name == csrfCookieName {
			req.Header.Set("X-CSRFToken", cookie.Value)
			return
		}
	}
}
