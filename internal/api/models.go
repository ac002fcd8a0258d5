package api

import "time"

type StartTrackingRequest struct {
	StartLat    float64 `json:"start_lat"`
	StartLng    float64 `json:"start_lng"`
	EndLat      float64 `json:"end_lat"`
	EndLng      float64 `json:"end_lng"`
	RouteData   any     `json:"route_data"`
	SafetyScore int     `json:"safety_score"`
}

type EndTrackingResult struct {
	DurationMinutes int     `json:"duration_minutes"`
	DistanceKm      float64 `json:"distance_km"`
}

// RouteGeometry is one candidate sent for scoring: coordinates as
// [lat, lng] pairs, distance in km, duration in minutes.
type RouteGeometry struct {
	Coordinates [][2]float64 `json:"coordinates"`
	Distance    float64      `json:"distance"`
	Duration    float64      `json:"duration"`
}

type ScoredRoute struct {
	Score           int     `json:"score"`
	Grade           string  `json:"grade"`
	RiskLevel       string  `json:"risk_level"`
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes float64 `json:"duration_minutes"`
	CrimeCount      int     `json:"crime_count"`
	SafetyZoneCount int     `json:"safety_zone_count"`
	Details         string  `json:"details"`
}

type ScoreResult struct {
	Routes           []ScoredRoute `json:"routes"`
	RecommendedIndex int           `json:"recommended_index"`
	AIExplanation    string        `json:"ai_explanation"`
}

type Officer struct {
	Name    string `json:"name"`
	Badge   string `json:"badge"`
	Station string `json:"station"`
	Phone   string `json:"phone"`
}

type Station struct {
	Name     string `json:"name"`
	Distance string `json:"distance"`
}

type EmergencyContact struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// SOSDispatch is the alert-creation response. BackupMode is set when no
// responder is within range; the contact list then replaces the officer.
type SOSDispatch struct {
	AlertID           string             `json:"alert_id"`
	Officer           *Officer           `json:"officer"`
	BackupMode        bool               `json:"backup_mode"`
	NearestStation    *Station           `json:"nearest_station"`
	EmergencyContacts []EmergencyContact `json:"emergency_contacts"`
	Message           string             `json:"message"`
}

type NewsItem struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Priority string `json:"priority"`
	Date     string `json:"date"`
	Author   string `json:"author"`
	ImageURL string `json:"image_url"`
}

type User struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
}

type SampleDataResult struct {
	Success       bool   `json:"success"`
	CrimesCreated int    `json:"crimes_created"`
	Message       string `json:"message"`
}

type CSVImportResult struct {
	Success  bool     `json:"success"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

type CrimePoint struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lon"`
	Type       string    `json:"type"`
	Severity   int       `json:"severity"`
	OccurredAt time.Time `json:"occurred_at"`
	IsSample   bool      `json:"is_sample"`
}
