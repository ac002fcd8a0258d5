package mapview

import (
	"github.com/jzmtx/routeguardweb/internal/shared/geo"
)

// Map is the façade over the external map widget. Every other component
// draws through it; the widget itself executes the operations.
type Map interface {
	AddMarker(id string, at geo.Coordinate, opts MarkerOptions)
	MoveMarker(id string, at geo.Coordinate)
	RemoveMarker(id string)
	DrawPolyline(id string, path []geo.Coordinate, opts PolylineOptions)
	RemovePolyline(id string)
	SetView(center geo.Coordinate, zoom int)
	FitBounds(path []geo.Coordinate)
}

type MarkerOptions struct {
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
	Popup string `json:"popup,omitempty"`
}

type PolylineOptions struct {
	Color     string  `json:"color"`
	WeightPx  int     `json:"weight_px"`
	Opacity   float64 `json:"opacity"`
	DashArray string  `json:"dash_array,omitempty"`
}

// GradeColor maps a safety grade to its polyline color.
func GradeColor(grade string) string {
	switch grade {
	case "A":
		return "#10b981"
	case "B":
		return "#3b82f6"
	case "C":
		return "#f59e0b"
	case "D":
		return "#ef4444"
	case "F":
		return "#dc2626"
	default:
		return "#64748b"
	}
}

type Publisher interface {
	Publish(topic string, v any)
}

// Command is one map operation serialized for the widget.
type Command struct {
	Op     string           `json:"op"`
	ID     string           `json:"id,omitempty"`
	At     *geo.Coordinate  `json:"at,omitempty"`
	Path   []geo.Coordinate `json:"path,omitempty"`
	Zoom   int              `json:"zoom,omitempty"`
	Marker *MarkerOptions   `json:"marker,omitempty"`
	Line   *PolylineOptions `json:"line,omitempty"`
}

// Bridge implements Map by publishing commands on the "map" stream
// topic; the browser widget replays them.
type Bridge struct {
	pub Publisher
}

func NewBridge(pub Publisher) *Bridge {
	return &Bridge{pub: pub}
}

func (b *Bridge) AddMarker(id string, at geo.Coordinate, opts MarkerOptions) {
	b.publish(Command{Op: "add_marker", ID: id, At: &at, Marker: &opts})
}

func (b *Bridge) MoveMarker(id string, at geo.Coordinate) {
	b.publish(Command{Op: "move_marker", ID: id, At: &at})
}

func (b *Bridge) RemoveMarker(id string) {
	b.publish(Command{Op: "remove_marker", ID: id})
}

func (b *Bridge) DrawPolyline(id string, path []geo.Coordinate, opts PolylineOptions) {
	b.publish(Command{Op: "draw_polyline", ID: id, Path: path, Line: &opts})
}

func (b *Bridge) RemovePolyline(id string) {
	b.publish(Command{Op: "remove_polyline", ID: id})
}

func (b *Bridge) SetView(center geo.Coordinate, zoom int) {
	b.publish(Command{Op: "set_view", At: &center, Zoom: zoom})
}

func (b *Bridge) FitBounds(path []geo.Coordinate) {
	b.publish(Command{Op: "fit_bounds", Path: path})
}

func (b *Bridge) publish(cmd Command) {
	if b.pub == nil {
		return
	}
	b.pub.Publish("map", cmd)
}
