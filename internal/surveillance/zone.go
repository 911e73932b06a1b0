// Package surveillance tracks people spatially and raises rate-limited
// alerts for zone intrusion, rapid movement, loitering and falls.
package surveillance

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/visiontrack/visiontrack/internal/alert"
	"github.com/visiontrack/visiontrack/internal/geom"
)

// Zone is a static restricted polygon region.
type Zone struct {
	ID        string       `json:"zone_id"`
	Name      string       `json:"name"`
	Points    []geom.Point `json:"-"`
	AlertType alert.Type   `json:"alert_type"`
	Enabled   bool         `json:"enabled"`
}

// zoneWire is the on-disk zone record, with points as [x,y] pairs.
type zoneWire struct {
	ID        string       `json:"zone_id"`
	Name      string       `json:"name"`
	Points    [][2]float64 `json:"points"`
	AlertType alert.Type   `json:"alert_type"`
	Enabled   bool         `json:"enabled"`
}

func (z Zone) toWire() zoneWire {
	w := zoneWire{
		ID:        z.ID,
		Name:      z.Name,
		AlertType: z.AlertType,
		Enabled:   z.Enabled,
	}
	for _, p := range z.Points {
		w.Points = append(w.Points, [2]float64{p.X, p.Y})
	}
	return w
}

func (w zoneWire) toZone() Zone {
	z := Zone{
		ID:        w.ID,
		Name:      w.Name,
		AlertType: w.AlertType,
		Enabled:   w.Enabled,
	}
	for _, p := range w.Points {
		z.Points = append(z.Points, geom.Point{X: p[0], Y: p[1]})
	}
	return z
}

// MarshalJSON emits the wire shape with [x,y] point pairs.
func (z Zone) MarshalJSON() ([]byte, error) {
	return json.Marshal(z.toWire())
}

// UnmarshalJSON parses the wire shape.
func (z *Zone) UnmarshalJSON(data []byte) error {
	var w zoneWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*z = w.toZone()
	return nil
}

// Contains reports whether p is inside the zone polygon, boundary
// inclusive, using even-odd ray casting.
func (z Zone) Contains(p geom.Point) bool {
	n := len(z.Points)
	if n < 3 {
		return false
	}

	for i := 0; i < n; i++ {
		if onSegment(z.Points[i], z.Points[(i+1)%n], p) {
			return true
		}
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := z.Points[i], z.Points[j]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y) + a.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// onSegment reports whether p lies on the segment ab.
func onSegment(a, b, p geom.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if cross > 1e-9 || cross < -1e-9 {
		return false
	}
	if p.X < min(a.X, b.X) || p.X > max(a.X, b.X) {
		return false
	}
	if p.Y < min(a.Y, b.Y) || p.Y > max(a.Y, b.Y) {
		return false
	}
	return true
}

// DefaultZones returns the demo restricted zone used when no zone file is
// configured.
func DefaultZones() []Zone {
	return []Zone{
		{
			ID:   "zone-1",
			Name: "Restricted Area",
			Points: []geom.Point{
				{X: 50, Y: 50},
				{X: 200, Y: 50},
				{X: 200, Y: 150},
				{X: 50, Y: 150},
			},
			AlertType: alert.TypeZoneEntry,
			Enabled:   true,
		},
	}
}

// LoadZones reads zone records from a JSON file. A missing file yields the
// default zones rather than an error.
func LoadZones(path string) ([]Zone, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultZones(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read zone file: %w", err)
	}
	var zones []Zone
	if err := json.Unmarshal(data, &zones); err != nil {
		return nil, fmt.Errorf("failed to parse zone file %s: %w", path, err)
	}
	for _, z := range zones {
		if len(z.Points) < 3 {
			return nil, fmt.Errorf("zone %q has %d points, need at least 3", z.ID, len(z.Points))
		}
	}
	return zones, nil
}

// SaveZones writes zone records to a JSON file.
func SaveZones(path string, zones []Zone) error {
	data, err := json.MarshalIndent(zones, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode zones: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write zone file: %w", err)
	}
	return nil
}
