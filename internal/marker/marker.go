// Package marker turns the upstream lands marker feed into canonical markers.
//
// The upstream record is untrusted: it carries an HTML "detail" and its location
// in one or more of three encodings ("position", "shape"+"shapeY", "positions").
// Decode parses every encoding into a Geometry variant, concatenates their
// points in that order, removes duplicates and strips markup from the detail.
//
// A record without a detail or without any point is dropped. A record that
// cannot be parsed is skipped. Neither ever fails the batch.
package marker

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// RootKey is the plugin namespace the map provider nests its markers under.
const RootKey = "me.angeschossen.lands"

// ErrMissingRoot is returned when the payload has no RootKey.markers container.
var ErrMissingRoot = errors.New("payload has no " + RootKey + " markers")

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Marker is the canonical form of an upstream marker.
type Marker struct {
	Detail    string  `json:"detail"`
	Positions []Point `json:"positions"`
}

// Set maps upstream marker ids to canonical markers.
type Set map[string]Marker

// Stats counts what happened to the records of one payload.
type Stats struct {
	Total   int
	Emitted int
	// Dropped records lacked a detail or any position.
	Dropped int
	// Skipped records were malformed.
	Skipped int
}

type rawRecord struct {
	Detail    json.RawMessage `json:"detail"`
	Position  json.RawMessage `json:"position"`
	Shape     json.RawMessage `json:"shape"`
	ShapeY    json.RawMessage `json:"shapeY"`
	Positions json.RawMessage `json:"positions"`
}

// Normalize converts a raw map payload into a Set. It never fails; a payload
// without the expected root yields an empty Set.
func Normalize(raw json.RawMessage) Set {
	set, _, _ := Decode(raw)
	return set
}

// Decode converts a raw map payload into a Set and reports per-record stats.
// The returned Set is never nil, even when err is ErrMissingRoot.
func Decode(raw json.RawMessage) (Set, Stats, error) {
	set := Set{}
	var stats Stats

	markers, err := extractMarkers(raw)
	if err != nil {
		return set, stats, err
	}

	for id, record := range markers {
		stats.Total++

		m, ok, err := normalizeRecord(record)
		switch {
		case err != nil:
			stats.Skipped++
		case !ok:
			stats.Dropped++
		default:
			set[id] = m
			stats.Emitted++
		}
	}

	return set, stats, nil
}

func extractMarkers(raw json.RawMessage) (map[string]json.RawMessage, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingRoot, err)
	}

	lands, ok := root[RootKey]
	if !ok || absent(lands) {
		return nil, ErrMissingRoot
	}

	var container struct {
		Markers map[string]json.RawMessage `json:"markers"`
	}
	if err := json.Unmarshal(lands, &container); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingRoot, err)
	}
	if container.Markers == nil {
		return nil, ErrMissingRoot
	}

	return container.Markers, nil
}

// normalizeRecord returns the canonical marker, whether it should be emitted,
// and an error when the record is malformed.
func normalizeRecord(raw json.RawMessage) (Marker, bool, error) {
	var rec rawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Marker{}, false, fmt.Errorf("decode record: %w", err)
	}

	if absent(rec.Detail) {
		return Marker{}, false, nil
	}

	geometries, err := rec.geometries()
	if err != nil {
		return Marker{}, false, err
	}

	positions := dedupe(geometries)
	if len(positions) == 0 {
		return Marker{}, false, nil
	}

	detail, err := detailText(rec.Detail)
	if err != nil {
		return Marker{}, false, err
	}
	detail = strings.TrimSpace(StripHTML(detail))
	if detail == "" {
		return Marker{}, false, nil
	}

	return Marker{Detail: detail, Positions: positions}, true, nil
}

// geometries parses the location fields in precedence order.
func (r rawRecord) geometries() ([]Geometry, error) {
	var out []Geometry

	if !absent(r.Position) {
		g, err := parsePoints(r.Position)
		if err != nil {
			return nil, fmt.Errorf("position: %w", err)
		}
		out = append(out, g)
	}

	if !absent(r.Shape) {
		g, err := parseShape(r.Shape, r.ShapeY)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}

	if !absent(r.Positions) {
		g, err := parsePoints(r.Positions)
		if err != nil {
			return nil, fmt.Errorf("positions: %w", err)
		}
		out = append(out, g)
	}

	return out, nil
}

// dedupe concatenates the points of all geometries, keeping the first occurrence.
func dedupe(geometries []Geometry) []Point {
	var points []Point
	seen := make(map[Point]struct{})

	for _, g := range geometries {
		for _, p := range g.Points() {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			points = append(points, p)
		}
	}
	return points
}

// detailText returns the detail as text. Non-string values use their JSON form.
func detailText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("decode detail: %w", err)
		}
		return s, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", fmt.Errorf("decode detail: %w", err)
	}
	return buf.String(), nil
}

// StripHTML removes every <...> tag. Entities are left untouched.
func StripHTML(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}
