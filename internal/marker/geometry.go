package marker

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Point is a world coordinate. Two points are equal when all components are.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// XZ is a horizontal shape vertex; its height comes from the owning shape.
type XZ struct {
	X float64
	Z float64
}

// Geometry is one of the encodings the upstream uses for marker locations:
// SinglePoint, PointArray or ShapePolygon.
type Geometry interface {
	Points() []Point
}

// SinglePoint is a marker located at exactly one point.
type SinglePoint struct {
	Point Point
}

// Points implements Geometry.
func (g SinglePoint) Points() []Point { return []Point{g.Point} }

// PointArray is a marker spanning several points.
type PointArray []Point

// Points implements Geometry.
func (g PointArray) Points() []Point { return g }

// ShapePolygon is a flat polygon whose vertices share one height.
type ShapePolygon struct {
	Shape []XZ
	Y     float64
}

// Points implements Geometry. Each vertex (x, z) becomes (x, Y, z).
func (g ShapePolygon) Points() []Point {
	points := make([]Point, 0, len(g.Shape))
	for _, v := range g.Shape {
		points = append(points, Point{X: v.X, Y: g.Y, Z: v.Z})
	}
	return points
}

var (
	errNotPointOrArray = errors.New("expected a point object or an array of points")
	errMissingShapeY   = errors.New("shape without shapeY")
)

// absent reports whether a raw field was omitted or explicitly null.
func absent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// parsePoint decodes an {x, y, z} object. All three coordinates must be numbers.
func parsePoint(raw json.RawMessage) (Point, error) {
	var p struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
		Z *float64 `json:"z"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Point{}, fmt.Errorf("decode point: %w", err)
	}
	if p.X == nil || p.Y == nil || p.Z == nil {
		return Point{}, fmt.Errorf("point %s is missing a coordinate", bytes.TrimSpace(raw))
	}
	return Point{X: *p.X, Y: *p.Y, Z: *p.Z}, nil
}

// parsePoints decodes a field that holds either one point or an array of points.
func parsePoints(raw json.RawMessage) (Geometry, error) {
	trimmed := bytes.TrimSpace(raw)

	switch trimmed[0] {
	case '{':
		p, err := parsePoint(trimmed)
		if err != nil {
			return nil, err
		}
		return SinglePoint{Point: p}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode point array: %w", err)
		}
		points := make(PointArray, 0, len(items))
		for i, item := range items {
			p, err := parsePoint(item)
			if err != nil {
				return nil, fmt.Errorf("point %d: %w", i, err)
			}
			points = append(points, p)
		}
		return points, nil
	default:
		return nil, errNotPointOrArray
	}
}

// parseShape decodes a shape vertex list together with its shared height.
func parseShape(shape, shapeY json.RawMessage) (Geometry, error) {
	if absent(shapeY) {
		return nil, errMissingShapeY
	}

	var y float64
	if err := json.Unmarshal(shapeY, &y); err != nil {
		return nil, fmt.Errorf("decode shapeY: %w", err)
	}

	var vertices []struct {
		X *float64 `json:"x"`
		Z *float64 `json:"z"`
	}
	if err := json.Unmarshal(shape, &vertices); err != nil {
		return nil, fmt.Errorf("decode shape: %w", err)
	}

	polygon := ShapePolygon{Shape: make([]XZ, 0, len(vertices)), Y: y}
	for i, v := range vertices {
		if v.X == nil || v.Z == nil {
			return nil, fmt.Errorf("shape vertex %d is missing a coordinate", i)
		}
		polygon.Shape = append(polygon.Shape, XZ{X: *v.X, Z: *v.Z})
	}
	return polygon, nil
}
