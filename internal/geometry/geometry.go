// Package geometry holds the value objects used to describe the physical
// layout of the wall: points, axis-aligned rectangles and the polygon that
// outlines the whole display surface.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrTooFewPoints = errors.New("polygon needs at least three points")
	ErrNotSimple    = errors.New("polygon edges intersect")
	ErrEmptyRect    = errors.New("rectangle has no area")
)

// Point is a position in wall pixel space.
type Point struct {
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`
	W float64 `json:"w" toml:"width"`
	H float64 `json:"h" toml:"height"`
}

// Serialize renders the rectangle as "x,y,w,h". The result is stable and is
// used to derive network topic names.
func (r Rect) Serialize() string {
	parts := []string{
		strconv.FormatFloat(r.X, 'f', -1, 64),
		strconv.FormatFloat(r.Y, 'f', -1, 64),
		strconv.FormatFloat(r.W, 'f', -1, 64),
		strconv.FormatFloat(r.H, 'f', -1, 64),
	}
	return strings.Join(parts, ",")
}

func (r Rect) String() string {
	return r.Serialize()
}

// Validate reports whether the rectangle has a positive area.
func (r Rect) Validate() error {
	if r.W <= 0 || r.H <= 0 {
		return fmt.Errorf("%w: %s", ErrEmptyRect, r.Serialize())
	}
	return nil
}

// Contains reports whether p lies inside or on the edge of r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Intersects reports whether two rectangles overlap with a non-zero area.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Polygon is an immutable outline with precomputed extents.
type Polygon struct {
	points  []Point
	extents Rect
}

// NewPolygon copies the given points and computes their bounding box.
func NewPolygon(points []Point) Polygon {
	pts := make([]Point, len(points))
	copy(pts, points)
	return Polygon{points: pts, extents: bounds(pts)}
}

// Points returns a copy of the outline.
func (p Polygon) Points() []Point {
	out := make([]Point, len(p.points))
	copy(out, p.points)
	return out
}

// Extents is the bounding box of the outline.
func (p Polygon) Extents() Rect {
	return p.extents
}

// Len is the number of vertices.
func (p Polygon) Len() int {
	return len(p.points)
}

// Local returns the polygon translated so that its extents start at (0,0).
func (p Polygon) Local() Polygon {
	return p.Translate(-p.extents.X, -p.extents.Y)
}

// Translate shifts every vertex by (dx, dy).
func (p Polygon) Translate(dx, dy float64) Polygon {
	pts := make([]Point, len(p.points))
	for i, pt := range p.points {
		pts[i] = Point{X: pt.X + dx, Y: pt.Y + dy}
	}
	return NewPolygon(pts)
}

// Equal compares vertices in order.
func (p Polygon) Equal(o Polygon) bool {
	if len(p.points) != len(o.points) {
		return false
	}
	for i := range p.points {
		if p.points[i] != o.points[i] {
			return false
		}
	}
	return true
}

// Validate checks that the outline is a simple polygon: at least three
// vertices and no two non-adjacent edges crossing.
func (p Polygon) Validate() error {
	n := len(p.points)
	if n < 3 {
		return fmt.Errorf("%w: got %d", ErrTooFewPoints, n)
	}
	for i := range n {
		a1, a2 := p.points[i], p.points[(i+1)%n]
		for j := i + 1; j < n; j++ {
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := p.points[j], p.points[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return fmt.Errorf("%w: edge %d and edge %d", ErrNotSimple, i, j)
			}
		}
	}
	return nil
}

func (p Polygon) String() string {
	parts := make([]string, len(p.points))
	for i, pt := range p.points {
		parts[i] = pt.String()
	}
	return strings.Join(parts, " ")
}

func bounds(pts []Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pt := range pts {
		minX = math.Min(minX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxX = math.Max(maxX, pt.X)
		maxY = math.Max(maxY, pt.Y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

func orientation(a, b, c Point) int {
	v := (b.Y-a.Y)*(c.X-b.X) - (b.X-a.X)*(c.Y-b.Y)
	switch {
	case v > 0:
		return 1
	case v < 0:
		return 2
	default:
		return 0
	}
}

func onSegment(a, b, c Point) bool {
	return b.X <= math.Max(a.X, c.X) && b.X >= math.Min(a.X, c.X) &&
		b.Y <= math.Max(a.Y, c.Y) && b.Y >= math.Min(a.Y, c.Y)
}

func segmentsIntersect(p1, q1, p2, q2 Point) bool {
	o1 := orientation(p1, q1, p2)
	o2 := orientation(p1, q1, q2)
	o3 := orientation(p2, q2, p1)
	o4 := orientation(p2, q2, q1)

	if o1 != o2 && o3 != o4 {
		return true
	}
	switch {
	case o1 == 0 && onSegment(p1, p2, q1):
		return true
	case o2 == 0 && onSegment(p1, q2, q1):
		return true
	case o3 == 0 && onSegment(p2, p1, q2):
		return true
	case o4 == 0 && onSegment(p2, q1, q2):
		return true
	}
	return false
}
