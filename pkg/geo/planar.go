// Package geo provides the planar geometry used by point collections
package geo

import (
	"fmt"
	"math"
)

// Point is a location in a two-dimensional plane
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// String formats the point as "(x, y)"
func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Valid reports whether both coordinates are finite numbers
func (p Point) Valid() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

// Rectangle is an axis-aligned closed rectangle. A rectangle with
// MinX == MaxX or MinY == MaxY is degenerate but still matches points on it.
type Rectangle struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// Valid reports whether the bounds are finite and ordered
func (r Rectangle) Valid() bool {
	return isFinite(r.MinX) && isFinite(r.MaxX) && isFinite(r.MinY) && isFinite(r.MaxY) &&
		r.MinX <= r.MaxX && r.MinY <= r.MaxY
}

// Contains reports whether p lies inside or on the border of r
func (r Rectangle) Contains(p Point) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
