// Package intcoord provides the integer 2D coordinate type shared by
// every grid-indexed component of the hole-fill engine.
package intcoord

import "fmt"

// Coord is an integer (x, y) position, column-major x and row-major y,
// matching the convention used throughout raster and nnf.
type Coord struct {
	X, Y int
}

// Zero is the origin.
var Zero = Coord{0, 0}

func New(x, y int) Coord { return Coord{X: x, Y: y} }

func (c Coord) Add(o Coord) Coord { return Coord{c.X + o.X, c.Y + o.Y} }
func (c Coord) Sub(o Coord) Coord { return Coord{c.X - o.X, c.Y - o.Y} }
func (c Coord) Scale(k int) Coord { return Coord{c.X * k, c.Y * k} }

// InBounds reports whether c lies within a width×height grid.
func (c Coord) InBounds(width, height int) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < width && c.Y < height
}

// Clamp confines c to a width×height grid.
func (c Coord) Clamp(width, height int) Coord {
	x, y := c.X, c.Y
	if x < 0 {
		x = 0
	} else if x >= width {
		x = width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= height {
		y = height - 1
	}
	return Coord{x, y}
}

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// ManhattanDist is the L1 distance between two coordinates.
func ManhattanDist(a, b Coord) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}
