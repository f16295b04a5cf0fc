package model

import (
	"fmt"
	"math"
)

// Cell is an integer map coordinate on the ground plane.
type Cell struct {
	X int `json:"x" yaml:"x"`
	Z int `json:"z" yaml:"z"`
}

// Cardinals lists the four neighbour offsets in a fixed order (N, S, E, W).
var Cardinals = [4]Cell{{X: 0, Z: 1}, {X: 0, Z: -1}, {X: 1, Z: 0}, {X: -1, Z: 0}}

func (c Cell) Add(d Cell) Cell { return Cell{X: c.X + d.X, Z: c.Z + d.Z} }

// Center is the continuous position of the middle of the cell.
func (c Cell) Center() Point { return Point{X: float64(c.X) + 0.5, Z: float64(c.Z) + 0.5} }

func (c Cell) Manhattan(o Cell) int {
	dx := c.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dz := c.Z - o.Z
	if dz < 0 {
		dz = -dz
	}
	return dx + dz
}

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Z) }

// Point is a continuous map position, e.g. the operator cursor.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Z float64 `json:"z" yaml:"z"`
}

// Cell returns the cell containing p.
func (p Point) Cell() Cell {
	return Cell{X: int(math.Floor(p.X)), Z: int(math.Floor(p.Z))}
}

func (p Point) Dist(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Z-o.Z)
}

// Rect is an inclusive cell rectangle.
type Rect struct {
	MinX int `json:"min_x" yaml:"min_x"`
	MinZ int `json:"min_z" yaml:"min_z"`
	MaxX int `json:"max_x" yaml:"max_x"`
	MaxZ int `json:"max_z" yaml:"max_z"`
}

func (r Rect) Contains(c Cell) bool {
	return c.X >= r.MinX && c.X <= r.MaxX && c.Z >= r.MinZ && c.Z <= r.MaxZ
}
