// Package arenamask tracks which sectors of the projected arena are showing
// live projector content, so shot detection can ignore motion the projector
// itself is drawing.
package arenamask

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// Sector identifies one cell of a Grid. Valid is false for positions that fall
// outside the grid bounds.
type Sector struct {
	Row   int  `json:"row"`
	Col   int  `json:"col"`
	Valid bool `json:"valid"`
}

func (s Sector) String() string {
	if !s.Valid {
		return "sector(none)"
	}
	return fmt.Sprintf("sector(%d,%d)", s.Row, s.Col)
}

// Grid partitions a rectangle into Rows x Cols sectors with integer pixel
// edges. Column c spans [Min.X + c*Dx/Cols, Min.X + (c+1)*Dx/Cols).
type Grid struct {
	Rows   int
	Cols   int
	Bounds image.Rectangle

	colEdges []int
	rowEdges []int
}

// NewGrid builds a grid over bounds. Rows and cols below one are clamped to one.
func NewGrid(rows, cols int, bounds image.Rectangle) Grid {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	g := Grid{Rows: rows, Cols: cols, Bounds: bounds.Canon()}
	g.colEdges = edges(g.Bounds.Min.X, g.Bounds.Dx(), cols)
	g.rowEdges = edges(g.Bounds.Min.Y, g.Bounds.Dy(), rows)
	return g
}

func edges(origin, span, n int) []int {
	e := make([]int, n+1)
	for i := 0; i <= n; i++ {
		e[i] = origin + i*span/n
	}
	return e
}

// Len returns the number of sectors.
func (g Grid) Len() int { return g.Rows * g.Cols }

// Empty reports whether the grid covers no pixels.
func (g Grid) Empty() bool { return g.Bounds.Empty() }

// SectorAt returns the sector containing the point (x, y).
func (g Grid) SectorAt(x, y float64) Sector {
	if g.Empty() || g.colEdges == nil {
		return Sector{}
	}
	px := int(math.Floor(x))
	py := int(math.Floor(y))
	if !image.Pt(px, py).In(g.Bounds) {
		return Sector{}
	}
	col := sort.SearchInts(g.colEdges, px+1) - 1
	row := sort.SearchInts(g.rowEdges, py+1) - 1
	return Sector{Row: row, Col: col, Valid: true}
}

// SectorBounds returns the pixel rectangle of the given sector.
func (g Grid) SectorBounds(row, col int) image.Rectangle {
	if row < 0 || row >= g.Rows || col < 0 || col >= g.Cols || g.colEdges == nil {
		return image.Rectangle{}
	}
	return image.Rect(g.colEdges[col], g.rowEdges[row], g.colEdges[col+1], g.rowEdges[row+1])
}

// Index returns the row-major index of s, or -1 when s is not in the grid.
func (g Grid) Index(s Sector) int {
	if !s.Valid || s.Row < 0 || s.Row >= g.Rows || s.Col < 0 || s.Col >= g.Cols {
		return -1
	}
	return s.Row*g.Cols + s.Col
}
