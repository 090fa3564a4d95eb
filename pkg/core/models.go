package core

import (
	"encoding/json"
	"fmt"
)

// Cell is the code stored in one grid position
type Cell int

const (
	Free     Cell = 0
	Obstacle Cell = 1
	Goal     Cell = 2
)

// Action is a discrete per-agent move for one tick
type Action int

const (
	Stay Action = iota
	Up
	Down
	Left
	Right
)

// NumActions is the size of the discrete action set
const NumActions = 5

// Valid reports whether a is one of the five defined action codes
func (a Action) Valid() bool {
	return a >= Stay && a <= Right
}

func (a Action) String() string {
	switch a {
	case Stay:
		return "stay"
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Position is a (row, col) grid coordinate
type Position struct {
	Row int
	Col int
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d)", p.Row, p.Col)
}

// Move returns the cell reached from p by a, ignoring bounds and obstacles
func (p Position) Move(a Action) Position {
	switch a {
	case Up:
		return Position{p.Row - 1, p.Col}
	case Down:
		return Position{p.Row + 1, p.Col}
	case Left:
		return Position{p.Row, p.Col - 1}
	case Right:
		return Position{p.Row, p.Col + 1}
	}
	return p
}

// Manhattan returns |dr| + |dc| between p and q
func (p Position) Manhattan(q Position) int {
	return abs(p.Row-q.Row) + abs(p.Col-q.Col)
}

// MarshalJSON encodes a position as [row, col], the shape planners emit
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.Row, p.Col})
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var rc [2]int
	if err := json.Unmarshal(data, &rc); err != nil {
		return fmt.Errorf("position must be [row, col]: %w", err)
	}
	p.Row, p.Col = rc[0], rc[1]
	return nil
}

// Grid is a row-major H x W array of cell codes
type Grid struct {
	height int
	width  int
	cells  []Cell
}

// NewGrid returns an all-free grid
func NewGrid(height, width int) Grid {
	if height < 0 {
		height = 0
	}
	if width < 0 {
		width = 0
	}
	return Grid{
		height: height,
		width:  width,
		cells:  make([]Cell, height*width),
	}
}

// ParseGrid builds a grid from rows of '.', '#' and 'G' characters
func ParseGrid(rows ...string) (Grid, error) {
	if len(rows) == 0 {
		return Grid{}, fmt.Errorf("empty grid")
	}
	g := NewGrid(len(rows), len(rows[0]))
	for r, line := range rows {
		if len(line) != g.width {
			return Grid{}, fmt.Errorf("row %d has width %d, want %d", r, len(line), g.width)
		}
		for c, ch := range line {
			switch ch {
			case '.':
			case '#':
				g.Set(Position{r, c}, Obstacle)
			case 'G':
				g.Set(Position{r, c}, Goal)
			default:
				return Grid{}, fmt.Errorf("unknown cell %q at (%d, %d)", ch, r, c)
			}
		}
	}
	return g, nil
}

func (g Grid) Height() int { return g.height }
func (g Grid) Width() int  { return g.width }

// InBounds reports whether p lies inside the grid
func (g Grid) InBounds(p Position) bool {
	return p.Row >= 0 && p.Row < g.height && p.Col >= 0 && p.Col < g.width
}

// At returns the code at p; positions outside the grid read as Obstacle
func (g Grid) At(p Position) Cell {
	if !g.InBounds(p) {
		return Obstacle
	}
	return g.cells[p.Row*g.width+p.Col]
}

// Set writes c at p. Out-of-bounds writes are ignored.
func (g Grid) Set(p Position, c Cell) {
	if !g.InBounds(p) {
		return
	}
	g.cells[p.Row*g.width+p.Col] = c
}

// Blocked reports whether p is outside the grid or an obstacle
func (g Grid) Blocked(p Position) bool {
	return g.At(p) == Obstacle
}

// Count returns how many cells hold c
func (g Grid) Count(c Cell) int {
	n := 0
	for _, v := range g.cells {
		if v == c {
			n++
		}
	}
	return n
}

// Clone returns a deep copy
func (g Grid) Clone() Grid {
	cells := make([]Cell, len(g.cells))
	copy(cells, g.cells)
	return Grid{height: g.height, width: g.width, cells: cells}
}

// Subgoal is a planner assignment of a target cell to one agent
type Subgoal struct {
	AgentID  string   `json:"agent_id"`
	GoalType string   `json:"goal_type"`
	Target   Position `json:"target"`
}

// Snapshot is a read-only copy of the simulation state for renderers and planners
type Snapshot struct {
	Grid     Grid
	Goal     Position
	AgentIDs []string // stable agent order
	Agents   map[string]Position
	Step     int
	MaxSteps int
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
