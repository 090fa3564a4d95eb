package pathfinding

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boristopalov/gridplan/pkg/core"
)

// bfsDistance is the brute-force reference: number of moves, or -1
func bfsDistance(grid core.Grid, start, goal core.Position) int {
	if grid.Blocked(start) && start != goal {
		return -1
	}
	dist := map[core.Position]int{start: 0}
	queue := []core.Position{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == goal {
			return dist[cur]
		}
		for _, a := range moves {
			n := cur.Move(a)
			if grid.Blocked(n) {
				continue
			}
			if _, seen := dist[n]; seen {
				continue
			}
			dist[n] = dist[cur] + 1
			queue = append(queue, n)
		}
	}
	return -1
}

func assertValidPath(t *testing.T, grid core.Grid, path []core.Position, start, goal core.Position) {
	t.Helper()
	require.NotEmpty(t, path)
	assert.Equal(t, start, path[0])
	assert.Equal(t, goal, path[len(path)-1])
	for i, p := range path {
		assert.False(t, grid.Blocked(p), "path cell %v is blocked", p)
		if i > 0 {
			assert.Equal(t, 1, path[i-1].Manhattan(p), "step %v -> %v is not cardinal", path[i-1], p)
		}
	}
}

func TestFindPathOpenGrid(t *testing.T) {
	grid := core.NewGrid(5, 5)
	start, goal := core.Position{Row: 0, Col: 0}, core.Position{Row: 4, Col: 4}

	path := FindPath(grid, start, goal)

	assert.Len(t, path, 9)
	assertValidPath(t, grid, path, start, goal)
}

func TestFindPathStartIsGoal(t *testing.T) {
	grid := core.NewGrid(3, 3)
	p := core.Position{Row: 1, Col: 1}

	assert.Equal(t, []core.Position{p}, FindPath(grid, p, p))
}

func TestFindPathUnreachable(t *testing.T) {
	t.Run("goal walled off", func(t *testing.T) {
		grid, err := core.ParseGrid(
			".....",
			"..###",
			"..#G#",
			"..###",
			".....",
		)
		require.NoError(t, err)

		assert.Empty(t, FindPath(grid, core.Position{Row: 0, Col: 0}, core.Position{Row: 2, Col: 3}))
	})

	t.Run("goal is an obstacle", func(t *testing.T) {
		grid, err := core.ParseGrid("..#")
		require.NoError(t, err)

		assert.Empty(t, FindPath(grid, core.Position{Row: 0, Col: 0}, core.Position{Row: 0, Col: 2}))
	})

	t.Run("out of bounds target", func(t *testing.T) {
		grid := core.NewGrid(3, 3)

		assert.Empty(t, FindPath(grid, core.Position{Row: 0, Col: 0}, core.Position{Row: 7, Col: -1}))
	})
}

func TestFindPathAroundWall(t *testing.T) {
	grid, err := core.ParseGrid(
		".#...",
		".#.#.",
		".#.#.",
		"...#G",
	)
	require.NoError(t, err)
	start, goal := core.Position{Row: 0, Col: 0}, core.Position{Row: 3, Col: 4}

	path := FindPath(grid, start, goal)

	assertValidPath(t, grid, path, start, goal)
	assert.Equal(t, bfsDistance(grid, start, goal)+1, len(path))
}

func TestFindPathDeterministic(t *testing.T) {
	grid := core.NewGrid(6, 6)
	start, goal := core.Position{Row: 5, Col: 0}, core.Position{Row: 0, Col: 5}

	first := FindPath(grid, start, goal)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, FindPath(grid, start, goal))
	}
}

func TestFindPathMatchesBFS(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 300; trial++ {
		h, w := 2+rng.Intn(7), 2+rng.Intn(7)
		grid := core.NewGrid(h, w)
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				if rng.Float64() < 0.3 {
					grid.Set(core.Position{Row: r, Col: c}, core.Obstacle)
				}
			}
		}
		start := core.Position{Row: rng.Intn(h), Col: rng.Intn(w)}
		goal := core.Position{Row: rng.Intn(h), Col: rng.Intn(w)}
		grid.Set(start, core.Free)

		want := bfsDistance(grid, start, goal)
		path := FindPath(grid, start, goal)
		if want < 0 {
			assert.Empty(t, path, "trial %d: expected no path from %v to %v", trial, start, goal)
			continue
		}
		assertValidPath(t, grid, path, start, goal)
		assert.Equal(t, want+1, len(path), "trial %d: path %v is not shortest", trial, path)
	}
}
