package pathfinding

import (
	"container/heap"

	"github.com/boristopalov/gridplan/pkg/core"
)

// neighbour order: up, down, left, right
var moves = [4]core.Action{core.Up, core.Down, core.Left, core.Right}

// FindPath returns a shortest 4-connected path from start to goal, both
// inclusive, or nil when goal cannot be reached. Obstacle cells are never
// entered. When start == goal the path is [start].
func FindPath(grid core.Grid, start, goal core.Position) []core.Position {
	if !grid.InBounds(start) || !grid.InBounds(goal) {
		return nil
	}
	if start == goal {
		return []core.Position{start}
	}
	if grid.Blocked(goal) {
		return nil
	}

	w := grid.Width()
	index := func(p core.Position) int { return p.Row*w + p.Col }

	cameFrom := make([]int, grid.Height()*w)
	gScore := make([]int, len(cameFrom))
	closed := make([]bool, len(cameFrom))
	for i := range cameFrom {
		cameFrom[i] = -1
		gScore[i] = -1
	}

	open := &openSet{}
	heap.Init(open)
	seq := 0
	push := func(p core.Position, g int) {
		heap.Push(open, &openItem{pos: p, g: g, f: g + p.Manhattan(goal), seq: seq})
		seq++
	}

	gScore[index(start)] = 0
	push(start, 0)

	for open.Len() > 0 {
		current := heap.Pop(open).(*openItem)
		cur := current.pos
		curIdx := index(cur)
		if closed[curIdx] {
			continue
		}
		closed[curIdx] = true

		if cur == goal {
			return reconstructPath(cameFrom, w, index(start), curIdx)
		}

		for _, a := range moves {
			n := cur.Move(a)
			if grid.Blocked(n) {
				continue
			}
			idx := index(n)
			if closed[idx] {
				continue
			}
			tentative := current.g + 1
			if gScore[idx] == -1 || tentative < gScore[idx] {
				gScore[idx] = tentative
				cameFrom[idx] = curIdx
				push(n, tentative)
			}
		}
	}

	return nil
}

func reconstructPath(cameFrom []int, w, startIdx, goalIdx int) []core.Position {
	path := make([]core.Position, 0, 16)
	for cur := goalIdx; cur != -1; cur = cameFrom[cur] {
		path = append(path, core.Position{Row: cur / w, Col: cur % w})
		if cur == startIdx {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type openItem struct {
	pos   core.Position
	f     int
	g     int
	seq   int
	index int
}

// openSet orders by f, then g, then insertion order
type openSet []*openItem

func (o openSet) Len() int { return len(o) }
func (o openSet) Less(i, j int) bool {
	if o[i].f != o[j].f {
		return o[i].f < o[j].f
	}
	if o[i].g != o[j].g {
		return o[i].g < o[j].g
	}
	return o[i].seq < o[j].seq
}
func (o openSet) Swap(i, j int) {
	o[i], o[j] = o[j], o[i]
	o[i].index = i
	o[j].index = j
}
func (o *openSet) Push(x any) {
	item := x.(*openItem)
	item.index = len(*o)
	*o = append(*o, item)
}
func (o *openSet) Pop() any {
	old := *o
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*o = old[:n-1]
	return item
}
