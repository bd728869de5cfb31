package grid

import "container/heap"

// Step costs are scaled by ten so diagonals stay integral: 10 for cardinal
// moves, 14 for diagonal (~10·√2).
const (
	costCardinal = 10
	costDiagonal = 14
)

// neighbors enumerates the 8-connected offsets.
var neighbors = [8][2]int{
	{0, -1}, {0, 1}, {-1, 0}, {1, 0},
	{-1, -1}, {1, -1}, {-1, 1}, {1, 1},
}

type node struct {
	point Point
	f     int
	seq   int // insertion order, breaks f ties FIFO
	index int
}

type openHeap []*node

func (h openHeap) Len() int { return len(h) }

func (h openHeap) Less(i, j int) bool {
	if h[i].f != h[j].f {
		return h[i].f < h[j].f
	}
	return h[i].seq < h[j].seq
}

func (h openHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *openHeap) Push(x any) {
	n := x.(*node)
	n.index = len(*h)
	*h = append(*h, n)
}

func (h *openHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return n
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// heuristic is Manhattan distance, scaled to match the step costs.
func heuristic(a, b Point) int {
	return costCardinal * (abs(a.X-b.X) + abs(a.Y-b.Y))
}

// canStep reports whether a single step from (x,y) by (dx,dy) is legal.
// Diagonal steps require both orthogonal neighbours sharing the corner to be
// walkable, so paths cannot squeeze through wall corners.
func (g *Grid) canStep(x, y, dx, dy int) bool {
	if !g.Walkable(x+dx, y+dy) {
		return false
	}
	if dx != 0 && dy != 0 {
		return g.Walkable(x+dx, y) && g.Walkable(x, y+dy)
	}
	return true
}

// FindPath runs A* over the 8-connected grid and returns the tiles strictly
// after from, ending at to. The result is empty when from equals to or when
// no route exists; callers tell those apart by comparing the endpoints.
func (g *Grid) FindPath(from, to Point) []Point {
	if from == to {
		return nil
	}
	if !g.Walkable(from.X, from.Y) || !g.Walkable(to.X, to.Y) {
		return nil
	}

	gScore := map[Point]int{from: 0}
	cameFrom := map[Point]Point{}
	closed := map[Point]bool{}

	open := &openHeap{}
	heap.Init(open)
	seq := 0
	heap.Push(open, &node{point: from, f: heuristic(from, to), seq: seq})

	for open.Len() > 0 {
		current := heap.Pop(open).(*node)
		if current.point == to {
			return reconstruct(cameFrom, from, to)
		}
		if closed[current.point] {
			continue
		}
		closed[current.point] = true

		for _, d := range neighbors {
			dx, dy := d[0], d[1]
			if !g.canStep(current.point.X, current.point.Y, dx, dy) {
				continue
			}
			next := Point{X: current.point.X + dx, Y: current.point.Y + dy}
			if closed[next] {
				continue
			}
			stepCost := costCardinal
			if dx != 0 && dy != 0 {
				stepCost = costDiagonal
			}
			tentative := gScore[current.point] + stepCost
			if known, ok := gScore[next]; ok && tentative >= known {
				continue
			}
			gScore[next] = tentative
			cameFrom[next] = current.point
			seq++
			heap.Push(open, &node{point: next, f: tentative + heuristic(next, to), seq: seq})
		}
	}
	return nil
}

// reconstruct walks the parent links back from to and reverses them, leaving
// the origin itself out of the path.
func reconstruct(cameFrom map[Point]Point, from, to Point) []Point {
	var rev []Point
	for p := to; p != from; p = cameFrom[p] {
		rev = append(rev, p)
	}
	path := make([]Point, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}
