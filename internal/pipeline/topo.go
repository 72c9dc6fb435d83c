package pipeline

import (
	"container/heap"
	"fmt"
)

// discovery is the set of tasks reachable from the root via child links,
// with a stable index recording the order in which BFS first saw each task.
// The index makes Fit deterministic: among simultaneously ready tasks, the
// one discovered first runs first.
type discovery struct {
	order []*Task
	index map[*Task]int
}

func discover(root *Task) *discovery {
	d := &discovery{index: make(map[*Task]int)}
	queue := []*Task{root}
	d.index[root] = 0
	d.order = append(d.order, root)
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		for _, c := range t.children {
			if _, seen := d.index[c]; seen {
				continue
			}
			d.index[c] = len(d.order)
			d.order = append(d.order, c)
			queue = append(queue, c)
		}
	}
	return d
}

// fitOrder derives a dependency-respecting execution order over the tasks
// reachable from root. It validates that every dependency of a reachable
// task is itself reachable, then runs Kahn's algorithm; if the graph cannot
// be fully ordered it locates the offending cycle and reports its path.
func fitOrder(root *Task) ([]*Task, error) {
	d := discover(root)

	for _, t := range d.order {
		for _, p := range t.parents {
			if _, ok := d.index[p]; !ok {
				return nil, fmt.Errorf("task %q depends on %q, which is not reachable from root %q: %w",
					t.name, p.name, root.name, ErrMissingDependency)
			}
		}
	}

	indeg := make(map[*Task]int, len(d.order))
	for _, t := range d.order {
		indeg[t] = len(t.parents)
	}

	ready := &taskHeap{index: d.index}
	for _, t := range d.order {
		if indeg[t] == 0 {
			heap.Push(ready, t)
		}
	}

	order := make([]*Task, 0, len(d.order))
	for ready.Len() > 0 {
		t := heap.Pop(ready).(*Task)
		order = append(order, t)
		for _, c := range t.children {
			indeg[c]--
			if indeg[c] == 0 {
				heap.Push(ready, c)
			}
		}
	}

	if len(order) != len(d.order) {
		return nil, findCycle(root)
	}
	return order, nil
}

// findCycle walks the graph depth first and extracts the path of the first
// back edge it meets. Only called once Kahn's algorithm has proven a cycle
// exists, so the walk always finds one.
func findCycle(root *Task) error {
	const (
		white = iota // not yet visited
		gray         // on the current DFS path
		black        // fully explored
	)
	color := make(map[*Task]int)
	var stack []*Task
	var path []string

	var visit func(t *Task) bool
	visit = func(t *Task) bool {
		color[t] = gray
		stack = append(stack, t)
		for _, c := range t.children {
			switch color[c] {
			case white:
				if visit(c) {
					return true
				}
			case gray:
				start := 0
				for i, s := range stack {
					if s == c {
						start = i
						break
					}
				}
				for _, s := range stack[start:] {
					path = append(path, s.name)
				}
				path = append(path, c.name)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[t] = black
		return false
	}

	if visit(root) {
		return &CycleError{Path: path}
	}
	return ErrCycle
}

// taskHeap is a min-heap over discovery index, giving Kahn's algorithm a
// deterministic tie-break among ready tasks.
type taskHeap struct {
	tasks []*Task
	index map[*Task]int
}

func (h *taskHeap) Len() int           { return len(h.tasks) }
func (h *taskHeap) Less(i, j int) bool { return h.index[h.tasks[i]] < h.index[h.tasks[j]] }
func (h *taskHeap) Swap(i, j int)      { h.tasks[i], h.tasks[j] = h.tasks[j], h.tasks[i] }

func (h *taskHeap) Push(x any) { h.tasks = append(h.tasks, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := h.tasks
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	h.tasks = old[:n-1]
	return t
}
