package callchain

import (
	"github.com/roach88/reprotrace/internal/trace"
)

// EdgeKind types a graph edge.
type EdgeKind string

const (
	// Hierarchical links a caller to a direct callee.
	Hierarchical EdgeKind = "hierarchical"

	// Causal links successive calls of one caller, or a node to itself when
	// the call repeated.
	Causal EdgeKind = "causal"
)

// Node is one completed call. Repeated calls share a node.
type Node struct {
	ID        int             `json:"id"`
	CallID    int64           `json:"call_id"`
	Name      string          `json:"name"`
	Backtrace trace.Backtrace `json:"backtrace"`
	Time      uint64          `json:"time"`
}

// Edge links two nodes. Cycle is set on causal self-loops only.
type Edge struct {
	From  int      `json:"from"`
	To    int      `json:"to"`
	Kind  EdgeKind `json:"kind"`
	Cycle int      `json:"cycle,omitempty"`
}

// CallGraph is the graph of one top-level invocation.
//
// Nodes are numbered in order of first appearance; node 0 is the root.
type CallGraph struct {
	Seq   int    `json:"seq"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Root returns the top-level invocation.
func (g *CallGraph) Root() Node {
	return g.Nodes[0]
}

// EdgesOf returns the edges of the given kind in insertion order.
func (g *CallGraph) EdgesOf(kind EdgeKind) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Cycle returns how many times node repeated back to back; 1 when it did
// not repeat.
func (g *CallGraph) Cycle(node int) int {
	for _, e := range g.Edges {
		if e.Kind == Causal && e.From == node && e.To == node {
			return e.Cycle
		}
	}
	return 1
}

// Roots returns the nodes without incoming edges, self-loops excluded.
func (g *CallGraph) Roots() []int {
	in := make([]int, len(g.Nodes))
	for _, e := range g.Edges {
		if e.From != e.To {
			in[e.To]++
		}
	}
	var roots []int
	for i, n := range in {
		if n == 0 {
			roots = append(roots, i)
		}
	}
	return roots
}

// frame is one call of the invocation being built, with its direct callees
// in order.
type frame struct {
	call     Call
	children []*frame
}

// node is a frame after repetition compression.
type node struct {
	call     Call
	cycle    int
	children []*node
}

// buildGraph turns the events of one complete invocation into a CallGraph.
// events must be well nested and start with the root's INPUTS event.
func buildGraph(seq int, events []Call) *CallGraph {
	root := &frame{call: events[0]}
	stack := []*frame{root}
	for _, c := range events[1 : len(events)-1] {
		top := stack[len(stack)-1]
		if c.Label == trace.LabelInputs {
			f := &frame{call: c}
			top.children = append(top.children, f)
			stack = append(stack, f)
			continue
		}
		stack = stack[:len(stack)-1]
	}

	g := &CallGraph{Seq: seq, Nodes: []Node{}, Edges: []Edge{}}
	top := compress([]*frame{root})
	g.add(top[0])
	return g
}

// compress collapses runs of consecutive same-origin frames into one node.
// The callees of every repetition are merged into that node.
func compress(frames []*frame) []*node {
	var out []*node
	for i := 0; i < len(frames); {
		j := i + 1
		for j < len(frames) && SameOrigin(frames[j].call, frames[i].call) {
			j++
		}
		n := &node{call: frames[i].call, cycle: j - i}
		for k, f := range frames[i:j] {
			callees := compress(f.children)
			if k == 0 {
				n.children = callees
				continue
			}
			n.children = mergeNodes(n.children, callees)
		}
		out = append(out, n)
		i = j
	}
	return out
}

// mergeNodes folds src into dst. A node of src joins the dst node at the same
// position when both share an origin, else the first dst node of that
// origin, else it is appended.
func mergeNodes(dst, src []*node) []*node {
	for i, s := range src {
		target := (*node)(nil)
		if i < len(dst) && SameOrigin(dst[i].call, s.call) {
			target = dst[i]
		} else {
			for _, d := range dst {
				if SameOrigin(d.call, s.call) {
					target = d
					break
				}
			}
		}
		if target == nil {
			dst = append(dst, s)
			continue
		}
		target.cycle = max(target.cycle, s.cycle)
		target.children = mergeNodes(target.children, s.children)
	}
	return dst
}

// add numbers n and its subtree in pre-order and records their edges.
func (g *CallGraph) add(n *node) int {
	id := len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{
		ID:        id,
		CallID:    n.call.ID,
		Name:      n.call.Name,
		Backtrace: n.call.Backtrace,
		Time:      n.call.Time,
	})
	if n.cycle > 1 {
		g.Edges = append(g.Edges, Edge{From: id, To: id, Kind: Causal, Cycle: n.cycle})
	}

	prev := -1
	var prevCall Call
	for _, child := range n.children {
		cid := g.add(child)
		g.Edges = append(g.Edges, Edge{From: id, To: cid, Kind: Hierarchical})
		if prev >= 0 && !SameOrigin(prevCall, child.call) {
			g.Edges = append(g.Edges, Edge{From: prev, To: cid, Kind: Causal})
		}
		prev, prevCall = cid, child.call
	}
	return id
}
