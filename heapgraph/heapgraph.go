// Package heapgraph captures the live values of a gc.Heap as a directed
// graph for leak analysis.
//
// A snapshot answers the questions that matter when memory is not coming
// back: which values form cycles, which are held only by other values, and
// which would be reclaimed by the next collection. Snapshots can be
// rendered with Graphviz through MarshalDOT.
//
// Usage:
//
//	g := heapgraph.Capture(heap)
//	for _, cycle := range g.Cycles() {
//		fmt.Println(cycle)
//	}
package heapgraph

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/kolkov/rcgc/gc"
)

// Node is a live value in a snapshot.
type Node struct {
	gc.Object
}

// ID implements graph.Node.
func (n *Node) ID() int64 { return int64(n.Object.ID) }

// DOTID implements dot.Node.
func (n *Node) DOTID() string { return "v" + strconv.FormatUint(n.Object.ID, 10) }

// Attributes implements encoding.Attributer. Rooted values are drawn bold.
func (n *Node) Attributes() []encoding.Attribute {
	attrs := []encoding.Attribute{
		{Key: "label", Value: n.label()},
	}
	if n.Roots > 0 {
		attrs = append(attrs, encoding.Attribute{Key: "style", Value: "bold"})
	}
	return attrs
}

func (n *Node) label() string {
	return fmt.Sprintf("#%d %s\nstrong=%d roots=%d", n.Object.ID, n.Type, n.Strong, n.Roots)
}

func (n *Node) String() string {
	return fmt.Sprintf("#%d(%s)", n.Object.ID, n.Type)
}

// Graph is a snapshot of a heap.
type Graph struct {
	g     *simple.DirectedGraph
	nodes []*Node // by id
	byID  map[uint64]*Node

	// selfLoops holds values that own a handle to themselves. The gonum
	// simple graph cannot store self edges.
	selfLoops map[uint64]bool
}

// Capture snapshots h. Capture must run on the heap's goroutine and must
// not be called from a Trace, Finalize or Dispose hook.
func Capture(h *gc.Heap) *Graph {
	g := &Graph{
		g:         simple.NewDirectedGraph(),
		byID:      make(map[uint64]*Node),
		selfLoops: make(map[uint64]bool),
	}

	var edges [][2]uint64
	h.Walk(func(obj gc.Object) {
		n := &Node{Object: obj}
		g.nodes = append(g.nodes, n)
		g.byID[obj.ID] = n
		g.g.AddNode(n)

		for _, child := range obj.Children {
			edges = append(edges, [2]uint64{obj.ID, child})
		}
	})

	for _, e := range edges {
		if e[0] == e[1] {
			g.selfLoops[e[0]] = true
			continue
		}
		from, to := g.byID[e[0]], g.byID[e[1]]
		if from == nil || to == nil {
			continue
		}
		g.g.SetEdge(g.g.NewEdge(from, to))
	}

	return g
}

// Len returns the number of values in the snapshot.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns the values ordered by id.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Node returns the value with the given id, or nil.
func (g *Graph) Node(id uint64) *Node { return g.byID[id] }

// Directed exposes the snapshot to gonum graph algorithms.
func (g *Graph) Directed() graph.Directed { return g.g }

// HasSelfLoop reports whether the value owns a handle to itself.
func (g *Graph) HasSelfLoop(id uint64) bool { return g.selfLoops[id] }

// Cycles returns every strongly connected component that contains a cycle:
// two or more values, or one value owning itself. Members are ordered by id
// and components by their first member.
func (g *Graph) Cycles() [][]*Node {
	var out [][]*Node
	for _, scc := range topo.TarjanSCC(g.g) {
		if len(scc) == 1 && !g.selfLoops[uint64(scc[0].ID())] {
			continue
		}

		comp := make([]*Node, len(scc))
		for i, n := range scc {
			comp[i] = n.(*Node)
		}
		sortNodes(comp)
		out = append(out, comp)
	}

	slices.SortFunc(out, func(a, b []*Node) int {
		return cmp.Compare(a[0].Object.ID, b[0].Object.ID)
	})
	return out
}

// Unrooted returns the values held only by other values, ordered by id.
func (g *Graph) Unrooted() []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Roots == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Garbage returns the values unreachable from any rooted value, ordered by
// id. The next collection reclaims them unless a finalizer resurrects them.
func (g *Graph) Garbage() []*Node {
	var bf traverse.BreadthFirst
	for _, n := range g.nodes {
		if n.Roots > 0 && !bf.Visited(n) {
			bf.Walk(g.g, n, nil)
		}
	}

	var out []*Node
	for _, n := range g.nodes {
		if !bf.Visited(n) {
			out = append(out, n)
		}
	}
	return out
}

// MarshalDOT renders the snapshot in Graphviz DOT format.
func (g *Graph) MarshalDOT(name string) ([]byte, error) {
	b, err := dot.Marshal(g.g, name, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("heapgraph: marshal dot: %w", err)
	}
	if len(g.selfLoops) == 0 {
		return b, nil
	}

	// Append the self edges the simple graph could not hold.
	ids := make([]uint64, 0, len(g.selfLoops))
	for id := range g.selfLoops {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	b = b[:bytes.LastIndexByte(b, '}')]
	for _, id := range ids {
		n := g.byID[id]
		b = fmt.Appendf(b, "  %s -> %s;\n", n.DOTID(), n.DOTID())
	}
	return append(b, '}'), nil
}

func sortNodes(ns []*Node) {
	slices.SortFunc(ns, func(a, b *Node) int {
		return cmp.Compare(a.Object.ID, b.Object.ID)
	})
}
