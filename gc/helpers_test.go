package gc

import (
	"errors"
	"testing"
)

// tracker records hook calls in order.
type tracker struct {
	events []string
}

func (t *tracker) add(e string) {
	t.events = append(t.events, e)
}

func (t *tracker) count(e string) int {
	n := 0
	for _, ev := range t.events {
		if ev == e {
			n++
		}
	}
	return n
}

// node is a singly linked node whose link can form cycles.
type node struct {
	name string
	next Cell[*Gc[node]]
	tr   *tracker
}

func (n *node) Trace(visit Visitor) { n.next.Trace(visit) }
func (n *node) Root()               { n.next.Root() }
func (n *node) Unroot()             { n.next.Unroot() }

func (n *node) Finalize() {
	if n.tr != nil {
		n.tr.add("finalize:" + n.name)
	}
}

func (n *node) Dispose() {
	if n.tr != nil {
		n.tr.add("dispose:" + n.name)
	}
}

// newNode allocates a node pointing at next (moved in, may be nil).
func newNode(h *Heap, name string, next *Gc[node], tr *tracker) *Gc[node] {
	return NewIn(h, node{name: name, next: NewCell(next), tr: tr})
}

// setNext replaces n's link with next (moved in) and drops the old link.
func setNext(t *testing.T, n *Gc[node], next *Gc[node]) {
	t.Helper()
	if err := n.Get().next.Write(func(p **Gc[node]) {
		(*p).Drop()
		*p = next
	}); err != nil {
		t.Fatalf("setNext: %v", err)
	}
}

// ring builds n nodes linked in a cycle and returns rooted handles to them.
func ring(t *testing.T, h *Heap, tr *tracker, names ...string) []*Gc[node] {
	t.Helper()

	nodes := make([]*Gc[node], len(names))
	for i, name := range names {
		var prev *Gc[node]
		if i > 0 {
			prev = nodes[i-1].Clone()
		}
		nodes[i] = newNode(h, name, prev, tr)
	}
	setNext(t, nodes[0], nodes[len(nodes)-1].Clone())
	return nodes
}

// expectFatal runs fn and checks it panics with a *FatalError wrapping want.
func expectFatal(t *testing.T, want error, fn func()) {
	t.Helper()

	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("expected panic with %v, got none", want)
		}
		fe, ok := r.(*FatalError)
		if !ok {
			t.Fatalf("expected *FatalError, got %T: %v", r, r)
		}
		if !errors.Is(fe, want) {
			t.Fatalf("expected %v, got %v", want, fe)
		}
	}()

	fn()
}
