package gc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWeakPairFollowsKey(t *testing.T) {
	h := NewHeap(Config{})
	tr := &tracker{}

	key := newNode(h, "key", nil, tr)
	value := newNode(h, "value", nil, tr)
	pair := NewIn(h, NewWeakPair(key, value))
	defer pair.Drop()

	h.Collect()
	got, ok := pair.Get().Value()
	if !ok || got.name != "value" {
		t.Fatalf("Value() = %v, %v while key is live", got, ok)
	}
	if len(tr.events) != 0 {
		t.Fatalf("events while key is live: %v", tr.events)
	}

	key.Drop()
	if _, ok := pair.Get().Value(); ok {
		t.Error("Value() reported after key was reclaimed")
	}

	h.Collect()
	want := []string{"finalize:key", "dispose:key", "finalize:value", "dispose:value"}
	if diff := cmp.Diff(want, tr.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if h.Len() != 1 {
		t.Errorf("Len() = %d, want only the pair", h.Len())
	}
}

func TestWeakPairValueRefersToKey(t *testing.T) {
	h := NewHeap(Config{})
	tr := &tracker{}

	key := newNode(h, "key", nil, tr)
	value := newNode(h, "value", key.Clone(), tr)
	pair := NewIn(h, NewWeakPair(key, value))
	defer pair.Drop()

	key.Drop()
	if !pair.Get().Key().Alive() {
		t.Fatal("key reclaimed while the value owns it")
	}

	h.Collect()
	if pair.Get().Key().Alive() {
		t.Error("value kept its own key alive")
	}
	want := []string{"finalize:key", "finalize:value", "dispose:key", "dispose:value"}
	if diff := cmp.Diff(want, tr.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestWeakPairOutsideHeapRootsValue(t *testing.T) {
	h := NewHeap(Config{})
	tr := &tracker{}

	key := newNode(h, "key", nil, tr)
	pair := NewWeakPair(key, newNode(h, "value", nil, tr))

	key.Drop()
	h.Collect()
	if _, ok := pair.Value(); ok {
		t.Error("Value() reported after key was reclaimed")
	}
	if diff := cmp.Diff([]string{"finalize:key", "dispose:key"}, tr.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	pair.Drop()
	if h.Len() != 0 {
		t.Errorf("Len() = %d after dropping the pair", h.Len())
	}
}

// index maps keys to values through a cell of pairs.
type index struct {
	pairs Cell[List[*WeakPair[node, node]]]
}

func (x *index) Trace(visit Visitor) { x.pairs.Trace(visit) }
func (x *index) Root()               { x.pairs.Root() }
func (x *index) Unroot()             { x.pairs.Unroot() }

func TestWeakPairInCell(t *testing.T) {
	h := NewHeap(Config{})
	tr := &tracker{}

	idx := NewIn(h, index{pairs: NewCell[List[*WeakPair[node, node]]](nil)})
	defer idx.Drop()

	k1 := newNode(h, "k1", nil, tr)
	defer k1.Drop()
	k2 := newNode(h, "k2", nil, tr)

	if err := idx.Get().pairs.Write(func(l *List[*WeakPair[node, node]]) {
		p1 := NewWeakPair(k1, newNode(h, "v1", nil, tr))
		p2 := NewWeakPair(k2, newNode(h, "v2", nil, tr))
		*l = append(*l, &p1, &p2)
	}); err != nil {
		t.Fatal(err)
	}

	k2.Drop()
	h.Collect()

	want := []string{"finalize:k2", "dispose:k2", "finalize:v2", "dispose:v2"}
	if diff := cmp.Diff(want, tr.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	var live []string
	if err := idx.Get().pairs.Read(func(l *List[*WeakPair[node, node]]) {
		for _, p := range *l {
			if v, ok := p.Value(); ok {
				live = append(live, v.name)
			}
		}
	}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"v1"}, live); diff != "" {
		t.Errorf("live values mismatch (-want +got):\n%s", diff)
	}

	// Replacing the value of a pair whose key is still live.
	if err := idx.Get().pairs.Write(func(l *List[*WeakPair[node, node]]) {
		(*l)[0].SetValue(newNode(h, "v1b", nil, tr))
	}); err != nil {
		t.Fatal(err)
	}
	if got := tr.events[len(tr.events)-2:]; !cmp.Equal(got, []string{"finalize:v1", "dispose:v1"}) {
		t.Errorf("old value not released: %v", got)
	}
	h.Collect()
	if err := idx.Get().pairs.Read(func(l *List[*WeakPair[node, node]]) {
		if got, ok := (*l)[0].Value(); !ok || got.name != "v1b" {
			t.Errorf("Value() = %v, %v after SetValue", got, ok)
		}
	}); err != nil {
		t.Fatal(err)
	}
}
