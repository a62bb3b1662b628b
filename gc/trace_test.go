package gc

import (
	"errors"
	"io"
	"testing"
)

func checkType[T any]() error {
	return typeInfoOf[T]().err
}

type leafStruct struct {
	ID    int
	Name  string
	Tags  []string
	Attrs map[string]*[4]float64
	Next  *leafStruct
}

type funcStruct struct {
	ID int
	Fn func()
}

type handleStruct struct {
	G *Gc[int]
}

type emptyTraced struct {
	UnsafeEmptyTrace
	Fn  func()
	Out io.Writer
}

type wrapped struct {
	ID  int
	Raw UnsafeNoTrace[chan int]
}

type nestedCell struct {
	C Cell[int]
}

func TestLeafProof(t *testing.T) {
	tests := []struct {
		name  string
		check func() error
		ok    bool
	}{
		{"int", checkType[int], true},
		{"string", checkType[string], true},
		{"complex", checkType[complex128], true},
		{"recursive leaf struct", checkType[leafStruct], true},
		{"pointer to leaf struct", checkType[*leafStruct], true},
		{"handle", checkType[*Gc[int]], true},
		{"list of handles", checkType[List[*Gc[string]]], true},
		{"map of handles", checkType[Map[string, *Gc[int]]], true},
		{"cell", checkType[Cell[*Gc[int]]], true},
		{"empty trace embed", checkType[emptyTraced], true},
		{"no trace wrapper", checkType[UnsafeNoTrace[func()]], true},
		{"struct with no trace field", checkType[wrapped], true},
		{"func", checkType[func()], false},
		{"chan", checkType[chan int], false},
		{"any", checkType[any], false},
		{"io.Reader", checkType[io.Reader], false},
		{"struct with func", checkType[funcStruct], false},
		{"struct with handle", checkType[handleStruct], false},
		{"slice of handles", checkType[[]*Gc[int]], false},
		{"struct with cell", checkType[nestedCell], false},
		{"weak", checkType[*Weak[int]], true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check()
			if tt.ok && err != nil {
				t.Errorf("rejected: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrNotTraceable) {
				t.Errorf("accepted, err = %v", err)
			}
		})
	}
}

func TestNewRejectsNonTraceable(t *testing.T) {
	h := NewHeap(Config{})

	expectFatal(t, ErrNotTraceable, func() {
		NewIn(h, funcStruct{Fn: func() {}})
	})
	expectFatal(t, ErrNotTraceable, func() {
		NewCell[any](nil)
	})
	if h.Len() != 0 {
		t.Errorf("rejected value registered: Len() = %d", h.Len())
	}
}

// holder owns a list and a map of handles.
type holder struct {
	list List[*Gc[int]]
	byID Map[string, *Gc[int]]
}

func (h *holder) Trace(visit Visitor) {
	h.list.Trace(visit)
	h.byID.Trace(visit)
}

func (h *holder) Root() {
	h.list.Root()
	h.byID.Root()
}

func (h *holder) Unroot() {
	h.list.Unroot()
	h.byID.Unroot()
}

func TestContainers(t *testing.T) {
	h := NewHeap(Config{})

	one := NewIn(h, 1)
	v := holder{
		list: List[*Gc[int]]{one.Clone(), NewIn(h, 2), nil},
		byID: Map[string, *Gc[int]]{"one": one.Clone(), "three": NewIn(h, 3)},
	}
	g := NewIn(h, v)

	if one.StrongCount() != 3 || one.RootCount() != 1 {
		t.Errorf("one: strong=%d roots=%d", one.StrongCount(), one.RootCount())
	}

	var seen int
	g.Get().Trace(func(Handle) { seen++ })
	if seen != 4 {
		t.Errorf("visited %d handles, want 4", seen)
	}

	g.Drop()
	if h.Len() != 1 || one.StrongCount() != 1 {
		t.Errorf("after drop: Len=%d one.strong=%d", h.Len(), one.StrongCount())
	}
	one.Drop()
	if h.Len() != 0 {
		t.Errorf("Len() = %d", h.Len())
	}
}

func TestDropOwned(t *testing.T) {
	h := NewHeap(Config{})

	l := List[*Gc[int]]{NewIn(h, 1), NewIn(h, 2)}
	DropOwned(l)
	DropOwned(nil)

	if h.Len() != 0 {
		t.Errorf("Len() = %d after DropOwned", h.Len())
	}
	for _, g := range l {
		if !g.Dropped() {
			t.Errorf("%v not marked dropped", g)
		}
	}
}
