package gc

import (
	"fmt"

	"github.com/kolkov/rcgc/internal/gc/collector"
)

// Gc is an owning handle to a managed value of type T.
//
// A handle is either a root (held by ordinary Go code) or owned by another
// managed value. Handles returned by New, Clone and Upgrade are roots; moving
// a handle into a value passed to New, or storing it through a cell guard,
// turns it into an owned handle.
//
// Every handle must be released exactly once with Drop. Copying the pointer
// does not create a new owner: use Clone.
//
// All methods treat a nil *Gc as an absent optional child: Trace, Root,
// Unroot and Drop do nothing. Drop also ignores a zero Gc left by a failed
// decode.
type Gc[T any] struct {
	rec     *collector.Record
	box     *box[T]
	rooted  bool
	dropped bool
}

// New allocates v on the default heap and returns a rooted handle to it.
//
// Handles inside v stop being roots. The allocation may run a collection
// before New returns.
//
// New panics with ErrNotTraceable if T neither implements Traceable nor is
// provably free of handles, and with ErrReentrant when called from a Trace,
// Finalize or Dispose hook.
//
// Example:
//
//	type Node struct {
//		Name string
//		Next gc.Cell[*gc.Gc[Node]]
//	}
//
//	a := gc.New(Node{Name: "a"})
//	defer a.Drop()
func New[T any](v T) *Gc[T] {
	return NewIn(DefaultHeap(), v)
}

// NewIn is New on an explicit heap.
func NewIn[T any](h *Heap, v T) *Gc[T] {
	info := mustTraceable[T]("new")

	b := &box[T]{value: v, name: info.name}
	rec := h.c.Register(b, info.size)

	// Registration may collect. The moved-in handles stay roots until the
	// new record, itself a root, can reach them.
	if t := asTraceable(&b.value); t != nil {
		t.Unroot()
	}
	return &Gc[T]{rec: rec, box: b, rooted: true}
}

func (g *Gc[T]) record() *collector.Record {
	if g == nil {
		return nil
	}
	return g.rec
}

func (g *Gc[T]) checkLive(op string) {
	if g == nil || g.dropped || !g.rec.Live() {
		collector.Fatal(op, g.record(), ErrUseAfterFree)
	}
}

// Get returns the managed value. Mutate it only through Cell fields.
//
// Get panics with ErrUseAfterFree on a dropped handle and with ErrSweeping
// while a Dispose hook of the same heap runs.
func (g *Gc[T]) Get() *T {
	if g != nil && g.rec.Owner().TearingDown() {
		collector.Fatal("get", g.rec, ErrSweeping)
	}
	g.checkLive("get")
	return &g.box.value
}

// Clone returns a new rooted handle to the same value.
func (g *Gc[T]) Clone() *Gc[T] {
	g.checkLive("clone")
	g.rec.Owner().Retain(g.rec)
	return &Gc[T]{rec: g.rec, box: g.box, rooted: true}
}

// Drop releases the handle. If it was the last owner the value is
// finalized, disposed and its own handles are dropped before Drop returns.
// Dropping twice panics with ErrUseAfterFree.
func (g *Gc[T]) Drop() {
	if g == nil || g.rec == nil {
		return
	}
	if g.dropped {
		collector.Fatal("drop", g.rec, ErrUseAfterFree)
	}

	g.rec.Owner().Release(g.rec, g.rooted)
	g.dropped = true
	g.rooted = false
}

// Trace visits the handle itself.
func (g *Gc[T]) Trace(visit Visitor) {
	if g != nil {
		visit(g)
	}
}

// Root marks the handle as held outside the managed graph.
func (g *Gc[T]) Root() {
	if g == nil {
		return
	}
	if g.dropped {
		collector.Fatal("root", g.rec, ErrUseAfterFree)
	}
	if g.rooted {
		collector.Fatal("root", g.rec, ErrRootState)
	}
	g.rec.AddRoot()
	g.rooted = true
}

// Unroot marks the handle as owned by a managed value.
func (g *Gc[T]) Unroot() {
	if g == nil {
		return
	}
	if g.dropped {
		collector.Fatal("unroot", g.rec, ErrUseAfterFree)
	}
	if !g.rooted {
		collector.Fatal("unroot", g.rec, ErrRootState)
	}
	g.rec.RemoveRoot()
	g.rooted = false
}

func (g *Gc[T]) target() (*collector.Record, bool) {
	if g == nil {
		return nil, false
	}
	if g.dropped {
		return nil, true
	}
	return g.rec, true
}

// Ptr returns the address of the managed value without any liveness check.
// Two handles share a value iff their Ptr results are equal.
func (g *Gc[T]) Ptr() *T {
	if g == nil {
		return nil
	}
	return &g.box.value
}

// PtrEq reports whether a and b refer to the same value.
func PtrEq[T any](a, b *Gc[T]) bool {
	return a.Ptr() == b.Ptr()
}

// Downgrade returns a weak handle to the value.
func (g *Gc[T]) Downgrade() *Weak[T] {
	g.checkLive("downgrade")
	return &Weak[T]{rec: g.rec, box: g.box}
}

// StrongCount returns the number of owning handles to the value.
func (g *Gc[T]) StrongCount() int {
	if g == nil {
		return 0
	}
	return g.rec.Strong()
}

// RootCount returns the number of rooted handles to the value.
func (g *Gc[T]) RootCount() int {
	if g == nil {
		return 0
	}
	return g.rec.Roots()
}

// IsRooted reports whether this handle is a root.
func (g *Gc[T]) IsRooted() bool {
	return g != nil && g.rooted
}

// Dropped reports whether Drop was called on this handle.
func (g *Gc[T]) Dropped() bool {
	return g != nil && g.dropped
}

func (g *Gc[T]) String() string {
	if g == nil {
		return "Gc(nil)"
	}
	return fmt.Sprintf("Gc[%s]#%d(strong=%d roots=%d %s)",
		g.box.name, g.rec.ID(), g.rec.Strong(), g.rec.Roots(), g.rec.State())
}
