package gc

import (
	"sync/atomic"

	"github.com/kolkov/rcgc/internal/gc/collector"
)

// BorrowState is the borrow state of a Cell.
type BorrowState uint8

const (
	Unused BorrowState = iota
	Reading
	Writing
)

func (s BorrowState) String() string {
	switch s {
	case Unused:
		return "unused"
	case Reading:
		return "reading"
	case Writing:
		return "writing"
	default:
		return "unknown"
	}
}

// Cell provides checked interior mutability for managed values.
//
// Any number of shared borrows or one exclusive borrow may be active. A
// conflicting borrow fails with a *BorrowError and leaves the cell as it
// was.
//
// A cell on the Go stack is a root. Once the cell is moved into a managed
// value its content is owned by that value. While exclusively borrowed the
// content is rooted again and the enclosing value is pinned: it counts as a
// root and is not freed even if its last handle is dropped, so nothing the
// caller is holding can be reclaimed during the mutation. Releasing the
// guard hands the new content back to the graph. A value whose last handle
// went away while pinned is reclaimed by the next collection.
//
// A Cell must not be copied after first use.
type Cell[T any] struct {
	readers  int
	writing  bool
	pinned   bool
	unrooted bool
	value    T
}

// pinnedCells counts exclusively borrowed cells inside managed values, in
// every heap. While it is zero no record needs to be checked for pins.
var pinnedCells atomic.Int64

// cellPin is visited in place of the content of a pinned cell.
type cellPin struct{}

func (p cellPin) Trace(visit Visitor) { visit(p) }
func (cellPin) Root()                 {}
func (cellPin) Unroot()               {}
func (cellPin) Drop()                 {}

func (cellPin) target() (*collector.Record, bool) { return nil, false }

// NewCell returns a rooted cell holding v. It panics with ErrNotTraceable if
// T neither implements Traceable nor is provably free of handles.
func NewCell[T any](v T) Cell[T] {
	mustTraceable[T]("new cell")
	return Cell[T]{value: v}
}

// BorrowState returns the current borrow state.
func (c *Cell[T]) BorrowState() BorrowState {
	switch {
	case c.writing:
		return Writing
	case c.readers > 0:
		return Reading
	default:
		return Unused
	}
}

// Borrow acquires a shared borrow.
func (c *Cell[T]) Borrow() (*Ref[T], error) {
	if c.writing {
		return nil, &BorrowError{Attempted: Reading, Current: Writing}
	}
	c.readers++
	return &Ref[T]{value: &c.value, release: c.releaseShared, held: c.reading}, nil
}

func (c *Cell[T]) reading() bool { return c.readers > 0 }

func (c *Cell[T]) releaseShared() {
	c.readers--
}

// BorrowMut acquires the exclusive borrow.
func (c *Cell[T]) BorrowMut() (*RefMut[T], error) {
	if st := c.BorrowState(); st != Unused {
		return nil, &BorrowError{Attempted: Writing, Current: st}
	}

	c.writing = true
	if c.unrooted {
		c.pinned = true
		pinnedCells.Add(1)
		if t := asTraceable(&c.value); t != nil {
			t.Root()
		}
	}
	return &RefMut[T]{value: &c.value, release: c.releaseExclusive, held: c.borrowedMut}, nil
}

func (c *Cell[T]) borrowedMut() bool { return c.writing }

func (c *Cell[T]) releaseExclusive() {
	if c.unrooted {
		if t := asTraceable(&c.value); t != nil {
			t.Unroot()
		}
	}
	if c.pinned {
		c.pinned = false
		pinnedCells.Add(-1)
	}
	c.writing = false
}

// MustBorrow is Borrow that panics with the *BorrowError on conflict.
func (c *Cell[T]) MustBorrow() *Ref[T] {
	r, err := c.Borrow()
	if err != nil {
		panic(err)
	}
	return r
}

// MustBorrowMut is BorrowMut that panics with the *BorrowError on conflict.
func (c *Cell[T]) MustBorrowMut() *RefMut[T] {
	g, err := c.BorrowMut()
	if err != nil {
		panic(err)
	}
	return g
}

// Read calls fn with the content under a shared borrow.
func (c *Cell[T]) Read(fn func(*T)) error {
	r, err := c.Borrow()
	if err != nil {
		return err
	}
	defer r.Release()

	fn(r.Get())
	return nil
}

// Write calls fn with the content under the exclusive borrow. Handles fn
// stores into the content must be roots (fresh from New, Clone or Upgrade);
// handles it removes must be dropped by fn.
func (c *Cell[T]) Write(fn func(*T)) error {
	g, err := c.BorrowMut()
	if err != nil {
		return err
	}
	defer g.Release()

	fn(g.Get())
	return nil
}

// Replace stores v and returns the previous content. The returned handles
// are roots owned by the caller.
func (c *Cell[T]) Replace(v T) (T, error) {
	g, err := c.BorrowMut()
	if err != nil {
		var zero T
		return zero, err
	}
	defer g.Release()

	return g.Replace(v), nil
}

// Trace visits the content's handles unless the cell is exclusively
// borrowed, in which case they are rooted already and a pinned cell reports
// its pin instead.
func (c *Cell[T]) Trace(visit Visitor) {
	if c.writing {
		if c.pinned {
			visit(cellPin{})
		}
		return
	}
	if t := asTraceable(&c.value); t != nil {
		t.Trace(visit)
	}
}

// Root marks the cell as held outside the managed graph.
func (c *Cell[T]) Root() {
	if !c.unrooted {
		collector.Fatal("root cell", nil, ErrRootState)
	}
	c.unrooted = false

	if !c.writing {
		if t := asTraceable(&c.value); t != nil {
			t.Root()
		}
	}
}

// Unroot marks the cell as owned by a managed value.
func (c *Cell[T]) Unroot() {
	if c.unrooted {
		collector.Fatal("unroot cell", nil, ErrRootState)
	}
	c.unrooted = true

	if !c.writing {
		if t := asTraceable(&c.value); t != nil {
			t.Unroot()
		}
	}
}

// Ref is a shared borrow guard.
type Ref[T any] struct {
	value   *T
	release func()

	// held reports whether the cell still records the borrow. It turns false
	// when the value holding the cell is freed.
	held func() bool
}

func (r *Ref[T]) check(op string) {
	if r.release == nil {
		collector.Fatal(op, nil, ErrGuardReleased)
	}
	if !r.held() {
		collector.Fatal(op, nil, ErrUseAfterFree)
	}
}

// Get returns the borrowed content. It panics with ErrUseAfterFree once the
// value holding the cell was reclaimed.
func (r *Ref[T]) Get() *T {
	r.check("ref get")
	return r.value
}

// Release ends the borrow. Releasing twice panics.
func (r *Ref[T]) Release() {
	r.check("ref release")
	release := r.release
	r.release = nil
	r.value = nil
	release()
}

// MapRef narrows r to a part of its content. r becomes inert: the borrow is
// ended by releasing the returned guard.
func MapRef[T, U any](r *Ref[T], f func(*T) *U) *Ref[U] {
	v := f(r.Get())
	out := &Ref[U]{value: v, release: r.release, held: r.held}
	r.release = nil
	r.value = nil
	return out
}

// RefMut is an exclusive borrow guard.
type RefMut[T any] struct {
	value   *T
	release func()
	held    func() bool
}

func (g *RefMut[T]) check(op string) {
	if g.release == nil {
		collector.Fatal(op, nil, ErrGuardReleased)
	}
	if !g.held() {
		collector.Fatal(op, nil, ErrUseAfterFree)
	}
}

// Get returns the borrowed content for mutation.
func (g *RefMut[T]) Get() *T {
	g.check("refmut get")
	return g.value
}

// Set stores v and drops the handles of the previous content. v's handles
// must be roots.
func (g *RefMut[T]) Set(v T) {
	old := g.Replace(v)
	dropValue(&old)
}

// Replace stores v and returns the previous content, whose handles are
// roots owned by the caller.
func (g *RefMut[T]) Replace(v T) T {
	p := g.Get()
	old := *p
	*p = v
	return old
}

// Release ends the borrow. The cell's whole content goes back to the
// managed graph. Releasing twice panics.
func (g *RefMut[T]) Release() {
	g.check("refmut release")
	release := g.release
	g.release = nil
	g.value = nil
	release()
}

// MapRefMut narrows g to a part of its content. g becomes inert: the borrow
// is ended by releasing the returned guard, which hands the whole content,
// not just the projected part, back to the graph.
func MapRefMut[T, U any](g *RefMut[T], f func(*T) *U) *RefMut[U] {
	v := f(g.Get())
	out := &RefMut[U]{value: v, release: g.release, held: g.held}
	g.release = nil
	g.value = nil
	return out
}
