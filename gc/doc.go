// Package gc provides cycle-collecting reference-counted handles.
//
// A *Gc[T] owns a managed value. Handles are released explicitly with Drop.
// When the last handle to a value is dropped the value is reclaimed at
// once. Values that keep each other alive through a cycle are found by a
// mark-sweep pass that runs automatically when enough values are live, or
// on demand with Collect.
//
// Reclaiming a value means running its Finalize hook, then its Dispose hook,
// then dropping the handles it owns. This gives deterministic release of
// resources (descriptors, buffers, interpreter objects) held in cyclic
// graphs, which runtime.SetFinalizer cannot promise.
//
// # Quick Start
//
//	type Node struct {
//		Name string
//		Next gc.Cell[*gc.Gc[Node]]
//	}
//
//	func (n *Node) Trace(visit gc.Visitor) { n.Next.Trace(visit) }
//	func (n *Node) Root()                  { n.Next.Root() }
//	func (n *Node) Unroot()                { n.Next.Unroot() }
//
//	a := gc.New(Node{Name: "a", Next: gc.NewCell[*gc.Gc[Node]](nil)})
//	b := gc.New(Node{Name: "b", Next: gc.NewCell(a.Clone())})
//
//	w := a.Get().Next.MustBorrowMut()
//	w.Set(b.Clone()) // a → b → a
//	w.Release()
//
//	a.Drop()
//	b.Drop()     // the cycle is unreachable but still counted
//	gc.Collect() // now it is reclaimed
//
// The Trace, Root and Unroot methods can be generated with cmd/gcgen.
//
// # Roots
//
// The collector never scans Go stacks or globals. Instead every handle knows
// whether it is a root (held by ordinary Go code) or owned by a managed
// value, and every value counts its rooted handles. New turns the handles
// inside its argument into owned handles by calling Unroot; handles returned
// by New, Clone and Weak.Upgrade are roots.
//
// Marking starts from every value with at least one root. A value whose
// handles are all owned, and which is not reachable from a rooted value, is
// garbage.
//
// # Mutation
//
// Values are immutable through Get. Mutable parts live in Cell fields with
// checked shared and exclusive borrows. While a cell inside a managed value
// is exclusively borrowed its content is rooted and the value holding the
// cell is pinned, so a collection triggered in the middle of the mutation
// (for example by an allocation) cannot reclaim what is being rearranged.
// Releasing the guard unroots the new content.
//
// # Weak References
//
// Weak refers to a value without keeping it alive. WeakPair is an
// ephemeron: it owns a value that a collection keeps only while the pair's
// key is reachable some other way.
//
// # Finalization
//
// During a collection every unreachable value is finalized before any is
// destroyed, so a finalizer may read other members of its cycle. A
// finalizer may resurrect values by cloning a handle into live data; the
// collector marks again before sweeping. Each value is finalized at most
// once.
//
// Hooks must not call New, Drop or Collect. Doing so panics with a
// *FatalError wrapping ErrReentrant and poisons the heap, as does any other
// panic escaping a hook.
//
// # Leaf Types
//
// Types without handles do not need Trace. New and NewCell accept a type
// that does not implement Traceable only if reflection proves it cannot
// hold a handle: booleans, numbers, strings, and pointers, arrays, slices,
// maps and structs built from them. Anything holding interfaces, functions
// or channels is rejected with ErrNotTraceable. UnsafeNoTrace and
// UnsafeEmptyTrace opt out of the check.
//
// # Heaps and Goroutines
//
// New allocates on the default heap, created on first use from the RCGC_*
// environment variables (see ConfigFromEnv) and Configure. Independent heaps
// are created with NewHeap and used with NewIn. A heap is single-goroutine:
// set Config.CheckConfinement to have every entry point verify it. Only
// Heap.Stats may be called from other goroutines.
//
// # Errors
//
// Borrow conflicts are ordinary errors (*BorrowError, matching
// ErrBorrowConflict). Broken invariants, such as use after Drop, a handle
// from another heap, or a rooted value found unreachable, panic with a
// *FatalError whose cause matches one of the Err* sentinels.
package gc
