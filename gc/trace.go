package gc

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/kolkov/rcgc/internal/gc/collector"
)

// Visitor receives every handle a value owns directly.
type Visitor func(Handle)

// Traceable is implemented by values that own handles.
//
// Trace must call visit exactly once for every handle the value owns
// directly and must not recurse into the handles' targets. Root and Unroot
// must forward to exactly the handles Trace visits. Leaving an owned handle
// out of Trace lets the collector reclaim its target while it is still in
// use.
//
// Use cmd/gcgen to generate the three methods for plain structs.
type Traceable interface {
	Trace(visit Visitor)
	Root()
	Unroot()
}

// Finalizer is implemented by values that want a notification before they
// are reclaimed. Finalize runs at most once per value. It may read other
// members of the same garbage cycle and may resurrect values by cloning a
// handle into live data. It must not allocate, drop or collect.
type Finalizer interface {
	Finalize()
}

// Disposer is implemented by values that release resources when reclaimed.
// Dispose runs after Finalize, once the value is certainly dead. It must not
// dereference handles: Get panics while any Dispose runs.
type Disposer interface {
	Dispose()
}

// Handle is an owning handle as seen by a Visitor. It is implemented by
// *Gc[T] and *WeakPair[K, V]. An exclusively borrowed cell inside a managed
// value also reports a pin handle whose methods do nothing.
type Handle interface {
	Traceable

	// Drop releases the handle.
	Drop()

	// target returns the record the handle owns. present is false for a nil
	// handle, rec is nil for a dropped one.
	target() (rec *collector.Record, present bool)
}

// unsafeLeafer marks the escape hatches accepted as leaves without checks.
type unsafeLeafer interface {
	unsafeLeaf()
}

var (
	traceableType  = reflect.TypeFor[Traceable]()
	handleType     = reflect.TypeFor[Handle]()
	unsafeLeafType = reflect.TypeFor[unsafeLeafer]()
	typeInfoCache  sync.Map // reflect.Type → *typeInfo
)

// typeInfo is the per-type result of the traceability check.
type typeInfo struct {
	name string
	size uintptr
	err  error
}

// typeInfoOf checks that T either implements Traceable or provably holds no
// handles. The result is cached per type.
func typeInfoOf[T any]() *typeInfo {
	rt := reflect.TypeFor[T]()
	if v, ok := typeInfoCache.Load(rt); ok {
		return v.(*typeInfo)
	}

	info := &typeInfo{name: rt.String(), size: rt.Size()}
	if !implementsTraceable(rt) && !isLeaf(rt, map[reflect.Type]bool{}) {
		info.err = fmt.Errorf("%s: %w", rt, ErrNotTraceable)
	}

	v, _ := typeInfoCache.LoadOrStore(rt, info)
	return v.(*typeInfo)
}

// mustTraceable panics with ErrNotTraceable unless T is traceable or a leaf.
func mustTraceable[T any](op string) *typeInfo {
	info := typeInfoOf[T]()
	if info.err != nil {
		panic(&FatalError{Op: op, Err: info.err})
	}
	return info
}

func implementsTraceable(rt reflect.Type) bool {
	if rt.Implements(traceableType) {
		return true
	}
	return rt.Kind() != reflect.Interface && reflect.PointerTo(rt).Implements(traceableType)
}

// isLeaf reports whether no value of rt can hold a handle. Nested types that
// implement Traceable are not leaves: the enclosing type must forward to
// them.
func isLeaf(rt reflect.Type, seen map[reflect.Type]bool) bool {
	if rt.Implements(unsafeLeafType) {
		return true
	}
	if rt.Implements(handleType) || implementsTraceable(rt) {
		return false
	}
	if seen[rt] {
		return true
	}
	seen[rt] = true

	switch rt.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String, reflect.UnsafePointer:
		return true
	case reflect.Pointer, reflect.Array, reflect.Slice:
		return isLeaf(rt.Elem(), seen)
	case reflect.Map:
		return isLeaf(rt.Key(), seen) && isLeaf(rt.Elem(), seen)
	case reflect.Struct:
		for i := range rt.NumField() {
			if !isLeaf(rt.Field(i).Type, seen) {
				return false
			}
		}
		return true
	default:
		// Interfaces, funcs and channels can carry anything.
		return false
	}
}

// asTraceable returns the Traceable view of *p, or nil for leaf values.
func asTraceable[T any](p *T) Traceable {
	if t, ok := any(p).(Traceable); ok {
		return t
	}
	if t, ok := any(*p).(Traceable); ok {
		return t
	}
	return nil
}

func asFinalizer[T any](p *T) Finalizer {
	if f, ok := any(p).(Finalizer); ok {
		return f
	}
	if f, ok := any(*p).(Finalizer); ok {
		return f
	}
	return nil
}

func asDisposer[T any](p *T) Disposer {
	if d, ok := any(p).(Disposer); ok {
		return d
	}
	if d, ok := any(*p).(Disposer); ok {
		return d
	}
	return nil
}

// DropOwned drops every handle v owns directly. Use it for values taken out
// of a cell with Replace, or for containers of handles that go out of use.
func DropOwned(v Traceable) {
	if v == nil {
		return
	}
	v.Trace(func(h Handle) {
		h.Drop()
	})
}

func dropValue[T any](p *T) {
	if t := asTraceable(p); t != nil {
		DropOwned(t)
	}
}
