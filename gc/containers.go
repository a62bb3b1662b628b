package gc

// List is a slice of traceable elements, typically handles.
//
//	type Scope struct {
//		Vars gc.List[*gc.Gc[Var]]
//	}
type List[T Traceable] []T

func (l List[T]) Trace(visit Visitor) { TraceAll(l, visit) }
func (l List[T]) Root()               { RootAll(l) }
func (l List[T]) Unroot()             { UnrootAll(l) }

// Map is a map with traceable values. Keys are not traced.
type Map[K comparable, V Traceable] map[K]V

func (m Map[K, V]) Trace(visit Visitor) {
	for _, v := range m {
		v.Trace(visit)
	}
}

func (m Map[K, V]) Root() {
	for _, v := range m {
		v.Root()
	}
}

func (m Map[K, V]) Unroot() {
	for _, v := range m {
		v.Unroot()
	}
}

// TraceAll traces every element of items.
func TraceAll[T Traceable](items []T, visit Visitor) {
	for _, it := range items {
		it.Trace(visit)
	}
}

// RootAll roots every element of items.
func RootAll[T Traceable](items []T) {
	for _, it := range items {
		it.Root()
	}
}

// UnrootAll unroots every element of items.
func UnrootAll[T Traceable](items []T) {
	for _, it := range items {
		it.Unroot()
	}
}

// UnsafeEmptyTrace is an embeddable no-op Traceable. Embedding it asserts
// that the enclosing struct owns no handles. Nothing checks the claim.
type UnsafeEmptyTrace struct{}

func (UnsafeEmptyTrace) Trace(Visitor) {}
func (UnsafeEmptyTrace) Root()         {}
func (UnsafeEmptyTrace) Unroot()       {}
func (UnsafeEmptyTrace) unsafeLeaf()   {}

// UnsafeNoTrace wraps a value the collector must not look into, such as a
// type with function or interface fields that never hold handles. A handle
// hidden inside Value is invisible to the collector.
type UnsafeNoTrace[V any] struct {
	Value V
}

func (UnsafeNoTrace[V]) Trace(Visitor) {}
func (UnsafeNoTrace[V]) Root()         {}
func (UnsafeNoTrace[V]) Unroot()       {}
func (UnsafeNoTrace[V]) unsafeLeaf()   {}
