package gc

import (
	"github.com/kolkov/rcgc/internal/gc/collector"
)

// box is the managed value behind a Gc. It is the collector.Payload of the
// value's record.
type box[T any] struct {
	value T
	name  string
}

func (b *box[T]) TraceChildren(visit func(*collector.Record), ephemeron func(key, value *collector.Record)) {
	t := asTraceable(&b.value)
	if t == nil {
		return
	}
	t.Trace(func(h Handle) {
		if h == nil {
			return
		}
		rec, present := h.target()
		if !present {
			return
		}
		if e, ok := h.(keyedHandle); ok && ephemeron != nil && rec != nil {
			ephemeron(e.key(), rec)
			return
		}
		visit(rec)
	})
}

func (b *box[T]) Pinned() bool {
	if pinnedCells.Load() == 0 {
		return false
	}
	t := asTraceable(&b.value)
	if t == nil {
		return false
	}

	pinned := false
	t.Trace(func(h Handle) {
		if _, ok := h.(cellPin); ok {
			pinned = true
		}
	})
	return pinned
}

func (b *box[T]) Finalize() {
	if f := asFinalizer(&b.value); f != nil {
		f.Finalize()
	}
}

func (b *box[T]) Dispose() {
	if d := asDisposer(&b.value); d != nil {
		d.Dispose()
	}
}

func (b *box[T]) Clear() {
	var zero T
	b.value = zero
}

func (b *box[T]) TypeName() string { return b.name }
