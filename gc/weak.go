package gc

import (
	"fmt"

	"github.com/kolkov/rcgc/internal/gc/collector"
)

// Weak refers to a managed value without keeping it alive. It is not traced,
// so it may point back up a tree without forming a cycle.
type Weak[T any] struct {
	rec *collector.Record
	box *box[T]
}

// Upgrade returns a new rooted handle while the value is live.
func (w *Weak[T]) Upgrade() (*Gc[T], bool) {
	if !w.Alive() {
		return nil, false
	}
	w.rec.Owner().Retain(w.rec)
	return &Gc[T]{rec: w.rec, box: w.box, rooted: true}, true
}

// Alive reports whether the value is still registered.
func (w *Weak[T]) Alive() bool {
	return w != nil && w.rec != nil && w.rec.Live()
}

func (w *Weak[T]) Trace(Visitor) {}
func (w *Weak[T]) Root()         {}
func (w *Weak[T]) Unroot()       {}

func (w *Weak[T]) String() string {
	if w == nil || w.rec == nil {
		return "Weak(nil)"
	}
	return fmt.Sprintf("Weak[%s]#%d(%s)", w.box.name, w.rec.ID(), w.rec.State())
}
