package gc

import (
	"fmt"

	"github.com/kolkov/rcgc/internal/gc/collector"
)

// keyedHandle is an owning handle whose target stays reachable only while
// its key does.
type keyedHandle interface {
	Handle
	key() *collector.Record
}

// WeakPair owns a value that lives only as long as a key, an ephemeron. The
// key is held weakly.
//
// Once the pair is moved into a managed value, a collection keeps the value
// only if the key is reachable without going through the value, so a value
// that refers back to its key does not keep either alive. A pair held
// outside the heap roots its value like any handle does.
//
// After the key is reclaimed Value reports nothing, and the next collection
// reclaims the value unless something else owns it. Replace the value of a
// stored pair under the exclusive borrow of a Cell.
type WeakPair[K, V any] struct {
	k *Weak[K]
	v *Gc[V]
}

// NewWeakPair returns a pair keyed by key's value. value is moved into the
// pair and may be nil. key stays owned by the caller.
func NewWeakPair[K, V any](key *Gc[K], value *Gc[V]) WeakPair[K, V] {
	return WeakPair[K, V]{k: key.Downgrade(), v: value}
}

// Key returns a weak handle to the key.
func (p *WeakPair[K, V]) Key() *Weak[K] {
	return p.k
}

// Value returns the value while the key is live.
func (p *WeakPair[K, V]) Value() (*V, bool) {
	p.prune()
	if p.v == nil || !p.k.Alive() {
		return nil, false
	}
	return p.v.Get(), true
}

// Upgrade returns rooted handles to the key and the value while the key is
// live and the pair holds a value. The caller drops both.
func (p *WeakPair[K, V]) Upgrade() (*Gc[K], *Gc[V], bool) {
	p.prune()
	if p.v == nil {
		return nil, nil, false
	}
	k, ok := p.k.Upgrade()
	if !ok {
		return nil, nil, false
	}
	return k, p.v.Clone(), true
}

// SetValue stores v, which must be a root, and drops the previous value.
func (p *WeakPair[K, V]) SetValue(v *Gc[V]) {
	p.prune()
	old := p.v
	p.v = v
	old.Drop()
}

// prune forgets a value that a collection reclaimed after its key died.
func (p *WeakPair[K, V]) prune() {
	if p.v == nil || p.v.dropped {
		return
	}
	if p.v.rec.State() == collector.StateFreed {
		p.v.dropped = true
		p.v.rooted = false
		p.v = nil
	}
}

// Trace visits the pair as a single handle to its value.
func (p *WeakPair[K, V]) Trace(visit Visitor) {
	p.prune()
	if p.v != nil {
		visit(p)
	}
}

func (p *WeakPair[K, V]) Root() {
	p.prune()
	p.v.Root()
}

func (p *WeakPair[K, V]) Unroot() {
	p.prune()
	p.v.Unroot()
}

// Drop releases the value. The key is not owned and needs no release.
func (p *WeakPair[K, V]) Drop() {
	p.prune()
	p.v.Drop()
}

func (p *WeakPair[K, V]) target() (*collector.Record, bool) {
	switch {
	case p.v == nil:
		return nil, false
	case p.v.dropped:
		return nil, true
	case !p.v.rec.Live():
		// Condemned in the same sweep as the pair.
		return nil, false
	}
	return p.v.rec, true
}

func (p *WeakPair[K, V]) key() *collector.Record {
	if !p.k.Alive() {
		return nil
	}
	return p.k.rec
}

func (p *WeakPair[K, V]) String() string {
	return fmt.Sprintf("WeakPair(%v -> %v)", p.k, p.v)
}
