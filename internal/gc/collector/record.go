package collector

// State is the lifecycle state of a record.
type State uint8

const (
	// StateLive records are registered and may be dereferenced.
	StateLive State = iota

	// StateCondemned records were unregistered by a sweep and are being
	// destroyed.
	StateCondemned

	// StateFreed records are destroyed. Their payload is cleared.
	StateFreed
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateCondemned:
		return "condemned"
	case StateFreed:
		return "freed"
	default:
		return "unknown"
	}
}

// Payload is the managed value behind a record.
//
// Every method except Clear calls user code and runs under the collector's
// callback guard.
type Payload interface {
	// TraceChildren calls visit once per handle directly owned by the value.
	// A nil record means the value holds a dropped handle.
	//
	// Handles that stay reachable only while a key does are ephemeron edges.
	// When ephemeron is not nil they are reported to it together with the
	// key's record, nil once the key is gone. Otherwise they go to visit.
	TraceChildren(visit func(child *Record), ephemeron func(key, value *Record))

	// Pinned reports whether part of the value is exclusively borrowed. A
	// pinned record counts as a root. If its strong count drops to zero
	// while pinned, it is left to the next collection.
	Pinned() bool

	// Finalize runs the value's finalize hook, if any.
	Finalize()

	// Dispose runs the value's teardown hook, if any.
	Dispose()

	// Clear zeroes the value so nothing it referenced is retained.
	Clear()

	// TypeName names the value's type for logs and snapshots.
	TypeName() string
}

// Record is a managed allocation.
//
// strong counts owning handles, roots counts the subset of them that live
// outside the managed graph. A record is reclaimed by the fast path as soon
// as strong drops to zero unless it is pinned, or by a sweep when it is
// unreachable from roots.
type Record struct {
	id        uint64
	strong    int
	roots     int
	state     State
	finalized bool
	site      uint64
	size      uintptr
	owner     *Collector
	payload   Payload
}

// ID returns the allocation id, unique within the collector.
func (r *Record) ID() uint64 { return r.id }

// Strong returns the number of owning handles.
func (r *Record) Strong() int { return r.strong }

// Roots returns the number of rooted handles.
func (r *Record) Roots() int { return r.roots }

// State returns the lifecycle state.
func (r *Record) State() State { return r.state }

// Live reports whether the record is registered.
func (r *Record) Live() bool { return r.state == StateLive }

// Finalized reports whether the finalize hook already ran.
func (r *Record) Finalized() bool { return r.finalized }

// Site returns the allocation-site stack id, 0 if not recorded.
func (r *Record) Site() uint64 { return r.site }

// Size returns the approximate size of the managed value in bytes.
func (r *Record) Size() uintptr { return r.size }

// Owner returns the collector the record belongs to.
func (r *Record) Owner() *Collector { return r.owner }

// Payload returns the managed value.
func (r *Record) Payload() Payload { return r.payload }

// AddRoot records a new rooted handle.
func (r *Record) AddRoot() {
	if r.state == StateFreed {
		Fatal("root", r, ErrUseAfterFree)
	}
	r.roots++
}

// RemoveRoot records that a handle stopped being a root.
func (r *Record) RemoveRoot() {
	if r.roots == 0 {
		Fatal("unroot", r, ErrRootState)
	}
	r.roots--
}
