// Package collector implements the allocation registry and the cycle
// collector behind rcgc handles.
//
// Every managed value is a Record carrying two counts: strong (owning
// handles) and roots (owning handles that live outside the managed graph).
// Acyclic garbage is freed the moment strong reaches zero. Cycles keep their
// strong counts above zero forever, so they are found by a stop-the-world
// mark-sweep started from the rooted records:
//
//  1. Mark: everything reachable from a record with roots > 0 survives. A
//     record with an exclusively borrowed cell counts as rooted, and a value
//     behind an ephemeron edge survives only if the edge's key does.
//  2. Finalize: unreachable records that were never finalized get their
//     Finalize hook. Every member of the cycle is still intact.
//  3. Re-mark: finalizers may have resurrected records by cloning handles.
//  4. Sweep: the remaining records are unregistered, then destroyed.
//
// A Collector is confined to one goroutine. Only Stats may be called
// concurrently.
package collector

import (
	"cmp"
	"slices"
	"time"

	"github.com/dolthub/swiss"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/kolkov/rcgc/internal/gc/goid"
	"github.com/kolkov/rcgc/internal/gc/stackdepot"
)

// Phase is the collector's current activity.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseMark
	PhaseFinalize
	PhaseSweep
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseMark:
		return "mark"
	case PhaseFinalize:
		return "finalize"
	case PhaseSweep:
		return "sweep"
	default:
		return "unknown"
	}
}

// initialCapacity bounds the registry preallocation for large thresholds.
const initialCapacity = 1024

// Collector is a registry of managed records plus the collection policy.
type Collector struct {
	cfg    Config
	logger log.Logger

	// records maps allocation id → live record.
	records *swiss.Map[uint64, *Record]
	nextID  uint64

	threshold int
	phase     Phase

	// depth counts user hooks (Trace, Finalize, Dispose) on the stack.
	depth int

	// teardown counts Dispose hooks on the stack.
	teardown int

	// pending holds records whose strong count reached zero and that wait
	// for the fast path. draining is set while the queue is being emptied.
	pending  []*Record
	draining bool

	poisoned bool

	// owner is the goroutine id bound on first use when confinement is
	// checked.
	owner int64

	// Reused buffers.
	work []*Record
	kids []*Record

	stats counters
}

// New creates a collector. Invalid configuration values are replaced by
// defaults.
func New(cfg Config) *Collector {
	cfg = cfg.normalize()

	c := &Collector{
		cfg:       cfg,
		logger:    cfg.Logger,
		records:   swiss.NewMap[uint64, *Record](uint32(min(cfg.Threshold, initialCapacity))),
		threshold: cfg.Threshold,
	}
	c.stats.threshold.Store(int64(cfg.Threshold))

	return c
}

// Config returns the normalized configuration.
func (c *Collector) Config() Config { return c.cfg }

// Phase returns the current phase.
func (c *Collector) Phase() Phase { return c.phase }

// Len returns the number of registered records.
func (c *Collector) Len() int { return c.records.Count() }

// Poisoned reports whether a hook panicked during a collection or a free.
func (c *Collector) Poisoned() bool { return c.poisoned }

// TearingDown reports whether a Dispose hook is running.
func (c *Collector) TearingDown() bool { return c.teardown > 0 }

// Stats returns a snapshot of the statistics.
//
// Thread Safety: Safe for concurrent calls from any goroutine.
func (c *Collector) Stats() Stats {
	return c.stats.snapshot()
}

// enter guards the entry points that may allocate, free or collect.
func (c *Collector) enter(op string) {
	if c.poisoned {
		Fatal(op, nil, ErrPoisoned)
	}
	if c.depth > 0 {
		Fatal(op, nil, ErrReentrant)
	}
	c.checkOwner(op)
}

func (c *Collector) checkOwner(op string) {
	if !c.cfg.CheckConfinement {
		return
	}

	id := goid.Current()
	if c.owner == 0 {
		c.owner = id
		return
	}
	if c.owner != id {
		Fatal(op, nil, ErrWrongGoroutine)
	}
}

// Register adds a new record for p with strong = roots = 1 and then applies
// the threshold policy, which may run a collection before returning.
//
// size is the approximate size of the value, used for statistics only.
func (c *Collector) Register(p Payload, size uintptr) *Record {
	c.enter("new")

	c.nextID++
	r := &Record{
		id:      c.nextID,
		strong:  1,
		roots:   1,
		owner:   c,
		payload: p,
		size:    size,
	}
	if c.cfg.RecordAllocSites {
		r.site = stackdepot.Capture(1)
	}

	c.records.Put(r.id, r)
	c.stats.allocations.Add(1)
	c.stats.live.Add(1)
	c.stats.liveBytes.Add(int64(size))

	c.maybeCollect()

	return r
}

// Retain records a new rooted owning handle (a clone or an upgraded weak
// handle).
func (c *Collector) Retain(r *Record) {
	if c.poisoned {
		Fatal("clone", r, ErrPoisoned)
	}
	c.checkOwner("clone")
	if r.owner != c {
		Fatal("clone", r, ErrForeignHandle)
	}
	if r.state != StateLive {
		Fatal("clone", r, ErrUseAfterFree)
	}

	r.strong++
	r.roots++
}

// Release records that an owning handle was dropped. rooted tells whether
// the handle counted as a root.
//
// When strong reaches zero the record is finalized, disposed and freed
// before Release returns, together with every record whose last owner it
// was.
func (c *Collector) Release(r *Record, rooted bool) {
	c.enter("drop")
	if r.owner != c {
		Fatal("drop", r, ErrForeignHandle)
	}
	if r.state != StateLive {
		Fatal("drop", r, ErrUseAfterFree)
	}

	if rooted {
		r.RemoveRoot()
	}
	c.release(r)
}

func (c *Collector) release(r *Record) {
	if r.state != StateLive {
		// Owned by a record condemned in the same sweep.
		if r.strong > 0 {
			r.strong--
		}
		return
	}
	if r.strong == 0 {
		Fatal("drop", r, ErrRootState)
	}

	r.strong--
	if r.strong > 0 {
		return
	}

	c.pending = append(c.pending, r)
	if c.phase == PhaseIdle {
		c.drain()
	}
}

// drain frees queued records until the queue is empty. Freeing a record
// releases its children, which may queue more records; the loop keeps the
// stack flat for long chains.
func (c *Collector) drain() {
	if c.draining {
		return
	}
	c.draining = true

	ok := false
	defer func() {
		c.draining = false
		if !ok {
			c.poison("free")
		}
	}()

	for len(c.pending) > 0 {
		n := len(c.pending) - 1
		r := c.pending[n]
		c.pending[n] = nil
		c.pending = c.pending[:n]

		c.free(r)
	}

	ok = true
}

// free is the fast path for a record whose strong count reached zero.
func (c *Collector) free(r *Record) {
	if r.state != StateLive || r.strong > 0 {
		return
	}
	if c.pinned(r) {
		level.Debug(c.logger).Log("msg", "free deferred, value is borrowed", "id", r.id, "type", r.payload.TypeName())
		return
	}

	if !r.finalized {
		r.finalized = true
		c.callback(r.payload.Finalize)
		c.stats.finalized.Add(1)

		// Revived through a weak handle.
		if r.strong > 0 {
			c.stats.resurrected.Add(1)
			return
		}
	}

	c.unregister(r)
	c.destroy(r)
	r.state = StateFreed
	c.stats.fastFrees.Add(1)
}

func (c *Collector) unregister(r *Record) {
	c.records.Delete(r.id)
	r.state = StateCondemned
	c.stats.live.Add(-1)
	c.stats.liveBytes.Add(-int64(r.size))
}

// destroy runs the teardown hook, clears the value and releases every
// handle the value owned.
func (c *Collector) destroy(r *Record) {
	c.dispose(r)

	kids := c.kids
	c.kids = nil
	c.trace(r, func(child *Record) {
		kids = append(kids, child)
	}, nil)
	r.payload.Clear()

	for i, child := range kids {
		kids[i] = nil
		if child == nil {
			continue
		}
		if child.owner != c {
			Fatal("free", r, ErrForeignHandle)
		}
		c.release(child)
	}
	c.kids = kids[:0]
}

func (c *Collector) dispose(r *Record) {
	c.teardown++
	defer func() { c.teardown-- }()

	c.callback(r.payload.Dispose)
}

// callback runs a user hook under the reentrancy guard.
func (c *Collector) callback(fn func()) {
	c.depth++
	defer func() { c.depth-- }()

	fn()
}

func (c *Collector) trace(r *Record, visit func(*Record), ephemeron func(key, value *Record)) {
	c.callback(func() {
		r.payload.TraceChildren(visit, ephemeron)
	})
}

func (c *Collector) pinned(r *Record) bool {
	pinned := false
	c.callback(func() {
		pinned = r.payload.Pinned()
	})
	return pinned
}

// poison makes every later entry fail with ErrPoisoned. A hook panicked
// midway through a pass, so counts and registry may disagree.
func (c *Collector) poison(op string) {
	c.poisoned = true
	c.phase = PhaseIdle
	c.pending = nil
	level.Error(c.logger).Log("msg", "collector poisoned by panic", "op", op)
}

// Collect runs a full collection.
func (c *Collector) Collect() {
	c.enter("collect")
	c.collect()
}

// maybeCollect collects when the live count exceeds the threshold, then
// raises the threshold if too much survived.
func (c *Collector) maybeCollect() {
	if c.records.Count() <= c.threshold {
		return
	}

	c.collect()

	live := c.records.Count()
	if float64(live) > float64(c.threshold)*c.cfg.UsedSpaceRatio {
		old := c.threshold
		c.threshold = int(float64(live) / c.cfg.UsedSpaceRatio)
		c.stats.threshold.Store(int64(c.threshold))

		level.Info(c.logger).Log(
			"msg", "collection threshold raised",
			"from", old,
			"to", c.threshold,
			"live", live,
		)
	}
}

// Threshold returns the current collection threshold.
func (c *Collector) Threshold() int { return c.threshold }

func (c *Collector) collect() {
	start := time.Now()
	liveBefore := c.records.Count()

	ok := false
	defer func() {
		if !ok {
			c.poison("collect")
		}
	}()

	c.phase = PhaseMark
	unreachable := c.unmarked(c.mark())

	c.phase = PhaseFinalize
	finalized := 0
	for _, r := range unreachable {
		if r.finalized {
			continue
		}
		r.finalized = true
		c.callback(r.payload.Finalize)
		finalized++
	}

	condemned := unreachable
	if finalized > 0 {
		c.phase = PhaseMark
		condemned = c.unmarked(c.mark())
	}
	resurrected := len(unreachable) - len(condemned)

	c.phase = PhaseSweep
	for _, r := range condemned {
		if r.roots > 0 {
			Fatal("sweep", r, ErrRootedReclaim)
		}
	}
	// Unregister everything first so no Dispose hook can reach a condemned
	// record through the registry.
	for _, r := range condemned {
		c.unregister(r)
	}
	for _, r := range condemned {
		c.destroy(r)
	}
	for _, r := range condemned {
		r.state = StateFreed
	}

	c.phase = PhaseIdle
	ok = true

	pause := time.Since(start)
	c.stats.collections.Add(1)
	c.stats.finalized.Add(uint64(finalized))
	c.stats.resurrected.Add(uint64(resurrected))
	c.stats.swept.Add(uint64(len(condemned)))
	c.stats.lastPause.Store(int64(pause))

	level.Debug(c.logger).Log(
		"msg", "collection finished",
		"live_before", liveBefore,
		"unreachable", len(unreachable),
		"finalized", finalized,
		"resurrected", resurrected,
		"swept", len(condemned),
		"live", c.records.Count(),
		"threshold", c.threshold,
		"duration", pause,
	)

	c.drain()
}

// ephemeronEdge is an ephemeron handle met during mark whose key was not
// marked yet.
type ephemeronEdge struct {
	key, value *Record
}

// mark returns the set of records reachable from a rooted or pinned record.
//
// A value behind an ephemeron edge is reached only through a marked key, so
// marking repeats until no pending edge resolves.
func (c *Collector) mark() *swiss.Map[uint64, struct{}] {
	marked := swiss.NewMap[uint64, struct{}](uint32(c.records.Count()))

	work := c.work[:0]
	c.records.Iter(func(id uint64, r *Record) bool {
		if r.roots > 0 || c.pinned(r) {
			marked.Put(id, struct{}{})
			work = append(work, r)
		}
		return false
	})

	push := func(r *Record) {
		if marked.Has(r.id) {
			return
		}
		marked.Put(r.id, struct{}{})
		work = append(work, r)
	}

	var parent *Record
	visit := func(child *Record) {
		c.checkChild("mark", parent, child)
		push(child)
	}

	var edges []ephemeronEdge
	ephemeron := func(key, value *Record) {
		c.checkChild("mark", parent, value)
		if key != nil && key.owner != c {
			Fatal("mark", parent, ErrForeignHandle)
		}
		edges = append(edges, ephemeronEdge{key: key, value: value})
	}

	for {
		for len(work) > 0 {
			n := len(work) - 1
			parent = work[n]
			work[n] = nil
			work = work[:n]

			c.trace(parent, visit, ephemeron)
		}

		resolved := false
		pending := edges[:0]
		for _, e := range edges {
			if e.key != nil && marked.Has(e.key.id) {
				push(e.value)
				resolved = true
				continue
			}
			pending = append(pending, e)
		}
		edges = pending

		if !resolved {
			break
		}
	}
	c.work = work[:0]

	if len(edges) > 0 {
		level.Debug(c.logger).Log("msg", "ephemeron edges left unresolved", "count", len(edges))
	}

	return marked
}

func (c *Collector) checkChild(op string, parent, child *Record) {
	switch {
	case child == nil:
		Fatal(op, parent, ErrDanglingHandle)
	case child.owner != c:
		Fatal(op, parent, ErrForeignHandle)
	case child.state != StateLive:
		Fatal(op, child, ErrDanglingHandle)
	}
}

// unmarked returns the registered records missing from marked, by id.
func (c *Collector) unmarked(marked *swiss.Map[uint64, struct{}]) []*Record {
	var out []*Record
	c.records.Iter(func(id uint64, r *Record) bool {
		if !marked.Has(id) {
			out = append(out, r)
		}
		return false
	})
	sortByID(out)
	return out
}

// Records returns the registered records ordered by id.
func (c *Collector) Records() []*Record {
	out := make([]*Record, 0, c.records.Count())
	c.records.Iter(func(_ uint64, r *Record) bool {
		out = append(out, r)
		return false
	})
	sortByID(out)
	return out
}

func sortByID(rs []*Record) {
	slices.SortFunc(rs, func(a, b *Record) int {
		return cmp.Compare(a.id, b.id)
	})
}

// Walk calls fn for every registered record in id order with the records
// its value owns. Nothing is modified. children is reused between calls.
func (c *Collector) Walk(fn func(r *Record, children []*Record)) {
	c.enter("walk")

	var kids []*Record
	for _, r := range c.Records() {
		if r.state != StateLive {
			continue
		}

		kids = kids[:0]
		c.trace(r, func(child *Record) {
			c.checkChild("walk", r, child)
			kids = append(kids, child)
		}, nil)
		fn(r, kids)
	}
}
