package gc

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"

	"github.com/kolkov/rcgc/internal/gc/collector"
	"github.com/kolkov/rcgc/internal/gc/stackdepot"
)

// Config configures a heap. See collector.Config for the fields.
type Config = collector.Config

// Stats is a snapshot of heap statistics.
type Stats = collector.Stats

// Defaults used by DefaultConfig and by Config fields left zero.
const (
	DefaultThreshold      = collector.DefaultThreshold
	DefaultUsedSpaceRatio = collector.DefaultUsedSpaceRatio
)

// Environment variables read by ConfigFromEnv.
const (
	EnvThreshold        = "RCGC_THRESHOLD"
	EnvUsedSpaceRatio   = "RCGC_USED_SPACE_RATIO"
	EnvCheckConfinement = "RCGC_CHECK_CONFINEMENT"
	EnvAllocSites       = "RCGC_ALLOC_SITES"
	EnvDebug            = "RCGC_DEBUG"
)

// DefaultConfig returns the default heap configuration: threshold 100,
// used space ratio 0.7, no logging.
func DefaultConfig() Config {
	return collector.DefaultConfig()
}

// ConfigFromEnv returns DefaultConfig overridden by the RCGC_* environment
// variables. Invalid values are skipped and reported together in the
// returned error.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	var result *multierror.Error

	if v, ok := os.LookupEnv(EnvThreshold); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			result = multierror.Append(result, fmt.Errorf("%s=%q: want a positive integer", EnvThreshold, v))
		} else {
			cfg.Threshold = n
		}
	}

	if v, ok := os.LookupEnv(EnvUsedSpaceRatio); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			result = multierror.Append(result, fmt.Errorf("%s=%q: want a number in (0, 1]", EnvUsedSpaceRatio, v))
		} else {
			cfg.UsedSpaceRatio = f
		}
	}

	flags := []struct {
		name string
		dst  *bool
	}{
		{EnvCheckConfinement, &cfg.CheckConfinement},
		{EnvAllocSites, &cfg.RecordAllocSites},
	}
	for _, fl := range flags {
		v, ok := os.LookupEnv(fl.name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s=%q: want a boolean", fl.name, v))
			continue
		}
		*fl.dst = b
	}

	if v, ok := os.LookupEnv(EnvDebug); ok {
		if debug, err := strconv.ParseBool(v); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s=%q: want a boolean", EnvDebug, v))
		} else if debug {
			cfg.Logger = DebugLogger()
		}
	}

	return cfg, result.ErrorOrNil()
}

// DebugLogger returns a logfmt logger on stderr that passes debug events.
func DebugLogger() log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "component", "rcgc")
	return level.NewFilter(logger, level.AllowDebug())
}

// Heap is an independent managed heap. Handles of one heap must never be
// stored in values of another, and a heap must only be used from one
// goroutine at a time (from exactly one if CheckConfinement is set).
type Heap struct {
	c *collector.Collector
}

// NewHeap creates a heap.
func NewHeap(cfg Config) *Heap {
	return &Heap{c: collector.New(cfg)}
}

var (
	defaultMu   sync.Mutex
	defaultHeap atomic.Pointer[Heap]
	configurers []func(*Config)
)

// DefaultHeap returns the process heap used by New, creating it on first
// use from ConfigFromEnv and the functions passed to Configure. It is never
// torn down.
func DefaultHeap() *Heap {
	if h := defaultHeap.Load(); h != nil {
		return h
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()

	if h := defaultHeap.Load(); h != nil {
		return h
	}

	cfg, err := ConfigFromEnv()
	for _, fn := range configurers {
		fn(&cfg)
	}
	h := NewHeap(cfg)
	if err != nil {
		level.Warn(h.c.Config().Logger).Log("msg", "ignoring invalid environment settings", "err", err)
	}

	defaultHeap.Store(h)
	return h
}

// Configure registers fn to adjust the default heap configuration. It must
// be called before the default heap is first used and returns
// ErrHeapStarted afterwards.
func Configure(fn func(*Config)) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultHeap.Load() != nil {
		return ErrHeapStarted
	}
	configurers = append(configurers, fn)
	return nil
}

// Collect runs a full collection of the default heap.
func Collect() {
	DefaultHeap().Collect()
}

// FinalizerSafe reports whether handles of the default heap may be
// dereferenced, which is false while a Dispose hook runs.
func FinalizerSafe() bool {
	return DefaultHeap().FinalizerSafe()
}

// Collect runs a full collection: unreachable values are finalized, values
// still unreachable afterwards are disposed and freed. It panics with
// ErrReentrant when called from a hook.
func (h *Heap) Collect() {
	h.c.Collect()
}

// Stats returns the heap statistics.
//
// Thread Safety: Safe for concurrent calls from any goroutine.
func (h *Heap) Stats() Stats {
	return h.c.Stats()
}

// Len returns the number of live values.
func (h *Heap) Len() int {
	return h.c.Len()
}

// Threshold returns the live value count that triggers the next collection.
func (h *Heap) Threshold() int {
	return h.c.Threshold()
}

// Config returns the heap configuration with defaults applied.
func (h *Heap) Config() Config {
	return h.c.Config()
}

// FinalizerSafe reports whether handles of h may be dereferenced.
func (h *Heap) FinalizerSafe() bool {
	return !h.c.TearingDown()
}

// Poisoned reports whether a hook panicked during a collection or free. A
// poisoned heap rejects every further allocation, drop and collection.
func (h *Heap) Poisoned() bool {
	return h.c.Poisoned()
}

// Object describes a live value in a heap walk.
type Object struct {
	ID        uint64
	Type      string
	Strong    int
	Roots     int
	Finalized bool
	Size      uintptr
	Site      string   // First user frame of the allocation, if recorded.
	Stack     string   // Formatted allocation stack, if recorded.
	Children  []uint64 // IDs of the values this one owns handles to.
}

// Walk calls fn for every live value in allocation order. fn may allocate
// and drop; values freed by it are not visited.
func (h *Heap) Walk(fn func(Object)) {
	h.c.Walk(func(r *collector.Record, children []*collector.Record) {
		obj := Object{
			ID:        r.ID(),
			Type:      r.Payload().TypeName(),
			Strong:    r.Strong(),
			Roots:     r.Roots(),
			Finalized: r.Finalized(),
			Size:      r.Size(),
			Children:  make([]uint64, len(children)),
		}
		for i, child := range children {
			obj.Children[i] = child.ID()
		}
		if st := stackdepot.Lookup(r.Site()); st != nil {
			obj.Site = st.Site()
			obj.Stack = st.Format()
		}
		fn(obj)
	})
}
