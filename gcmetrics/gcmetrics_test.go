package gcmetrics_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kolkov/rcgc/gc"
	"github.com/kolkov/rcgc/gcmetrics"
)

type item struct {
	next gc.Cell[*gc.Gc[item]]
}

func (it *item) Trace(visit gc.Visitor) { it.next.Trace(visit) }
func (it *item) Root()                  { it.next.Root() }
func (it *item) Unroot()                { it.next.Unroot() }

func TestCollector(t *testing.T) {
	h := gc.NewHeap(gc.Config{Threshold: 1000})

	gc.NewIn(h, item{}).Drop()

	c := gc.NewIn(h, item{})
	d := gc.NewIn(h, item{next: gc.NewCell(c.Clone())})
	if err := c.Get().next.Write(func(p **gc.Gc[item]) { *p = d.Clone() }); err != nil {
		t.Fatal(err)
	}
	c.Drop()
	d.Drop()
	h.Collect()

	const want = `
# HELP rcgc_gc_allocations_total The total number of values allocated.
# TYPE rcgc_gc_allocations_total counter
rcgc_gc_allocations_total 3
# HELP rcgc_gc_collections_total The total number of completed collections.
# TYPE rcgc_gc_collections_total counter
rcgc_gc_collections_total 1
# HELP rcgc_gc_fast_frees_total The total number of values freed when their last handle was dropped.
# TYPE rcgc_gc_fast_frees_total counter
rcgc_gc_fast_frees_total 1
# HELP rcgc_gc_finalized_total The total number of finalizers run.
# TYPE rcgc_gc_finalized_total counter
rcgc_gc_finalized_total 3
# HELP rcgc_gc_live_bytes The approximate size of live values in bytes.
# TYPE rcgc_gc_live_bytes gauge
rcgc_gc_live_bytes 0
# HELP rcgc_gc_live_records The number of live values.
# TYPE rcgc_gc_live_records gauge
rcgc_gc_live_records 0
# HELP rcgc_gc_resurrected_total The total number of values revived by a finalizer.
# TYPE rcgc_gc_resurrected_total counter
rcgc_gc_resurrected_total 0
# HELP rcgc_gc_swept_total The total number of values reclaimed by collections.
# TYPE rcgc_gc_swept_total counter
rcgc_gc_swept_total 2
# HELP rcgc_gc_threshold The live value count that triggers the next collection.
# TYPE rcgc_gc_threshold gauge
rcgc_gc_threshold 1000
`
	err := testutil.CollectAndCompare(gcmetrics.NewCollector(h, "rcgc"), strings.NewReader(want),
		"rcgc_gc_allocations_total",
		"rcgc_gc_collections_total",
		"rcgc_gc_fast_frees_total",
		"rcgc_gc_finalized_total",
		"rcgc_gc_live_bytes",
		"rcgc_gc_live_records",
		"rcgc_gc_resurrected_total",
		"rcgc_gc_swept_total",
		"rcgc_gc_threshold",
	)
	if err != nil {
		t.Error(err)
	}
}

func TestCollectorLiveValues(t *testing.T) {
	h := gc.NewHeap(gc.DefaultConfig())
	c := gcmetrics.NewCollector(h, "")

	a := gc.NewIn(h, item{})
	defer a.Drop()
	b := gc.NewIn(h, item{})
	defer b.Drop()

	const want = `
# HELP gc_live_records The number of live values.
# TYPE gc_live_records gauge
gc_live_records 2
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want), "gc_live_records"); err != nil {
		t.Error(err)
	}
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(gcmetrics.NewCollector(gc.NewHeap(gc.DefaultConfig()), "app")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 10 {
		t.Errorf("GatherAndCount() = %d, %v; want 10 metrics", n, err)
	}
}

