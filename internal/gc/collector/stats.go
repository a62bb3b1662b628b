package collector

import (
	"sync/atomic"
	"time"
)

// Stats is a snapshot of collector statistics.
type Stats struct {
	Allocations uint64        // Records ever registered.
	FastFrees   uint64        // Records freed because their strong count hit zero.
	Swept       uint64        // Records reclaimed by collections.
	Finalized   uint64        // Finalize hooks run.
	Resurrected uint64        // Records revived by a finalizer.
	Collections uint64        // Completed collections.
	Live        int64         // Registered records.
	LiveBytes   int64         // Approximate size of registered values.
	Threshold   int64         // Current collection threshold.
	LastPause   time.Duration // Duration of the last collection.
}

// counters holds the statistics. Writers are confined to the owner
// goroutine, readers may be anywhere.
type counters struct {
	allocations atomic.Uint64
	fastFrees   atomic.Uint64
	swept       atomic.Uint64
	finalized   atomic.Uint64
	resurrected atomic.Uint64
	collections atomic.Uint64
	live        atomic.Int64
	liveBytes   atomic.Int64
	threshold   atomic.Int64
	lastPause   atomic.Int64
}

func (s *counters) snapshot() Stats {
	return Stats{
		Allocations: s.allocations.Load(),
		FastFrees:   s.fastFrees.Load(),
		Swept:       s.swept.Load(),
		Finalized:   s.finalized.Load(),
		Resurrected: s.resurrected.Load(),
		Collections: s.collections.Load(),
		Live:        s.live.Load(),
		LiveBytes:   s.liveBytes.Load(),
		Threshold:   s.threshold.Load(),
		LastPause:   time.Duration(s.lastPause.Load()),
	}
}
