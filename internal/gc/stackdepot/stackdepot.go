// Package stackdepot stores deduplicated allocation-site stacks.
//
// When Config.RecordAllocSites is enabled every managed allocation captures
// the stack of its caller. Identical stacks are stored once, keyed by a 64-bit
// FNV-1a hash of the program counters, and the record only keeps the hash.
// Heap snapshots resolve the hash back to a readable site so a leaked cycle
// can be traced to the code that built it.
//
// Design:
//   - Fixed-size stacks (8 frames, 64 bytes per stack)
//   - Hash-based deduplication (FNV-1a)
//   - Global sync.Map storage, shared by all heaps
//
// Usage:
//
//	id := stackdepot.Capture(1)
//	...
//	fmt.Print(stackdepot.Lookup(id).Format())
package stackdepot

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"runtime"
	"strings"
	"sync"
)

// MaxFrames is the maximum number of frames captured per allocation site.
const MaxFrames = 8

// internalPrefix marks frames that belong to the collector itself. They are
// never interesting in an allocation site and are dropped when formatting.
const internalPrefix = "github.com/kolkov/rcgc/"

// Stack is a captured allocation-site stack.
type Stack struct {
	PC [MaxFrames]uintptr
}

// depot maps uint64 (hash) → *Stack.
var depot sync.Map

// Capture records the caller's stack and returns its hash.
//
// skip is the number of frames above Capture's caller to omit, so a
// constructor can pass 1 to attribute the allocation to its own caller.
// Returns 0 if no stack is available.
//
// Thread Safety: Safe for concurrent calls from multiple goroutines.
func Capture(skip int) uint64 {
	var pcs [MaxFrames]uintptr
	// runtime.Callers + Capture itself.
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return 0
	}

	hash := hashPCs(pcs[:n])
	if _, exists := depot.Load(hash); exists {
		return hash
	}
	depot.Store(hash, &Stack{PC: pcs})

	return hash
}

// Lookup returns the stack stored under hash, or nil.
func Lookup(hash uint64) *Stack {
	if hash == 0 {
		return nil
	}

	val, ok := depot.Load(hash)
	if !ok {
		return nil
	}

	return val.(*Stack)
}

func hashPCs(pcs []uintptr) uint64 {
	h := fnv.New64a()

	var buf [8]byte
	for _, pc := range pcs {
		binary.LittleEndian.PutUint64(buf[:], uint64(pc))
		_, _ = h.Write(buf[:]) // hash.Hash never returns an error.
	}

	return h.Sum64()
}

// Format renders the stack one frame per line, skipping runtime and
// collector frames:
//
//	main.buildRing()
//	    /path/to/main.go:45
//
// Returns "  <unknown>\n" for a nil stack.
func (s *Stack) Format() string {
	if s == nil {
		return "  <unknown>\n"
	}

	var buf strings.Builder
	frames := runtime.CallersFrames(trimZero(s.PC[:]))
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}

		if !skipFrame(frame.Function, frame.File) {
			fmt.Fprintf(&buf, "  %s()\n", frame.Function)
			fmt.Fprintf(&buf, "      %s:%d\n", frame.File, frame.Line)
		}

		if !more {
			break
		}
	}

	if buf.Len() == 0 {
		return "  <internal>\n"
	}

	return buf.String()
}

// Site returns the first user frame as "function file:line", or "" when
// every frame is internal.
func (s *Stack) Site() string {
	if s == nil {
		return ""
	}

	frames := runtime.CallersFrames(trimZero(s.PC[:]))
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			return ""
		}
		if !skipFrame(frame.Function, frame.File) {
			return fmt.Sprintf("%s %s:%d", frame.Function, frame.File, frame.Line)
		}
		if !more {
			return ""
		}
	}
}

func skipFrame(function, file string) bool {
	if strings.HasPrefix(function, "runtime.") {
		return true
	}
	// Keep test and example frames of this module, drop library frames.
	return strings.HasPrefix(function, internalPrefix) &&
		!strings.HasSuffix(file, "_test.go") &&
		!strings.HasPrefix(function, internalPrefix+"examples/")
}

func trimZero(pcs []uintptr) []uintptr {
	for i, pc := range pcs {
		if pc == 0 {
			return pcs[:i]
		}
	}
	return pcs
}

// Reset clears the depot (for testing).
//
// Thread Safety: NOT safe for concurrent calls.
func Reset() {
	depot = sync.Map{}
}

// Stats returns the number of unique stacks and their approximate footprint.
//
// Performance: O(N), do not call on a hot path.
func Stats() (uniqueStacks int, totalMemory int64) {
	depot.Range(func(_, _ any) bool {
		uniqueStacks++
		return true
	})

	// 64 bytes of PCs plus ~32 bytes of sync.Map entry overhead.
	const bytesPerStack = 64 + 32
	totalMemory = int64(uniqueStacks) * bytesPerStack

	return uniqueStacks, totalMemory
}
