package collector

import (
	"errors"
	"fmt"
)

// Fatal conditions. They are never returned; they are raised as the Err of a
// *FatalError panic so callers can match them with errors.Is after recover.
var (
	// ErrReentrant reports an allocation, drop or collection from inside a
	// Trace, Finalize or Dispose hook.
	ErrReentrant = errors.New("collector re-entered from a trace, finalize or dispose hook")

	// ErrPoisoned reports use of a collector after a hook panicked during a
	// collection or a free.
	ErrPoisoned = errors.New("collector poisoned by an earlier panic")

	// ErrForeignHandle reports a managed value that owns a handle of another
	// collector.
	ErrForeignHandle = errors.New("handle belongs to a different heap")

	// ErrWrongGoroutine reports use of a confined collector from a goroutine
	// other than its owner.
	ErrWrongGoroutine = errors.New("heap used from a goroutine other than its owner")

	// ErrDanglingHandle reports a traced handle that was dropped or whose
	// record is already freed.
	ErrDanglingHandle = errors.New("traced handle refers to a dropped or freed record")

	// ErrRootedReclaim reports an unreachable record that still has roots.
	ErrRootedReclaim = errors.New("rooted record condemned by sweep")

	// ErrUseAfterFree reports use of a dropped handle or a freed record.
	ErrUseAfterFree = errors.New("use of a dropped handle or freed record")

	// ErrSweeping reports a dereference while a Dispose hook runs.
	ErrSweeping = errors.New("handle dereferenced during teardown")

	// ErrRootState reports a root or unroot that does not match the current
	// root state, or a count driven below zero.
	ErrRootState = errors.New("root state out of sync")
)

// FatalError is the panic value for violated collector invariants.
type FatalError struct {
	// Op is the operation that detected the violation ("new", "drop",
	// "collect", "mark", ...).
	Op string

	// Record is the allocation id involved, 0 if none.
	Record uint64

	// Err is one of the sentinel errors of this package.
	Err error
}

func (e *FatalError) Error() string {
	if e.Record != 0 {
		return fmt.Sprintf("rcgc: %s: record #%d: %v", e.Op, e.Record, e.Err)
	}
	return fmt.Sprintf("rcgc: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal panics with a *FatalError.
func Fatal(op string, r *Record, err error) {
	fe := &FatalError{Op: op, Err: err}
	if r != nil {
		fe.Record = r.id
	}
	panic(fe)
}
