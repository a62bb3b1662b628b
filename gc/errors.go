package gc

import (
	"errors"
	"fmt"

	"github.com/kolkov/rcgc/internal/gc/collector"
)

// FatalError is the panic value for violated heap invariants. Recover it and
// match the cause with errors.Is.
type FatalError = collector.FatalError

// Collector invariants, raised inside a *FatalError.
var (
	ErrReentrant      = collector.ErrReentrant
	ErrPoisoned       = collector.ErrPoisoned
	ErrForeignHandle  = collector.ErrForeignHandle
	ErrWrongGoroutine = collector.ErrWrongGoroutine
	ErrDanglingHandle = collector.ErrDanglingHandle
	ErrRootedReclaim  = collector.ErrRootedReclaim
	ErrUseAfterFree   = collector.ErrUseAfterFree
	ErrSweeping       = collector.ErrSweeping
	ErrRootState      = collector.ErrRootState
)

var (
	// ErrNotTraceable reports a managed type that neither implements
	// Traceable nor is provably free of handles.
	ErrNotTraceable = errors.New("type is not Traceable and may hold handles")

	// ErrBorrowConflict is matched by every *BorrowError.
	ErrBorrowConflict = errors.New("cell borrow conflict")

	// ErrGuardReleased reports use of a released or projected guard.
	ErrGuardReleased = errors.New("borrow guard already released")

	// ErrHeapStarted is returned by Configure once the default heap exists.
	ErrHeapStarted = errors.New("default heap already in use")

	// ErrHandleInUse is returned when decoding into a handle that already
	// refers to a value.
	ErrHandleInUse = errors.New("handle already refers to a value")
)

// BorrowError reports a borrow that conflicts with the cell's current state.
// The cell is left unchanged.
type BorrowError struct {
	Attempted BorrowState
	Current   BorrowState
}

func (e *BorrowError) Error() string {
	return fmt.Sprintf("rcgc: cannot borrow cell for %s: cell is %s", e.Attempted, e.Current)
}

// Unwrap returns ErrBorrowConflict.
func (e *BorrowError) Unwrap() error {
	return ErrBorrowConflict
}
