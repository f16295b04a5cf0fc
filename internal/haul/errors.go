package haul

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicatePostingID = errors.New("posting id already registered")
	ErrQuantityOutOfRange = errors.New("quantity out of range")
	ErrUnknownCell        = errors.New("cell is not part of this allocator")
	ErrItemNotInPosting   = errors.New("item is not part of the posting")
	ErrNotRegistered      = errors.New("posting is not registered")
	ErrUnknownRegion      = errors.New("unknown region")
)

// PreconditionError marks programmer or integration mistakes (duplicate ids,
// foreign cells, items that do not belong to a posting). Callers should treat
// it as fatal for the operation that produced it rather than retry.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string { return fmt.Sprintf("haul: %s: %v", e.Op, e.Err) }
func (e *PreconditionError) Unwrap() error { return e.Err }
func (e *PreconditionError) Fatal() bool   { return true }

func precondition(op string, err error) error {
	return &PreconditionError{Op: op, Err: err}
}

// IsPrecondition reports whether err carries a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
