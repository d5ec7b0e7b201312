package order

import (
	"errors"
	"fmt"
)

var ErrInvariantViolation = errors.New("order: invariant violation")

// InvariantViolationError means a store rejected a mutation that the engine had
// already validated under lock. It signals a concurrency-control defect; the
// transaction is rolled back.
type InvariantViolationError struct {
	Op  string
	Err error
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("order: invariant violation during %s: %v", e.Op, e.Err)
}

func (e *InvariantViolationError) Unwrap() error { return e.Err }

func (e *InvariantViolationError) Is(target error) bool { return target == ErrInvariantViolation }
