package order

import "fmt"

// OrderState implements the state pattern for the fulfilment lifecycle.
type OrderState interface {
	Status() Status
	Advance(o *Order, next Status) (OrderState, error)
	RefundsOnDelete() bool
}

func stateFor(s Status) (OrderState, error) {
	switch s {
	case StatusPending:
		return pendingState{}, nil
	case StatusProcessed:
		return processedState{}, nil
	case StatusDelivered:
		return deliveredState{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) Advance(o *Order, next Status) (OrderState, error) {
	switch next {
	case StatusProcessed:
		return moveTo(o, processedState{}), nil
	case StatusDelivered:
		return moveTo(o, deliveredState{}), nil
	}
	return nil, transitionError(StatusPending, next)
}

func (pendingState) RefundsOnDelete() bool { return true }

type processedState struct{}

func (processedState) Status() Status { return StatusProcessed }

func (processedState) Advance(o *Order, next Status) (OrderState, error) {
	if next == StatusDelivered {
		return moveTo(o, deliveredState{}), nil
	}
	return nil, transitionError(StatusProcessed, next)
}

func (processedState) RefundsOnDelete() bool { return true }

type deliveredState struct{}

func (deliveredState) Status() Status { return StatusDelivered }

func (deliveredState) Advance(_ *Order, next Status) (OrderState, error) {
	return nil, transitionError(StatusDelivered, next)
}

func (deliveredState) RefundsOnDelete() bool { return false }

func moveTo(o *Order, s OrderState) OrderState {
	o.Status = s.Status()
	o.touch()
	return s
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
}
