package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownElementType is returned when factory is not registered.
	ErrUnknownElementType = errors.New("unknown element type")
	// ErrDuplicateName is returned when a name is already taken.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrNotAChild is returned when element doesn't belong to the bin.
	ErrNotAChild = errors.New("not a child")
	// ErrCycle is returned when bin is added to itself or its descendant.
	ErrCycle = errors.New("bin hierarchy cycle")
	// ErrAlreadyLinked is returned when pad already has a peer.
	ErrAlreadyLinked = errors.New("already linked")
	// ErrNotLinked is returned when pads are not peers.
	ErrNotLinked = errors.New("not linked")
	// ErrWrongDirection is returned when source pad is linked to source
	// pad or sink pad to sink pad.
	ErrWrongDirection = errors.New("wrong pad direction")
	// ErrIncompatibleCapabilities is returned when pad capabilities
	// don't intersect.
	ErrIncompatibleCapabilities = errors.New("incompatible capabilities")
	// ErrNoPad is returned when element has no pad to satisfy request.
	ErrNoPad = errors.New("no such pad")
	// ErrStateChangeFailure is matched by every state change error.
	ErrStateChangeFailure = errors.New("state change failure")
	// ErrStateChangeTimeout is returned when state transition hook
	// didn't return in time.
	ErrStateChangeTimeout = errors.New("state change timeout")
	// ErrUnknownProperty is returned when element type has no such property.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrTypeMismatch is returned when value cannot be converted to
	// property type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrReadonlyProperty is returned on attempt to set read-only property.
	ErrReadonlyProperty = errors.New("read-only property")
	// ErrUnknownSignal is returned when element doesn't emit such signal.
	ErrUnknownSignal = errors.New("unknown signal")
	// ErrUnrecoverable should be wrapped by element behaviours to
	// terminate the pipeline.
	ErrUnrecoverable = errors.New("unrecoverable failure")
	// ErrTerminated is returned by Iterate after unrecoverable failure,
	// until pipeline is set to Null.
	ErrTerminated = errors.New("pipeline terminated")
)

// StateChangeError is returned when element failed to apply transition.
type StateChangeError struct {
	Element    string
	Transition Transition
	Err        error
}

func (e *StateChangeError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Element, e.Transition, e.Err)
}

// Unwrap returns the hook error.
func (e *StateChangeError) Unwrap() error {
	return e.Err
}

// Is makes every state change error match ErrStateChangeFailure.
func (e *StateChangeError) Is(target error) bool {
	return target == ErrStateChangeFailure
}

// StepError is returned by Iterate when element failed to process data.
type StepError struct {
	Element string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step failed: %v", e.Element, e.Err)
}

// Unwrap returns the original error.
func (e *StepError) Unwrap() error {
	return e.Err
}
