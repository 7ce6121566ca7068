package flow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State identifies one of the possible states element can be in.
type State int

// States are ordered, element moves between adjacent states only.
const (
	// Null is the initial state, no resources are allocated.
	Null State = iota
	// Ready means that element allocated resources.
	Ready
	// Paused means that element accepts data, but doesn't process it.
	Paused
	// Playing means that data is flowing.
	Playing
)

// DefaultStateTimeout bounds transition hooks of elements which are not
// in a pipeline.
const DefaultStateTimeout = 5 * time.Second

func (s State) String() string {
	switch s {
	case Null:
		return "NULL"
	case Ready:
		return "READY"
	case Paused:
		return "PAUSED"
	case Playing:
		return "PLAYING"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState returns state for its name.
func ParseState(s string) (State, error) {
	for st := Null; st <= Playing; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return Null, fmt.Errorf("unknown state %q", s)
}

// Transition is a change between two adjacent states.
type Transition struct {
	From State
	To   State
}

func (t Transition) String() string {
	return fmt.Sprintf("%v->%v", t.From, t.To)
}

// Upward returns true if transition moves towards Playing.
func (t Transition) Upward() bool {
	return t.To > t.From
}

// StateChanger is implemented by behaviours which need to react on state
// transitions. Context is cancelled when transition timeout is reached,
// implementations must return as soon as possible after that.
type StateChanger interface {
	ChangeState(ctx context.Context, t Transition) error
}

// steps returns ordered sequence of transitions between two states.
func steps(from, to State) []Transition {
	if from == to {
		return nil
	}
	step := State(1)
	if to < from {
		step = -1
	}
	ts := make([]Transition, 0, abs(int(to-from)))
	for s := from; s != to; s += step {
		ts = append(ts, Transition{From: s, To: s + step})
	}
	return ts
}

// callHook executes transition hook of element bounded by timeout.
// Signals emitted by element while the hook runs are recorded, they are
// returned to be delivered on the calling goroutine. Signals of the hook
// which timed out are dropped.
func (e *Element) callHook(sc StateChanger, t Transition, timeout time.Duration) (*recorder, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	r := &recorder{}
	e.hook.Store(r)
	errc := make(chan error, 1)
	go func() {
		err := sc.ChangeState(ctx, t)
		e.hook.CompareAndSwap(r, nil)
		errc <- err
	}()
	select {
	case err := <-errc:
		if errors.Is(err, context.DeadlineExceeded) {
			r.discard()
			return r, ErrStateChangeTimeout
		}
		return r, err
	case <-ctx.Done():
		r.discard()
		return r, ErrStateChangeTimeout
	}
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
