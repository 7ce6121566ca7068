package flow

import (
	"fmt"
	"sort"
	"sync"
)

// Signals emitted by every element.
const (
	// SignalNewPad is emitted with new *Pad when pad is added.
	SignalNewPad = "new_pad"
	// SignalPadRemoved is emitted with removed *Pad.
	SignalPadRemoved = "pad_removed"
	// SignalEOS is emitted when element reached the end of stream.
	SignalEOS = "eos"
	// SignalNotify is emitted with property name when property is set.
	SignalNotify = "notify"
	// SignalDeepNotify is emitted by element and all its ancestors with
	// origin *Element and property name when property is set.
	SignalDeepNotify = "deep_notify"
	// SignalStateChanged is emitted with old and new State.
	SignalStateChanged = "state_changed"
)

// Signals emitted by bins.
const (
	// SignalElementAdded is emitted with added *Element.
	SignalElementAdded = "element_added"
	// SignalElementRemoved is emitted with removed *Element.
	SignalElementRemoved = "element_removed"
)

// SignalHandoff is emitted by elements which hand buffers over. Arguments
// are *Buffer and *Pad.
const SignalHandoff = "handoff"

var elementSignals = []string{
	SignalNewPad,
	SignalPadRemoved,
	SignalEOS,
	SignalNotify,
	SignalDeepNotify,
	SignalStateChanged,
}

// Handler is a signal handler. Returned error aborts the emission and it's
// returned to the emitter.
type Handler func(sender *Element, args ...interface{}) error

// HandlerID identifies connected handler.
type HandlerID uint64

// Signaller is implemented by behaviours which emit their own signals.
type Signaller interface {
	Signals() []string
}

type handlerEntry struct {
	id      HandlerID
	handler Handler
}

// signals is a table of handlers mapped to signal names.
type signals struct {
	names    map[string]struct{}
	handlers map[string][]handlerEntry
	next     HandlerID
}

func newSignals(names ...[]string) signals {
	s := signals{
		names:    make(map[string]struct{}),
		handlers: make(map[string][]handlerEntry),
	}
	s.declare(elementSignals...)
	for _, n := range names {
		s.declare(n...)
	}
	return s
}

func (s *signals) declare(names ...string) {
	for _, name := range names {
		s.names[name] = struct{}{}
	}
}

// Connect adds handler to the signal. Handlers are called in order of
// connection.
func (e *Element) Connect(signal string, h Handler) (HandlerID, error) {
	if _, ok := e.signals.names[signal]; !ok {
		return 0, fmt.Errorf("%v: %q: %w", e, signal, ErrUnknownSignal)
	}
	e.signals.next++
	id := e.signals.next
	e.signals.handlers[signal] = append(e.signals.handlers[signal], handlerEntry{id: id, handler: h})
	return id, nil
}

// Disconnect removes handler. Returns false if handler is not connected.
func (e *Element) Disconnect(id HandlerID) bool {
	for signal, entries := range e.signals.handlers {
		for i := range entries {
			if entries[i].id != id {
				continue
			}
			e.signals.handlers[signal] = append(entries[:i:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// Emit calls all handlers of the signal synchronously. First handler
// error stops the emission. Signals emitted while the state hook of
// element runs are delivered by SetState after the hook returns.
func (e *Element) Emit(signal string, args ...interface{}) error {
	return e.emitOn(e, signal, args...)
}

// emitOn emits signal of sender on behalf of element e. It's recorded if
// the state hook of e is running.
func (e *Element) emitOn(sender *Element, signal string, args ...interface{}) error {
	if _, ok := sender.signals.names[signal]; !ok {
		return fmt.Errorf("%v: emit %q: %w", sender, signal, ErrUnknownSignal)
	}
	if r := e.hook.Load(); r != nil {
		r.record(emission{sender: sender, signal: signal, args: args})
		return nil
	}
	return sender.dispatch(signal, args...)
}

func (e *Element) dispatch(signal string, args ...interface{}) error {
	// handlers may connect and disconnect during emission.
	entries := e.signals.handlers[signal]
	if len(entries) == 0 {
		return nil
	}
	entries = append([]handlerEntry(nil), entries...)
	for _, entry := range entries {
		if err := entry.handler(e, args...); err != nil {
			return fmt.Errorf("%v: %s handler: %w", e, signal, err)
		}
	}
	return nil
}

// Signals returns names of signals emitted by element.
func (e *Element) Signals() []string {
	names := make([]string, 0, len(e.signals.names))
	for name := range e.signals.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// emission is a signal emitted by state hook.
type emission struct {
	sender *Element
	signal string
	args   []interface{}
}

// recorder keeps signals emitted by state hook until it returns.
type recorder struct {
	mu        sync.Mutex
	emissions []emission
	discarded bool
}

func (r *recorder) record(em emission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.discarded {
		r.emissions = append(r.emissions, em)
	}
}

// discard drops recorded emissions and all emissions which follow.
func (r *recorder) discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emissions, r.discarded = nil, true
}

// replay delivers recorded emissions in order of emission.
func (r *recorder) replay() error {
	r.mu.Lock()
	emissions := r.emissions
	r.emissions = nil
	r.mu.Unlock()
	for _, em := range emissions {
		if err := em.sender.dispatch(em.signal, em.args...); err != nil {
			return err
		}
	}
	return nil
}
