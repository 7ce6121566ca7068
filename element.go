package flow

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"weak"

	"github.com/rs/xid"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// Producer is implemented by behaviours which generate data. It's called
// once per scheduling pass. Sources return io.EOF when stream is over.
// Elements with sink pads are driven by Produce after their input was
// processed and may use it to emit data buffered internally.
type Producer interface {
	Produce(ctx *Context) error
}

// Chainer is implemented by behaviours which consume data received by sink
// pads.
type Chainer interface {
	Chain(ctx *Context, pad *Pad, b *Buffer) error
}

// EOSHandler is implemented by behaviours which need to handle the end of
// stream on sink pads. Such behaviours must call Context.EndOfStream when
// they are done. Other elements forward the end of stream once it was
// received by all sink pads.
type EOSHandler interface {
	EndOfStream(ctx *Context, pad *Pad) error
}

// PadRequester is implemented by behaviours which create pads on request.
// Empty name means that behaviour should pick the name.
type PadRequester interface {
	RequestPad(e *Element, name string) (*Pad, error)
}

// Node is a member of the bin: either element or bin.
type Node interface {
	Base() *Element
	Name() string
	State() State
	SetState(State) error
}

// Element is a processing unit of the pipeline. Element owns its pads,
// behaviour defines how it processes the data.
type Element struct {
	uid     string
	name    string
	factory string
	impl    interface{}

	pads  []*Pad
	state State
	eos   bool

	props   properties
	signals signals

	parent weak.Pointer[Bin]
	// hook records signals while state hook is running.
	hook atomic.Pointer[recorder]
	// bin is set when element is the base of the bin.
	bin *Bin
}

// NewElement creates an element without factory. Behaviour can implement
// any of Producer, Chainer, EOSHandler, StateChanger, PadRequester and
// Signaller interfaces. Provided pads are added to the element.
func NewElement(name string, impl interface{}, pads ...*Pad) (*Element, error) {
	var declared []string
	if s, ok := impl.(Signaller); ok {
		declared = s.Signals()
	}
	if name == "" {
		name = uniqueName("element")
	}
	e := newElement(name, fmt.Sprintf("%T", impl), declared)
	e.impl = impl
	for _, p := range pads {
		if err := e.AddPad(p); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func newElement(name, factory string, declared []string) *Element {
	if name == "" {
		name = uniqueName(factory)
	}
	props, _ := newProperties(nil)
	return &Element{
		uid:     xid.New().String(),
		name:    name,
		factory: factory,
		props:   props,
		signals: newSignals(declared),
	}
}

// Base returns element itself.
func (e *Element) Base() *Element {
	return e
}

// Name returns element name.
func (e *Element) Name() string {
	return e.name
}

// UID returns unique id of element.
func (e *Element) UID() string {
	return e.uid
}

// Factory returns the name of element type.
func (e *Element) Factory() string {
	return e.factory
}

// Impl returns the behaviour of element.
func (e *Element) Impl() interface{} {
	return e.impl
}

// State returns current state of element.
func (e *Element) State() State {
	return e.state
}

// IsEOS returns true if element reached the end of stream.
func (e *Element) IsEOS() bool {
	return e.eos
}

// Parent returns bin which contains element.
func (e *Element) Parent() *Bin {
	return e.parent.Value()
}

func (e *Element) parentElement() *Element {
	if b := e.Parent(); b != nil {
		return b.Element
	}
	return nil
}

func (e *Element) String() string {
	return e.name
}

// Pads returns all pads of element in order of addition.
func (e *Element) Pads() []*Pad {
	return append([]*Pad(nil), e.pads...)
}

// Pad returns pad by name or nil.
func (e *Element) Pad(name string) *Pad {
	p, _ := lo.Find(e.pads, func(p *Pad) bool {
		return p.name == name
	})
	return p
}

// SrcPads returns source pads of element.
func (e *Element) SrcPads() []*Pad {
	return e.padsOf(Src)
}

// SinkPads returns sink pads of element.
func (e *Element) SinkPads() []*Pad {
	return e.padsOf(Sink)
}

func (e *Element) padsOf(d Direction) []*Pad {
	return lo.Filter(e.pads, func(p *Pad, _ int) bool {
		return p.direction == d
	})
}

// AddPad adds pad to element and emits new_pad signal. Pads can be added
// at any state, handlers of new_pad are allowed to link it.
func (e *Element) AddPad(p *Pad) error {
	if e.Pad(p.name) != nil {
		return fmt.Errorf("%v: pad %q: %w", e, p.name, ErrDuplicateName)
	}
	if owner := p.Owner(); owner != nil {
		return fmt.Errorf("%v: pad %q is owned by %v", e, p.name, owner)
	}
	p.owner = weak.Make(e)
	e.pads = append(e.pads, p)
	structureChanged()
	e.logger().Debug(fmt.Sprintf("%v: new pad %v", e, p.name))
	return e.Emit(SignalNewPad, p)
}

// RemovePad unlinks pad and removes it from element.
func (e *Element) RemovePad(p *Pad) error {
	if !lo.Contains(e.pads, p) {
		return fmt.Errorf("%v: pad %q: %w", e, p.name, ErrNoPad)
	}
	if p.peer != nil {
		if err := p.Unlink(); err != nil {
			return err
		}
	}
	e.pads = lo.Without(e.pads, p)
	p.owner = weak.Pointer[Element]{}
	structureChanged()
	return e.Emit(SignalPadRemoved, p)
}

// RequestPad asks behaviour to create a new pad.
func (e *Element) RequestPad(name string) (*Pad, error) {
	r, ok := e.impl.(PadRequester)
	if !ok {
		return nil, fmt.Errorf("%v: request pad %q: %w", e, name, ErrNoPad)
	}
	p, err := r.RequestPad(e, name)
	if err != nil {
		return nil, err
	}
	if err := e.AddPad(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Link links free source pad of element to free compatible sink pad of
// destination. Pads are tried in order of addition, request pads are
// created if there are no free source pads.
func (e *Element) Link(dst Node) error {
	sink := dst.Base()
	_, requester := e.impl.(PadRequester)
	if (len(e.SrcPads()) == 0 && !requester) || len(sink.SinkPads()) == 0 {
		return fmt.Errorf("link %v to %v: %w", e, sink, ErrNoPad)
	}
	srcs := lo.Filter(e.SrcPads(), func(p *Pad, _ int) bool { return !p.IsLinked() })
	sinks := lo.Filter(sink.SinkPads(), func(p *Pad, _ int) bool { return !p.IsLinked() })
	if len(sinks) == 0 {
		return fmt.Errorf("link %v to %v: %w", e, sink, ErrAlreadyLinked)
	}

	var requested *Pad
	if len(srcs) == 0 {
		if !requester {
			return fmt.Errorf("link %v to %v: %w", e, sink, ErrAlreadyLinked)
		}
		p, err := e.RequestPad("")
		if err != nil {
			return err
		}
		requested = p
		srcs = append(srcs, p)
	}
	for _, src := range srcs {
		for _, s := range sinks {
			if src.Caps().CanIntersect(s.Caps()) {
				return Link(src, s)
			}
		}
	}
	if requested != nil {
		if err := e.RemovePad(requested); err != nil {
			return err
		}
	}
	return fmt.Errorf("link %v to %v: %w", e, sink, ErrIncompatibleCapabilities)
}

// LinkPads links named pads of two elements.
func (e *Element) LinkPads(srcPad string, dst Node, sinkPad string) error {
	src := e.Pad(srcPad)
	if src == nil {
		var err error
		if src, err = e.RequestPad(srcPad); err != nil {
			return err
		}
	}
	sink := dst.Base().Pad(sinkPad)
	if sink == nil {
		var err error
		if sink, err = dst.Base().RequestPad(sinkPad); err != nil {
			return err
		}
	}
	return Link(src, sink)
}

// Unlink breaks all links between source pads of element and sink pads of
// destination.
func (e *Element) Unlink(dst Node) error {
	sink := dst.Base()
	var unlinked bool
	for _, p := range e.SrcPads() {
		if p.peer == nil || p.peer.Owner() != sink {
			continue
		}
		if err := Unlink(p, p.peer); err != nil {
			return err
		}
		unlinked = true
	}
	if !unlinked {
		return fmt.Errorf("unlink %v from %v: %w", e, sink, ErrNotLinked)
	}
	return nil
}

// unlinkAll breaks links of all element pads.
func (e *Element) unlinkAll() error {
	for _, p := range e.pads {
		if p.peer == nil {
			continue
		}
		if err := p.Unlink(); err != nil {
			return err
		}
	}
	return nil
}

// SetState moves element to the target state through all intermediate
// states. State stays at the last reached state if transition fails.
func (e *Element) SetState(target State) error {
	for _, t := range steps(e.state, target) {
		if err := e.apply(t); err != nil {
			return err
		}
	}
	return nil
}

// apply executes a single transition of element.
func (e *Element) apply(t Transition) error {
	var emitted *recorder
	if sc, ok := e.impl.(StateChanger); ok {
		r, err := e.callHook(sc, t, e.timeout())
		if err != nil {
			e.logger().Warn(fmt.Sprintf("%v: %v failed: %v", e, t, err))
			if errors.Is(err, ErrUnrecoverable) {
				if p := e.pipeline(); p != nil {
					p.terminate(err)
				}
			}
			// pads added by the failed hook are still announced.
			return multierr.Append(&StateChangeError{Element: e.name, Transition: t, Err: err}, r.replay())
		}
		emitted = r
	}
	if t.From == Paused && t.To == Ready {
		e.flush()
	}
	e.state = t.To
	e.logger().Debug(fmt.Sprintf("%v is %v", e, t.To))
	if emitted != nil {
		if err := emitted.replay(); err != nil {
			return err
		}
	}
	return e.Emit(SignalStateChanged, t.From, t.To)
}

// flush drops data pending on element pads.
func (e *Element) flush() {
	for _, p := range e.pads {
		p.flush()
	}
	e.eos = false
}

// pipeline returns the pipeline which contains element.
func (e *Element) pipeline() *Pipeline {
	b := e.bin
	if b == nil {
		b = e.Parent()
	}
	for b != nil {
		if b.pipeline != nil {
			return b.pipeline
		}
		b = b.Parent()
	}
	return nil
}

func (e *Element) timeout() time.Duration {
	if p := e.pipeline(); p != nil {
		return p.timeout
	}
	return DefaultStateTimeout
}

func (e *Element) logger() Logger {
	if p := e.pipeline(); p != nil {
		return p.log
	}
	return defaultLogger
}
