package flow

import (
	"fmt"
	"weak"
)

// Direction of the pad.
type Direction int

const (
	// Src pads produce data.
	Src Direction = iota
	// Sink pads consume data.
	Sink
)

func (d Direction) String() string {
	if d == Src {
		return "src"
	}
	return "sink"
}

// PadPolicy defines what happens to the data pushed into unlinked pad.
type PadPolicy int

const (
	// Drop discards the data and counts it.
	Drop PadPolicy = iota
	// Hold keeps the data until pad is linked.
	Hold
)

// Pad is a named connection point of element. Linked pads are peers of
// each other, pad has at most one peer at any time.
type Pad struct {
	name       string
	direction  Direction
	caps       Caps
	negotiated Caps
	policy     PadPolicy

	peer  *Pad
	owner weak.Pointer[Element]
	// target is set for ghost pads, it's the internal pad exposed by bin.
	target *Pad
	// ghost is set for pads exposed by bin.
	ghost *Pad

	queue   []item // data received by sink pad
	held    []item // data pushed to unlinked src pad with Hold policy
	eos     bool
	dropped int
}

// NewPad returns new unlinked pad. Use Any caps for pads which accept
// everything.
func NewPad(name string, direction Direction, caps Caps) *Pad {
	return &Pad{
		name:      name,
		direction: direction,
		caps:      caps,
	}
}

// Name returns pad name.
func (p *Pad) Name() string {
	return p.name
}

// Direction returns pad direction.
func (p *Pad) Direction() Direction {
	return p.direction
}

// Caps returns capabilities of the pad. Ghost pads expose caps of their
// targets.
func (p *Pad) Caps() Caps {
	if p.target != nil {
		return p.target.Caps()
	}
	return p.caps
}

// Negotiated returns caps agreed between peers.
func (p *Pad) Negotiated() Caps {
	return p.negotiated
}

// Peer returns linked pad or nil.
func (p *Pad) Peer() *Pad {
	return p.peer
}

// IsLinked returns true if pad has a peer.
func (p *Pad) IsLinked() bool {
	return p.peer != nil
}

// Owner returns element which owns the pad.
func (p *Pad) Owner() *Element {
	return p.owner.Value()
}

// Target returns internal pad exposed by ghost pad.
func (p *Pad) Target() *Pad {
	return p.target
}

// Policy returns unlinked policy of the pad.
func (p *Pad) Policy() PadPolicy {
	return p.policy
}

// SetPolicy sets what happens to data pushed while pad is unlinked.
func (p *Pad) SetPolicy(policy PadPolicy) {
	p.policy = policy
}

// Dropped returns number of buffers dropped because pad was unlinked.
func (p *Pad) Dropped() int {
	return p.dropped
}

// Queued returns number of items waiting to be processed by sink pad.
func (p *Pad) Queued() int {
	return len(p.queue)
}

// IsEOS returns true if end of stream was sent by src pad or received by
// sink pad.
func (p *Pad) IsEOS() bool {
	return p.eos
}

func (p *Pad) String() string {
	if e := p.Owner(); e != nil {
		return fmt.Sprintf("%s:%s", e.Name(), p.name)
	}
	return p.name
}

// Link links pad to peer, direction of pads is resolved.
func (p *Pad) Link(peer *Pad) error {
	if p.direction == Sink {
		return Link(peer, p)
	}
	return Link(p, peer)
}

// Unlink unlinks pad from its peer.
func (p *Pad) Unlink() error {
	if p.peer == nil {
		return fmt.Errorf("unlink %v: %w", p, ErrNotLinked)
	}
	if p.direction == Sink {
		return Unlink(p.peer, p)
	}
	return Unlink(p, p.peer)
}

// Link makes src and sink pads peers. Pads must be unlinked and their
// capabilities must intersect. Linking doesn't affect state of elements
// and is allowed at any time.
func Link(src, sink *Pad) error {
	if src.direction != Src || sink.direction != Sink {
		return fmt.Errorf("link %v to %v: %w", src, sink, ErrWrongDirection)
	}
	if src.peer != nil || sink.peer != nil {
		return fmt.Errorf("link %v to %v: %w", src, sink, ErrAlreadyLinked)
	}
	caps := src.Caps().Intersect(sink.Caps())
	if caps.IsEmpty() {
		return fmt.Errorf("link %v [%v] to %v [%v]: %w", src, src.Caps(), sink, sink.Caps(), ErrIncompatibleCapabilities)
	}
	src.peer, sink.peer = sink, src
	src.negotiated, sink.negotiated = caps, caps
	structureChanged()

	// deliver the data which was pushed while pad was unlinked.
	held := src.held
	src.held = nil
	for _, it := range held {
		src.deliver(it)
	}
	return nil
}

// Unlink breaks the link between src and sink pads.
func Unlink(src, sink *Pad) error {
	if src.peer != sink || sink.peer != src {
		return fmt.Errorf("unlink %v from %v: %w", src, sink, ErrNotLinked)
	}
	src.peer, sink.peer = nil, nil
	src.negotiated, sink.negotiated = Caps{}, Caps{}
	structureChanged()
	return nil
}

// push sends item downstream. Nothing is sent after end of stream.
func (p *Pad) push(it item) {
	if p.eos {
		return
	}
	if it.eos {
		p.eos = true
	}
	p.outward().deliver(it)
}

// deliver puts item into the queue of the peer or applies the unlinked
// policy.
func (p *Pad) deliver(it item) {
	if p.peer == nil {
		switch {
		case p.policy == Hold:
			p.held = append(p.held, it)
		case !it.eos:
			p.dropped++
		}
		return
	}
	in := p.peer.inward()
	in.queue = append(in.queue, it)
}

// outward returns the outermost pad which carries the data of p.
func (p *Pad) outward() *Pad {
	for p.peer == nil && p.ghost != nil {
		p = p.ghost
	}
	return p
}

// inward returns the innermost pad which receives the data of p.
func (p *Pad) inward() *Pad {
	for p.target != nil {
		p = p.target
	}
	return p
}

func (p *Pad) pop() (item, bool) {
	if len(p.queue) == 0 {
		return item{}, false
	}
	it := p.queue[0]
	p.queue[0] = item{}
	p.queue = p.queue[1:]
	return it, true
}

// flush drops all pending data and resets end of stream.
func (p *Pad) flush() {
	p.queue, p.held = nil, nil
	p.eos = false
}
