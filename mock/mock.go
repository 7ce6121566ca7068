// Package mock provides mocks for pipeline elements and allows to execute integration tests.
package mock

import (
	"context"
	"io"

	"github.com/dudk/flow"
)

// Source mocks a source element. It produces Limit buffers of Size bytes
// filled with Value.
type Source struct {
	counter
	Limit       int
	Size        int
	Value       byte
	Caps        flow.Caps
	ErrorOnCall error
	Hooks
}

// Element returns new element with source behaviour and "src" pad.
func (m *Source) Element(name string) (*flow.Element, error) {
	return flow.NewElement(name, m, flow.NewPad("src", flow.Src, caps(m.Caps)))
}

// Produce implements flow.Producer.
func (m *Source) Produce(ctx *flow.Context) error {
	if m.ErrorOnCall != nil {
		return m.ErrorOnCall
	}
	if m.messages >= m.Limit {
		return io.EOF
	}
	data := make([]byte, m.Size)
	for i := range data {
		data[i] = m.Value
	}
	b := flow.NewBuffer(data)
	b.Offset = int64(m.bytes)
	m.advance(len(data))
	ctx.Push(b)
	return nil
}

// Filter mocks an element which passes buffers through.
type Filter struct {
	counter
	Caps        flow.Caps
	ErrorOnCall error
	Hooks
}

// Element returns new element with filter behaviour, "sink" and "src" pads.
func (m *Filter) Element(name string) (*flow.Element, error) {
	return flow.NewElement(name, m,
		flow.NewPad("sink", flow.Sink, caps(m.Caps)),
		flow.NewPad("src", flow.Src, caps(m.Caps)),
	)
}

// Chain implements flow.Chainer.
func (m *Filter) Chain(ctx *flow.Context, _ *flow.Pad, b *flow.Buffer) error {
	if m.ErrorOnCall != nil {
		return m.ErrorOnCall
	}
	m.advance(b.Size())
	ctx.Push(b)
	return nil
}

// Sink mocks up a sink element.
// Buffers are not thread-safe, so should not be checked while pipeline is running.
type Sink struct {
	counter
	buffers     []*flow.Buffer
	Discard     bool
	Caps        flow.Caps
	ErrorOnCall error
	Hooks
}

// Element returns new element with sink behaviour and "sink" pad.
func (m *Sink) Element(name string) (*flow.Element, error) {
	return flow.NewElement(name, m, flow.NewPad("sink", flow.Sink, caps(m.Caps)))
}

// Chain implements flow.Chainer.
func (m *Sink) Chain(_ *flow.Context, _ *flow.Pad, b *flow.Buffer) error {
	if m.ErrorOnCall != nil {
		return m.ErrorOnCall
	}
	if !m.Discard {
		m.buffers = append(m.buffers, b)
	}
	m.advance(b.Size())
	return nil
}

// Buffers returns buffers received by sink.
func (m *Sink) Buffers() []*flow.Buffer {
	return m.buffers
}

// Hooks allows to mock state transition hooks. Counters are reset on
// Null->Ready transition.
type Hooks struct {
	Transitions []flow.Transition

	// FailOn is a transition which returns ErrorOnTransition.
	FailOn            flow.Transition
	ErrorOnTransition error
	// Block makes FailOn transition wait until context is done.
	Block bool
}

// ChangeState implements flow.StateChanger.
func (h *Hooks) ChangeState(ctx context.Context, t flow.Transition) error {
	if t == h.FailOn {
		if h.Block {
			<-ctx.Done()
			return ctx.Err()
		}
		if h.ErrorOnTransition != nil {
			return h.ErrorOnTransition
		}
	}
	h.Transitions = append(h.Transitions, t)
	return nil
}

// ChangeState implements flow.StateChanger.
func (m *Source) ChangeState(ctx context.Context, t flow.Transition) error {
	if err := m.Hooks.ChangeState(ctx, t); err != nil {
		return err
	}
	m.resetOn(t)
	return nil
}

// ChangeState implements flow.StateChanger.
func (m *Filter) ChangeState(ctx context.Context, t flow.Transition) error {
	if err := m.Hooks.ChangeState(ctx, t); err != nil {
		return err
	}
	m.resetOn(t)
	return nil
}

// ChangeState implements flow.StateChanger.
func (m *Sink) ChangeState(ctx context.Context, t flow.Transition) error {
	if err := m.Hooks.ChangeState(ctx, t); err != nil {
		return err
	}
	if m.resetOn(t) {
		m.buffers = nil
	}
	return nil
}

func caps(c flow.Caps) flow.Caps {
	if c.IsEmpty() {
		return flow.Any()
	}
	return c
}

// counter counts messages and bytes.
type counter struct {
	messages int
	bytes    int
}

// resetOn resets counter's metrics when element allocates resources.
func (c *counter) resetOn(t flow.Transition) bool {
	if t.From != flow.Null {
		return false
	}
	c.messages, c.bytes = 0, 0
	return true
}

// advance counter's metrics.
func (c *counter) advance(size int) {
	c.messages++
	c.bytes += size
}

// Count returns messages and bytes metrics.
func (c *counter) Count() (int, int) {
	return c.messages, c.bytes
}
