package flow

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dudk/flow/metric"
)

// generation is incremented on every change of pipeline graph. Pipelines
// rebuild cached scheduling order when it changes.
var generation atomic.Uint64

func structureChanged() {
	generation.Add(1)
}

// Context is passed to element behaviours during the scheduling pass.
type Context struct {
	element  *Element
	pipeline *Pipeline
	measure  metric.MeasureFunc
}

// Element returns the element which is processed.
func (c *Context) Element() *Element {
	return c.element
}

// Pad returns element pad by name or nil.
func (c *Context) Pad(name string) *Pad {
	return c.element.Pad(name)
}

// Push sends buffer to all source pads of element.
func (c *Context) Push(b *Buffer) {
	for _, p := range c.element.SrcPads() {
		c.send(p, b)
	}
}

// PushPad sends buffer to a single source pad of element.
func (c *Context) PushPad(p *Pad, b *Buffer) error {
	if p.Owner() != c.element {
		return fmt.Errorf("%v: push to %v: %w", c.element, p, ErrNoPad)
	}
	if p.direction != Src {
		return fmt.Errorf("%v: push to %v: %w", c.element, p, ErrWrongDirection)
	}
	c.send(p, b)
	return nil
}

func (c *Context) send(p *Pad, b *Buffer) {
	if c.measure != nil {
		c.measure(int64(b.Size()))
	}
	p.push(item{buffer: b})
}

// EndOfStream sends end of stream to all source pads and emits eos
// signal. Element is not scheduled after that.
func (c *Context) EndOfStream() error {
	e := c.element
	if e.eos {
		return nil
	}
	e.eos = true
	for _, p := range e.SrcPads() {
		p.push(item{eos: true})
	}
	c.Logger().Debug(fmt.Sprintf("%v: end of stream", e))
	return e.Emit(SignalEOS)
}

// RunningTime returns running time of the pipeline.
func (c *Context) RunningTime() time.Duration {
	return c.pipeline.RunningTime()
}

// Clock returns the pipeline clock.
func (c *Context) Clock() clock.Clock {
	return c.pipeline.clock
}

// Logger returns the pipeline logger.
func (c *Context) Logger() Logger {
	return c.pipeline.log
}

// Iterate executes a single scheduling pass. Every playing source produces
// at most one buffer and every other element consumes at most one item
// per sink pad. Returns false when pipeline is not playing or all data
// was processed. Behaviour or signal handler failure stops the pass and
// returns *StepError.
func (p *Pipeline) Iterate() (bool, error) {
	if p.terminated != nil {
		return false, fmt.Errorf("%v: %w: %w", p, ErrTerminated, p.terminated)
	}
	if p.Element.state != Playing {
		return false, nil
	}
	order := p.schedule()
	for _, e := range order {
		// element could be removed by signal handler during the pass.
		if e.pipeline() != p {
			continue
		}
		if err := p.step(e); err != nil {
			if isTerminal(err) {
				p.terminate(err)
			}
			p.log.Warn(fmt.Sprintf("%v: %v", e, err))
			return false, &StepError{Element: e.name, Err: err}
		}
	}
	return p.pending(), nil
}

// step processes a single element.
func (p *Pipeline) step(e *Element) error {
	if e.state != Playing || e.eos {
		return nil
	}
	ctx := &Context{element: e, pipeline: p, measure: p.meter(e)}
	sinks := e.SinkPads()
	for _, pad := range sinks {
		it, ok := pad.pop()
		if !ok {
			continue
		}
		if it.eos {
			pad.eos = true
			if h, ok := e.impl.(EOSHandler); ok {
				if err := h.EndOfStream(ctx, pad); err != nil {
					return err
				}
			}
			continue
		}
		if c, ok := e.impl.(Chainer); ok {
			if err := c.Chain(ctx, pad, it.buffer); err != nil {
				return err
			}
		}
	}
	if producer, ok := e.impl.(Producer); ok && !e.eos {
		if err := producer.Produce(ctx); err != nil {
			if !errors.Is(err, io.EOF) {
				return err
			}
			return ctx.EndOfStream()
		}
	}
	if _, ok := e.impl.(EOSHandler); !ok && len(sinks) > 0 && allEOS(sinks) {
		return ctx.EndOfStream()
	}
	return nil
}

// pending returns true if there is any work left for the next pass.
func (p *Pipeline) pending() bool {
	for _, e := range p.schedule() {
		if e.state != Playing {
			continue
		}
		sinks := e.SinkPads()
		for _, pad := range sinks {
			if len(pad.queue) > 0 {
				return true
			}
		}
		if e.eos {
			continue
		}
		if _, ok := e.impl.(Producer); ok && len(sinks) == 0 {
			return true
		}
		// received the end of stream, but didn't forward it yet.
		if len(sinks) > 0 && allEOS(sinks) {
			return true
		}
	}
	return false
}

func allEOS(pads []*Pad) bool {
	for _, p := range pads {
		if !p.eos {
			return false
		}
	}
	return true
}

// schedule returns leaf elements in stable topological order. Cached order
// is used until graph changes. Elements which form a cycle are appended in
// order of addition.
func (p *Pipeline) schedule() []*Element {
	gen := generation.Load()
	if p.scheduled && p.generation == gen {
		return p.order
	}
	elements := p.Elements()
	index := make(map[*Element]int, len(elements))
	for i, e := range elements {
		index[e] = i
	}
	downstream := make([][]int, len(elements))
	indegree := make([]int, len(elements))
	for i, e := range elements {
		for _, pad := range e.SrcPads() {
			out := pad.outward()
			if out.peer == nil {
				continue
			}
			j, ok := index[out.peer.inward().Owner()]
			if !ok || j == i {
				continue
			}
			downstream[i] = append(downstream[i], j)
			indegree[j]++
		}
	}

	order := make([]*Element, 0, len(elements))
	done := make([]bool, len(elements))
	for len(order) < len(elements) {
		next := -1
		for i := range elements {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			break
		}
		done[next] = true
		order = append(order, elements[next])
		for _, j := range downstream[next] {
			indegree[j]--
		}
	}
	for i, e := range elements {
		if !done[i] {
			order = append(order, e)
		}
	}
	p.log.Debug(fmt.Sprintf("%v: scheduling order %v", p, order))

	p.order, p.generation, p.scheduled = order, gen, true
	return order
}
