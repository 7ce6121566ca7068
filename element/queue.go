package element

import (
	"context"
	"fmt"
	"io"

	"github.com/dudk/flow"
)

// Leaky policies of queue.
const (
	LeakyNo         = "no"
	LeakyUpstream   = "upstream"
	LeakyDownstream = "downstream"
)

// SignalOverrun is emitted by queue when it's full.
const SignalOverrun = "overrun"

var queueFactory = flow.Factory{
	Name:        "queue",
	Description: "Simple data queue",
	Properties: []flow.Property{
		{Name: "max_size_buffers", Blurb: "Max number of buffers in queue, 0 to disable", Kind: flow.KindInt, Default: 200},
		{Name: "leaky", Blurb: "Where the queue leaks, if at all: no, upstream or downstream", Kind: flow.KindString, Default: LeakyNo},
		{Name: "current_level_buffers", Blurb: "Current number of buffers in the queue", Kind: flow.KindInt, Default: 0, Readonly: true},
	},
	Signals: []string{SignalOverrun},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(sinkName, flow.Sink, flow.Any())); err != nil {
			return nil, err
		}
		if err := e.AddPad(flow.NewPad(srcName, flow.Src, flow.Any())); err != nil {
			return nil, err
		}
		return &queue{e: e}, nil
	},
}

// queue decouples upstream and downstream: it accepts a buffer on every
// pass and releases the oldest one when downstream has consumed the
// previous one.
type queue struct {
	e       *flow.Element
	buffers []*flow.Buffer
	eos     bool
}

func (q *queue) ChangeState(_ context.Context, t flow.Transition) error {
	if closing(t) {
		q.buffers, q.eos = nil, false
	}
	return nil
}

func (q *queue) Chain(_ *flow.Context, _ *flow.Pad, b *flow.Buffer) error {
	limit := flow.Value[int](q.e, "max_size_buffers")
	if limit > 0 && len(q.buffers) >= limit {
		if err := q.e.Emit(SignalOverrun); err != nil {
			return err
		}
		switch leaky := flow.Value[string](q.e, "leaky"); leaky {
		case LeakyUpstream:
			return nil
		case LeakyDownstream:
			q.buffers = q.buffers[1:]
		case LeakyNo:
		default:
			return fmt.Errorf("unknown leaky policy %q", leaky)
		}
	}
	q.buffers = append(q.buffers, b)
	return q.level()
}

func (q *queue) EndOfStream(_ *flow.Context, _ *flow.Pad) error {
	q.eos = true
	return nil
}

func (q *queue) Produce(ctx *flow.Context) error {
	if len(q.buffers) == 0 {
		if q.eos {
			return io.EOF
		}
		return nil
	}
	if peer := q.e.Pad(srcName).Peer(); peer != nil && peer.Queued() > 0 {
		return nil
	}
	b := q.buffers[0]
	q.buffers[0] = nil
	q.buffers = q.buffers[1:]
	ctx.Push(b)
	return q.level()
}

func (q *queue) level() error {
	return q.e.UpdateProperty("current_level_buffers", len(q.buffers))
}
