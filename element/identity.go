package element

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dudk/flow"
)

// ErrIdentity is returned by identity element after error_after buffers.
var ErrIdentity = errors.New("identity: error after")

var identityFactory = flow.Factory{
	Name:        "identity",
	Description: "Pass data without modification",
	Properties: []flow.Property{
		{Name: "sleep_time", Blurb: "Time to sleep before pushing every buffer", Kind: flow.KindDuration, Default: 0},
		{Name: "error_after", Blurb: "Fail after N buffers, -1 to never fail", Kind: flow.KindInt, Default: -1},
		{Name: propSilent, Blurb: "Don't produce last_message events", Kind: flow.KindBool, Default: true},
		{Name: propSignalHandoffs, Blurb: "Send a signal before pushing the buffer", Kind: flow.KindBool, Default: true},
		{Name: propLastMessage, Blurb: "The last status message", Kind: flow.KindString, Readonly: true},
	},
	Signals: []string{flow.SignalHandoff},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(sinkName, flow.Sink, flow.Any())); err != nil {
			return nil, err
		}
		if err := e.AddPad(flow.NewPad(srcName, flow.Src, flow.Any())); err != nil {
			return nil, err
		}
		return &identity{e: e}, nil
	},
}

type identity struct {
	e        *flow.Element
	received int
}

func (i *identity) ChangeState(_ context.Context, t flow.Transition) error {
	if opening(t) {
		i.received = 0
	}
	return nil
}

func (i *identity) Chain(ctx *flow.Context, p *flow.Pad, b *flow.Buffer) error {
	i.received++
	if n := flow.Value[int](i.e, "error_after"); n >= 0 && i.received > n {
		return fmt.Errorf("%w %d buffers", ErrIdentity, n)
	}
	if d := flow.Value[time.Duration](i.e, "sleep_time"); d > 0 {
		ctx.Clock().Sleep(d)
	}
	if !flow.Value[bool](i.e, propSilent) {
		msg := fmt.Sprintf("chain ******* (%v) (%d bytes, offset %d)", p, b.Size(), b.Offset)
		if err := i.e.UpdateProperty(propLastMessage, msg); err != nil {
			return err
		}
	}
	if err := handoff(i.e, b, p); err != nil {
		return err
	}
	ctx.Push(b)
	return nil
}
