package element

import (
	"context"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"

	"github.com/dudk/flow"
)

// Fill types of fakesrc.
const (
	FillZero    = "zero"
	FillPattern = "pattern"
)

var fakeSrcFactory = flow.Factory{
	Name:        "fakesrc",
	Description: "Push empty buffers downstream",
	Properties: []flow.Property{
		{Name: "num_buffers", Blurb: "Number of buffers to output before sending EOS, -1 for unlimited", Kind: flow.KindInt, Default: -1},
		{Name: "size_max", Blurb: "Size of every buffer", Kind: flow.KindInt, Default: 4096},
		{Name: "filltype", Blurb: "How to fill the buffer: zero or pattern", Kind: flow.KindString, Default: FillZero},
		{Name: propSilent, Blurb: "Don't produce last_message events", Kind: flow.KindBool, Default: true},
		{Name: propSignalHandoffs, Blurb: "Send a signal before pushing the buffer", Kind: flow.KindBool, Default: true},
		{Name: propLastMessage, Blurb: "The last status message", Kind: flow.KindString, Readonly: true},
	},
	Signals: []string{flow.SignalHandoff},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(srcName, flow.Src, flow.Any())); err != nil {
			return nil, err
		}
		return &fakeSrc{e: e}, nil
	},
}

type fakeSrc struct {
	e      *flow.Element
	sent   int
	offset int64
}

func (s *fakeSrc) ChangeState(_ context.Context, t flow.Transition) error {
	if opening(t) {
		s.sent, s.offset = 0, 0
	}
	return nil
}

func (s *fakeSrc) Produce(ctx *flow.Context) error {
	if n := flow.Value[int](s.e, "num_buffers"); n >= 0 && s.sent >= n {
		return io.EOF
	}
	data := make([]byte, flow.Value[int](s.e, "size_max"))
	switch filltype := flow.Value[string](s.e, "filltype"); filltype {
	case FillZero:
	case FillPattern:
		for i := range data {
			data[i] = byte(i)
		}
	default:
		return fmt.Errorf("unknown filltype %q", filltype)
	}
	b := &flow.Buffer{Data: data, PTS: ctx.RunningTime(), Offset: s.offset}
	s.sent++
	s.offset += int64(len(data))

	if !flow.Value[bool](s.e, propSilent) {
		msg := fmt.Sprintf("get ******* (%s:%s) (%d bytes, offset %d)", s.e.Name(), srcName, b.Size(), b.Offset)
		if err := s.e.UpdateProperty(propLastMessage, msg); err != nil {
			return err
		}
	}
	if err := handoff(s.e, b, s.e.Pad(srcName)); err != nil {
		return err
	}
	ctx.Push(b)
	return nil
}

var fakeSinkFactory = flow.Factory{
	Name:        "fakesink",
	Description: "Black hole for data",
	Properties: []flow.Property{
		{Name: propSilent, Blurb: "Don't produce last_message events", Kind: flow.KindBool, Default: true},
		{Name: propSignalHandoffs, Blurb: "Send a signal before unreffing the buffer", Kind: flow.KindBool, Default: true},
		{Name: propLastMessage, Blurb: "The last status message", Kind: flow.KindString, Readonly: true},
		{Name: "dump", Blurb: "Dump buffer contents to the log", Kind: flow.KindBool, Default: false},
		{Name: "num_buffers", Blurb: "Number of buffers received", Kind: flow.KindInt, Default: 0, Readonly: true},
	},
	Signals: []string{flow.SignalHandoff},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(sinkName, flow.Sink, flow.Any())); err != nil {
			return nil, err
		}
		return &fakeSink{e: e}, nil
	},
}

type fakeSink struct {
	e        *flow.Element
	received int
}

func (s *fakeSink) ChangeState(_ context.Context, t flow.Transition) error {
	if opening(t) {
		s.received = 0
	}
	return nil
}

func (s *fakeSink) Chain(ctx *flow.Context, p *flow.Pad, b *flow.Buffer) error {
	s.received++
	if err := s.e.UpdateProperty("num_buffers", s.received); err != nil {
		return err
	}
	if !flow.Value[bool](s.e, propSilent) {
		msg := fmt.Sprintf("chain ******* (%v) (%d bytes, offset %d)", p, b.Size(), b.Offset)
		if err := s.e.UpdateProperty(propLastMessage, msg); err != nil {
			return err
		}
	}
	if flow.Value[bool](s.e, "dump") {
		ctx.Logger().Info(spew.Sdump(b.Data))
	}
	return handoff(s.e, b, p)
}
