package element

import (
	"context"
	"fmt"

	"github.com/dudk/flow"
)

var demuxFactory = flow.Factory{
	Name:        "demux",
	Description: "Split tagged stream into pads created on demand",
	Properties: []flow.Property{
		{Name: "hold", Blurb: "Keep data of pads until they are linked", Kind: flow.KindBool, Default: false},
	},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(sinkName, flow.Sink, flow.Any())); err != nil {
			return nil, err
		}
		return &demux{e: e}, nil
	},
}

// demux routes every buffer by its first byte, which is the stream id,
// to pad src_<id>. Pads are created when stream appears and new_pad is
// emitted, so handlers can link them.
type demux struct {
	e *flow.Element
}

// StreamPad returns the name of demux pad for stream id.
func StreamPad(id byte) string {
	return fmt.Sprintf("src_%d", id)
}

func (d *demux) ChangeState(_ context.Context, t flow.Transition) error {
	if !closing(t) {
		return nil
	}
	for _, p := range d.e.SrcPads() {
		if err := d.e.RemovePad(p); err != nil {
			return err
		}
	}
	return nil
}

func (d *demux) Chain(ctx *flow.Context, _ *flow.Pad, b *flow.Buffer) error {
	if b.Size() == 0 {
		return nil
	}
	name := StreamPad(b.Data[0])
	p := d.e.Pad(name)
	if p == nil {
		p = flow.NewPad(name, flow.Src, flow.Any())
		if flow.Value[bool](d.e, "hold") {
			p.SetPolicy(flow.Hold)
		}
		if err := d.e.AddPad(p); err != nil {
			return err
		}
	}
	out := *b
	out.Data = b.Data[1:]
	return ctx.PushPad(p, &out)
}
