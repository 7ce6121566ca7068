package element

import (
	"fmt"

	"github.com/dudk/flow"
)

var teeFactory = flow.Factory{
	Name:        "tee",
	Description: "Send data to multiple pads",
	Properties: []flow.Property{
		{Name: "num_src_pads", Blurb: "The number of source pads", Kind: flow.KindInt, Default: 0, Readonly: true},
	},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(sinkName, flow.Sink, flow.Any())); err != nil {
			return nil, err
		}
		return &tee{e: e}, nil
	},
}

type tee struct {
	e    *flow.Element
	next int
}

// RequestPad creates src_%u pads.
func (t *tee) RequestPad(e *flow.Element, name string) (*flow.Pad, error) {
	if name == "" {
		name = fmt.Sprintf("src_%d", t.next)
	}
	t.next++
	return flow.NewPad(name, flow.Src, flow.Any()), nil
}

func (t *tee) Chain(ctx *flow.Context, _ *flow.Pad, b *flow.Buffer) error {
	if n := len(t.e.SrcPads()); n != flow.Value[int](t.e, "num_src_pads") {
		if err := t.e.UpdateProperty("num_src_pads", n); err != nil {
			return err
		}
	}
	ctx.Push(b)
	return nil
}
