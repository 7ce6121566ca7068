package element

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/dudk/flow"
	"github.com/dudk/flow/metric"
)

// SignalUpdate is emitted by statistics with number of buffers and bytes.
const SignalUpdate = "update"

var statisticsFactory = flow.Factory{
	Name:        "statistics",
	Description: "Statistics on buffers and bytes",
	Properties: []flow.Property{
		{Name: propSilent, Blurb: "Don't log updates", Kind: flow.KindBool, Default: true},
		{Name: "buffer_update_freq", Blurb: "Number of buffers between updates, 0 to disable", Kind: flow.KindInt64, Default: 0},
		{Name: "bytes_update_freq", Blurb: "Number of bytes between updates, 0 to disable", Kind: flow.KindInt64, Default: 0},
		{Name: "update_on_eos", Blurb: "Update on the end of stream", Kind: flow.KindBool, Default: true},
		{Name: "buffers", Blurb: "Number of buffers passed", Kind: flow.KindInt64, Default: 0, Readonly: true},
		{Name: "bytes", Blurb: "Number of bytes passed", Kind: flow.KindInt64, Default: 0, Readonly: true},
		{Name: "mean_size", Blurb: "Mean size of buffers", Kind: flow.KindFloat, Default: 0, Readonly: true},
		{Name: "stddev_size", Blurb: "Standard deviation of buffer sizes", Kind: flow.KindFloat, Default: 0, Readonly: true},
	},
	Signals: []string{SignalUpdate},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(sinkName, flow.Sink, flow.Any())); err != nil {
			return nil, err
		}
		if err := e.AddPad(flow.NewPad(srcName, flow.Src, flow.Any())); err != nil {
			return nil, err
		}
		return &statistics{e: e}, nil
	},
}

type statistics struct {
	e       *flow.Element
	measure metric.MeasureFunc

	buffers, bytes int64
	// bytes at the moment of last update.
	lastBytes int64
	// number of buffers per size.
	sizes map[int64]float64
}

func (s *statistics) ChangeState(_ context.Context, t flow.Transition) error {
	if opening(t) {
		s.buffers, s.bytes, s.lastBytes, s.sizes = 0, 0, 0, make(map[int64]float64)
		s.measure = metric.Meter(s)()
	}
	return nil
}

func (s *statistics) Chain(ctx *flow.Context, _ *flow.Pad, b *flow.Buffer) error {
	size := int64(b.Size())
	s.record(size)
	if s.measure != nil {
		s.measure(size)
	}

	var update bool
	if freq := flow.Value[int64](s.e, "buffer_update_freq"); freq > 0 && s.buffers%freq == 0 {
		update = true
	}
	if freq := flow.Value[int64](s.e, "bytes_update_freq"); freq > 0 && s.bytes-s.lastBytes >= freq {
		update = true
	}
	if update {
		if err := s.update(ctx); err != nil {
			return err
		}
	}
	ctx.Push(b)
	return nil
}

func (s *statistics) EndOfStream(ctx *flow.Context, _ *flow.Pad) error {
	if flow.Value[bool](s.e, "update_on_eos") {
		if err := s.update(ctx); err != nil {
			return err
		}
	}
	return ctx.EndOfStream()
}

func (s *statistics) record(size int64) {
	if s.sizes == nil {
		s.sizes = make(map[int64]float64)
	}
	s.buffers++
	s.bytes += size
	s.sizes[size]++
}

// sizeStats returns mean and standard deviation of buffer sizes.
func (s *statistics) sizeStats() (mean, std float64) {
	switch s.buffers {
	case 0:
		return 0, 0
	case 1:
		return float64(s.bytes), 0
	}
	keys := slices.Sorted(maps.Keys(s.sizes))
	x, w := make([]float64, len(keys)), make([]float64, len(keys))
	for i, k := range keys {
		x[i], w[i] = float64(k), s.sizes[k]
	}
	return stat.MeanStdDev(x, w)
}

func (s *statistics) update(ctx *flow.Context) error {
	s.lastBytes = s.bytes
	mean, std := s.sizeStats()
	values := []struct {
		name  string
		value interface{}
	}{
		{"buffers", s.buffers},
		{"bytes", s.bytes},
		{"mean_size", mean},
		{"stddev_size", std},
	}
	for _, v := range values {
		if err := s.e.UpdateProperty(v.name, v.value); err != nil {
			return err
		}
	}
	if !flow.Value[bool](s.e, propSilent) {
		ctx.Logger().Info(fmt.Sprintf("%v: buffers %d, bytes %d, mean size %.1f, stddev %.1f",
			s.e, s.buffers, s.bytes, mean, std))
	}
	return s.e.Emit(SignalUpdate, s.buffers, s.bytes)
}
