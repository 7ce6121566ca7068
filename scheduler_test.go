package flow_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/flow"
	"github.com/dudk/flow/metric"
	"github.com/dudk/flow/mock"
)

func TestIterate(t *testing.T) {
	source, sink := &mock.Source{Limit: 10, Size: 16}, &mock.Sink{}
	p, src, snk := sourceSink(t, source, sink)

	more, err := p.Iterate()
	require.NoError(t, err)
	assert.False(t, more, "pipeline is not playing")

	var eos []string
	for _, e := range []*flow.Element{src, snk} {
		_, err := e.Connect(flow.SignalEOS, func(sender *flow.Element, _ ...interface{}) error {
			eos = append(eos, sender.Name())
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, p.SetState(flow.Playing))
	// a buffer per pass and one more pass for the end of stream.
	assert.Equal(t, 11, drain(t, p))
	messages, bytes := sink.Count()
	assert.Equal(t, 10, messages)
	assert.Equal(t, 160, bytes)
	assert.Equal(t, []string{"src", "sink"}, eos)
	for i, b := range sink.Buffers() {
		assert.Equal(t, int64(i*16), b.Offset)
	}

	more, err = p.Iterate()
	require.NoError(t, err)
	assert.False(t, more)

	require.NoError(t, p.SetState(flow.Null))
	assert.Equal(t, flow.Null, p.State())
	assert.Equal(t, snk.Pad("sink"), src.Pad("src").Peer())

	// pipeline can be replayed.
	require.NoError(t, p.SetState(flow.Playing))
	assert.Equal(t, 11, drain(t, p))
	messages, _ = sink.Count()
	assert.Equal(t, 10, messages)
	require.NoError(t, p.SetState(flow.Null))
}

func TestSchedulingOrder(t *testing.T) {
	source, filter, sink := &mock.Source{Limit: 3, Size: 1}, &mock.Filter{}, &mock.Sink{}
	p, err := flow.NewPipeline("")
	require.NoError(t, err)
	src, err := source.Element("src")
	require.NoError(t, err)
	f, err := filter.Element("filter")
	require.NoError(t, err)
	snk, err := sink.Element("sink")
	require.NoError(t, err)
	// reversed order of addition.
	require.NoError(t, p.Add(snk, f, src))
	require.NoError(t, src.Link(f))
	require.NoError(t, f.Link(snk))

	require.NoError(t, p.SetState(flow.Playing))
	assert.Equal(t, 4, drain(t, p))
	messages, _ := sink.Count()
	assert.Equal(t, 3, messages)
	require.NoError(t, p.SetState(flow.Null))
}

// dynamic creates its source pad when the first buffer arrives.
type dynamic struct{}

func (dynamic) Chain(ctx *flow.Context, _ *flow.Pad, b *flow.Buffer) error {
	p := ctx.Pad("src")
	if p == nil {
		p = flow.NewPad("src", flow.Src, flow.Any())
		if err := ctx.Element().AddPad(p); err != nil {
			return err
		}
	}
	return ctx.PushPad(p, b)
}

func TestDynamicPads(t *testing.T) {
	source, sink := &mock.Source{Limit: 5, Size: 2}, &mock.Sink{}
	p, err := flow.NewPipeline("pipeline")
	require.NoError(t, err)
	src, err := source.Element("src")
	require.NoError(t, err)
	d, err := flow.NewElement("dynamic", dynamic{}, flow.NewPad("sink", flow.Sink, flow.Any()))
	require.NoError(t, err)
	snk, err := sink.Element("sink")
	require.NoError(t, err)
	require.NoError(t, p.Add(src, d, snk))
	require.NoError(t, src.Link(d))

	_, err = d.Connect(flow.SignalNewPad, func(_ *flow.Element, args ...interface{}) error {
		return args[0].(*flow.Pad).Link(snk.Pad("sink"))
	})
	require.NoError(t, err)

	require.NoError(t, p.SetState(flow.Playing))
	drain(t, p)
	messages, bytes := sink.Count()
	assert.Equal(t, 5, messages)
	assert.Equal(t, 10, bytes)
	assert.True(t, snk.IsEOS())
	require.NoError(t, p.SetState(flow.Null))
}

func TestUnlinkedPolicy(t *testing.T) {
	newPipeline := func(t *testing.T, policy flow.PadPolicy) (*flow.Pipeline, *flow.Element, *flow.Element, *mock.Sink) {
		source, sink := &mock.Source{Limit: 3, Size: 4}, &mock.Sink{}
		p, err := flow.NewPipeline("pipeline")
		require.NoError(t, err)
		src, err := source.Element("src")
		require.NoError(t, err)
		src.Pad("src").SetPolicy(policy)
		snk, err := sink.Element("sink")
		require.NoError(t, err)
		require.NoError(t, p.Add(src, snk))
		require.NoError(t, p.SetState(flow.Playing))
		return p, src, snk, sink
	}
	t.Run("drop", func(t *testing.T) {
		p, src, _, sink := newPipeline(t, flow.Drop)
		assert.Equal(t, 4, drain(t, p))
		assert.Equal(t, 3, src.Pad("src").Dropped())
		messages, _ := sink.Count()
		assert.Zero(t, messages)
		require.NoError(t, p.SetState(flow.Null))
	})
	t.Run("hold", func(t *testing.T) {
		p, src, snk, sink := newPipeline(t, flow.Hold)
		assert.Equal(t, 4, drain(t, p))
		assert.Zero(t, src.Pad("src").Dropped())

		require.NoError(t, src.Link(snk))
		assert.Equal(t, 4, snk.Pad("sink").Queued())
		assert.Equal(t, 4, drain(t, p))
		messages, _ := sink.Count()
		assert.Equal(t, 3, messages)
		assert.True(t, snk.IsEOS())
		require.NoError(t, p.SetState(flow.Null))
	})
}

func TestStepFailure(t *testing.T) {
	t.Run("behaviour", func(t *testing.T) {
		source, sink := &mock.Source{Limit: 3}, &mock.Sink{ErrorOnCall: errTest}
		p, src, snk := sourceSink(t, source, sink)
		require.NoError(t, p.SetState(flow.Playing))

		more, err := p.Iterate()
		assert.False(t, more)
		assert.ErrorIs(t, err, errTest)
		var se *flow.StepError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "sink", se.Element)
		// graph is left as is.
		assert.Equal(t, flow.Playing, p.State())
		assert.True(t, src.Pad("src").IsLinked())

		sink.ErrorOnCall = nil
		drain(t, p)
		assert.True(t, snk.IsEOS())
		require.NoError(t, p.SetState(flow.Null))
	})
	t.Run("handler", func(t *testing.T) {
		p, src, _ := sourceSink(t, &mock.Source{Limit: 1}, &mock.Sink{})
		_, err := src.Connect(flow.SignalEOS, func(*flow.Element, ...interface{}) error {
			return errTest
		})
		require.NoError(t, err)
		require.NoError(t, p.SetState(flow.Playing))

		more, err := p.Iterate()
		require.NoError(t, err)
		assert.True(t, more)
		more, err = p.Iterate()
		assert.False(t, more)
		assert.ErrorIs(t, err, errTest)
		var se *flow.StepError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "src", se.Element)
		require.NoError(t, p.SetState(flow.Null))
	})
	t.Run("unrecoverable", func(t *testing.T) {
		source := &mock.Source{Limit: 3, ErrorOnCall: fmt.Errorf("device lost: %w", flow.ErrUnrecoverable)}
		p, _, _ := sourceSink(t, source, &mock.Sink{})
		require.NoError(t, p.SetState(flow.Playing))

		_, err := p.Iterate()
		assert.ErrorIs(t, err, flow.ErrUnrecoverable)
		assert.ErrorIs(t, p.Terminated(), flow.ErrUnrecoverable)

		source.ErrorOnCall = nil
		more, err := p.Iterate()
		assert.False(t, more)
		assert.ErrorIs(t, err, flow.ErrTerminated)

		require.NoError(t, p.SetState(flow.Null))
		assert.NoError(t, p.Terminated())
		require.NoError(t, p.SetState(flow.Playing))
		drain(t, p)
		require.NoError(t, p.SetState(flow.Null))
	})
	t.Run("unrecoverable transition", func(t *testing.T) {
		sink := &mock.Sink{Hooks: mock.Hooks{
			FailOn:            flow.Transition{From: flow.Paused, To: flow.Playing},
			ErrorOnTransition: fmt.Errorf("device lost: %w", flow.ErrUnrecoverable),
		}}
		p, _, _ := sourceSink(t, &mock.Source{Limit: 3}, sink)
		assert.ErrorIs(t, p.SetState(flow.Playing), flow.ErrUnrecoverable)
		assert.ErrorIs(t, p.Terminated(), flow.ErrUnrecoverable)
		_, err := p.Iterate()
		assert.ErrorIs(t, err, flow.ErrTerminated)
		require.NoError(t, p.SetState(flow.Null))
		assert.NoError(t, p.Terminated())
	})
}

func TestRemoveWhilePlaying(t *testing.T) {
	p, src, snk := sourceSink(t, &mock.Source{Limit: 0}, &mock.Sink{})
	_, err := src.Connect(flow.SignalEOS, func(*flow.Element, ...interface{}) error {
		return p.Remove(snk)
	})
	require.NoError(t, err)
	require.NoError(t, p.SetState(flow.Playing))

	more, err := p.Iterate()
	require.NoError(t, err)
	assert.False(t, more)
	assert.Nil(t, snk.Parent())
	assert.False(t, snk.IsEOS())
	require.NoError(t, p.SetState(flow.Null))
}

func TestRunAndFlush(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		p, _, _ := sourceSink(t, &mock.Source{Limit: 1000}, &mock.Sink{})
		require.NoError(t, p.SetState(flow.Playing))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, p.Run(ctx), context.Canceled)
		require.NoError(t, p.SetState(flow.Null))
	})
	t.Run("done", func(t *testing.T) {
		sink := &mock.Sink{}
		p, _, _ := sourceSink(t, &mock.Source{Limit: 5}, sink)
		require.NoError(t, p.SetState(flow.Playing))
		require.NoError(t, p.Run(context.Background()))
		messages, _ := sink.Count()
		assert.Equal(t, 5, messages)
		require.NoError(t, p.SetState(flow.Null))
	})
	t.Run("flush", func(t *testing.T) {
		p, _, snk := sourceSink(t, &mock.Source{Limit: 5}, &mock.Sink{})
		require.NoError(t, p.SetState(flow.Playing))
		// paused sink is not scheduled, data is queued.
		require.NoError(t, snk.SetState(flow.Paused))
		for i := 0; i < 3; i++ {
			more, err := p.Iterate()
			require.NoError(t, err)
			assert.True(t, more)
		}
		assert.Equal(t, 3, snk.Pad("sink").Queued())
		p.Flush()
		assert.Zero(t, snk.Pad("sink").Queued())
		require.NoError(t, p.SetState(flow.Null))
	})
}

func TestRunningTime(t *testing.T) {
	mockClock := clock.NewMock()
	p, _, _ := sourceSink(t, &mock.Source{Limit: 1}, &mock.Sink{}, flow.WithClock(mockClock))
	assert.Equal(t, mockClock, p.Clock())

	require.NoError(t, p.SetState(flow.Playing))
	mockClock.Add(2 * time.Second)
	assert.Equal(t, 2*time.Second, p.RunningTime())

	require.NoError(t, p.SetState(flow.Paused))
	mockClock.Add(time.Second)
	assert.Equal(t, 2*time.Second, p.RunningTime())

	require.NoError(t, p.SetState(flow.Playing))
	mockClock.Add(time.Second)
	assert.Equal(t, 3*time.Second, p.RunningTime())

	require.NoError(t, p.SetState(flow.Ready))
	assert.Zero(t, p.RunningTime())
	require.NoError(t, p.SetState(flow.Null))
}

// counting is measured by pipeline metrics.
type counting struct {
	mock.Source
}

func TestMetrics(t *testing.T) {
	source := &counting{Source: mock.Source{Limit: 4, Size: 10}}
	p, err := flow.NewPipeline("pipeline", flow.WithMetric())
	require.NoError(t, err)
	src, err := flow.NewElement("src", source, flow.NewPad("src", flow.Src, flow.Any()))
	require.NoError(t, err)
	snk, err := (&mock.Sink{}).Element("sink")
	require.NoError(t, err)
	require.NoError(t, p.Add(src, snk))
	require.NoError(t, src.Link(snk))

	require.NoError(t, p.SetState(flow.Playing))
	drain(t, p)
	require.NoError(t, p.SetState(flow.Null))

	values := metric.Get(source)
	assert.Equal(t, "4", values[metric.BufferCounter])
	assert.Equal(t, "40", values[metric.ByteCounter])
	assert.Equal(t, "1", values[metric.ElementCounter])
}
