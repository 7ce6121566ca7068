package element_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/flow"
	"github.com/dudk/flow/element"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newElement makes element of the type and sets properties provided as
// name, value pairs.
func newElement(t *testing.T, typ, name string, props ...interface{}) *flow.Element {
	t.Helper()
	e, err := flow.Make(typ, name)
	require.NoError(t, err)
	for i := 0; i+1 < len(props); i += 2 {
		require.NoError(t, e.SetProperty(props[i].(string), props[i+1]))
	}
	return e
}

// chain returns pipeline with elements linked one after another.
func chain(t *testing.T, elements ...*flow.Element) *flow.Pipeline {
	t.Helper()
	p, err := flow.NewPipeline("")
	require.NoError(t, err)
	for _, e := range elements {
		require.NoError(t, p.Add(e))
	}
	for i := 1; i < len(elements); i++ {
		require.NoError(t, elements[i-1].Link(elements[i]))
	}
	return p
}

// play runs pipeline until the end of stream and stops it.
func play(t *testing.T, p *flow.Pipeline) {
	t.Helper()
	require.NoError(t, p.SetState(flow.Playing))
	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.SetState(flow.Null))
}

// collect records data of buffers handed off by element.
func collect(t *testing.T, e *flow.Element) *[][]byte {
	t.Helper()
	var data [][]byte
	_, err := e.Connect(flow.SignalHandoff, func(_ *flow.Element, args ...interface{}) error {
		b := args[0].(*flow.Buffer)
		data = append(data, append([]byte(nil), b.Data...))
		return nil
	})
	require.NoError(t, err)
	return &data
}

func TestRegister(t *testing.T) {
	err := element.Register(flow.DefaultRegistry)
	assert.ErrorIs(t, err, flow.ErrDuplicateName)

	r := flow.NewRegistry()
	require.NoError(t, element.Register(r))
	assert.Len(t, r.Factories(), len(element.Factories()))
	for _, f := range element.Factories() {
		_, err := r.Make(f.Name, "")
		assert.NoError(t, err, f.Name)
	}
}

func TestFake(t *testing.T) {
	src := newElement(t, "fakesrc", "src", "num_buffers", 10, "silent", false)
	sink := newElement(t, "fakesink", "sink")
	var handoffs []string
	for _, e := range []*flow.Element{src, sink} {
		_, err := e.Connect(flow.SignalHandoff, func(sender *flow.Element, _ ...interface{}) error {
			handoffs = append(handoffs, sender.Name())
			return nil
		})
		require.NoError(t, err)
	}
	p := chain(t, src, sink)

	play(t, p)
	assert.Len(t, handoffs, 20)
	assert.Equal(t, []string{"src", "sink"}, handoffs[:2])
	assert.Equal(t, 10, flow.Value[int](sink, "num_buffers"))
	assert.Contains(t, flow.Value[string](src, "last_message"), "(4096 bytes, offset 36864)")
	assert.Empty(t, flow.Value[string](sink, "last_message"))

	err := sink.SetProperty("num_buffers", 1)
	assert.ErrorIs(t, err, flow.ErrReadonlyProperty)
}

func TestFakeFilltype(t *testing.T) {
	tests := []struct {
		filltype string
		expected []byte
		err      bool
	}{
		{filltype: element.FillZero, expected: []byte{0, 0, 0}},
		{filltype: element.FillPattern, expected: []byte{0, 1, 2}},
		{filltype: "random", err: true},
	}
	for _, test := range tests {
		t.Run(test.filltype, func(t *testing.T) {
			src := newElement(t, "fakesrc", "src", "num_buffers", 1, "size_max", 3, "filltype", test.filltype)
			sink := newElement(t, "fakesink", "sink")
			data := collect(t, sink)
			p := chain(t, src, sink)

			require.NoError(t, p.SetState(flow.Playing))
			err := p.Run(context.Background())
			require.NoError(t, p.SetState(flow.Null))
			if test.err {
				var stepErr *flow.StepError
				require.True(t, errors.As(err, &stepErr))
				assert.Equal(t, "src", stepErr.Element)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, [][]byte{test.expected}, *data)
		})
	}
}

func TestFileCopy(t *testing.T) {
	dir := t.TempDir()
	source, dest := filepath.Join(dir, "source"), filepath.Join(dir, "dest")
	content := make([]byte, 2500)
	for i := range content {
		content[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(source, content, 0o644))

	src := newElement(t, "filesrc", "src", "location", source, "blocksize", 1000)
	stats := newElement(t, "statistics", "stats", "buffer_update_freq", 1)
	sink := newElement(t, "filesink", "sink", "location", dest, "append", true)
	var updates []int64
	_, err := stats.Connect(element.SignalUpdate, func(_ *flow.Element, args ...interface{}) error {
		updates = append(updates, args[0].(int64))
		return nil
	})
	require.NoError(t, err)
	p := chain(t, src, stats, sink)

	play(t, p)
	result, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, result)
	assert.Equal(t, []int64{1, 2, 3, 3}, updates)
	assert.Equal(t, int64(3), flow.Value[int64](stats, "buffers"))
	assert.Equal(t, int64(2500), flow.Value[int64](stats, "bytes"))
	assert.InDelta(t, 833.33, flow.Value[float64](stats, "mean_size"), 0.01)
	assert.InDelta(t, 288.68, flow.Value[float64](stats, "stddev_size"), 0.01)

	// replay appends to the same file.
	play(t, p)
	result, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte(nil), content...), content...), result)
}

func TestFileLocation(t *testing.T) {
	tests := []struct {
		description string
		src         string
		sink        string
		failed      string
	}{
		{
			description: "no source location",
			sink:        filepath.Join(t.TempDir(), "dest"),
			failed:      "src",
		},
		{
			description: "missing source",
			src:         filepath.Join(t.TempDir(), "missing"),
			sink:        filepath.Join(t.TempDir(), "dest"),
			failed:      "src",
		},
		{
			description: "no sink location",
			src:         os.Args[0],
			failed:      "sink",
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			src := newElement(t, "filesrc", "src", "location", test.src)
			sink := newElement(t, "filesink", "sink", "location", test.sink)
			p := chain(t, src, sink)

			err := p.SetState(flow.Playing)
			var stateErr *flow.StateChangeError
			require.True(t, errors.As(err, &stateErr))
			require.True(t, errors.As(stateErr.Err, &stateErr))
			assert.Equal(t, test.failed, stateErr.Element)
			assert.Equal(t, flow.Transition{From: flow.Ready, To: flow.Paused}, stateErr.Transition)
			require.NoError(t, p.SetState(flow.Null))
		})
	}
}

func TestIdentity(t *testing.T) {
	t.Run("error after", func(t *testing.T) {
		src := newElement(t, "fakesrc", "src", "num_buffers", 5)
		identity := newElement(t, "identity", "identity", "error_after", 2, "silent", false)
		sink := newElement(t, "fakesink", "sink")
		p := chain(t, src, identity, sink)

		require.NoError(t, p.SetState(flow.Playing))
		err := p.Run(context.Background())
		assert.ErrorIs(t, err, element.ErrIdentity)
		var stepErr *flow.StepError
		require.True(t, errors.As(err, &stepErr))
		assert.Equal(t, "identity", stepErr.Element)
		assert.Equal(t, 2, flow.Value[int](sink, "num_buffers"))
		assert.Contains(t, flow.Value[string](identity, "last_message"), "offset 4096")
		require.NoError(t, p.SetState(flow.Null))
	})
	t.Run("sleep time", func(t *testing.T) {
		src := newElement(t, "fakesrc", "src", "num_buffers", 3)
		identity := newElement(t, "identity", "identity", "sleep_time", "5ms")
		sink := newElement(t, "fakesink", "sink")
		data := collect(t, identity)
		p := chain(t, src, identity, sink)

		start := time.Now()
		play(t, p)
		assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
		assert.Len(t, *data, 3)
	})
}

func TestQueue(t *testing.T) {
	src := newElement(t, "fakesrc", "src", "num_buffers", 5, "size_max", 1)
	queue := newElement(t, "queue", "queue")
	sink := newElement(t, "fakesink", "sink")
	p := chain(t, src, queue, sink)

	play(t, p)
	assert.Equal(t, 5, flow.Value[int](sink, "num_buffers"))
	assert.Equal(t, 0, flow.Value[int](queue, "current_level_buffers"))
}

func TestQueueLeaky(t *testing.T) {
	tests := []struct {
		leaky string
		level int
	}{
		{leaky: element.LeakyNo, level: 4},
		{leaky: element.LeakyUpstream, level: 2},
		{leaky: element.LeakyDownstream, level: 2},
	}
	for _, test := range tests {
		t.Run(test.leaky, func(t *testing.T) {
			src := newElement(t, "fakesrc", "src", "size_max", 1)
			queue := newElement(t, "queue", "queue", "max_size_buffers", 2, "leaky", test.leaky)
			sink := newElement(t, "fakesink", "sink")
			var overruns int
			_, err := queue.Connect(element.SignalOverrun, func(*flow.Element, ...interface{}) error {
				overruns++
				return nil
			})
			require.NoError(t, err)
			p := chain(t, src, queue, sink)

			require.NoError(t, p.SetState(flow.Playing))
			// sink doesn't consume, so the queue fills up.
			require.NoError(t, sink.SetState(flow.Paused))
			for i := 0; i < 5; i++ {
				more, err := p.Iterate()
				require.NoError(t, err)
				assert.True(t, more)
			}
			assert.Equal(t, 2, overruns)
			assert.Equal(t, test.level, flow.Value[int](queue, "current_level_buffers"))
			require.NoError(t, p.SetState(flow.Null))
		})
	}
}

func TestTee(t *testing.T) {
	src := newElement(t, "fakesrc", "src", "num_buffers", 3)
	tee := newElement(t, "tee", "tee")
	sinks := []*flow.Element{newElement(t, "fakesink", "sink1"), newElement(t, "fakesink", "sink2")}
	p := chain(t, src, tee)
	for _, sink := range sinks {
		require.NoError(t, p.Add(sink))
		require.NoError(t, tee.Link(sink))
	}
	assert.NotNil(t, tee.Pad("src_0"))
	assert.NotNil(t, tee.Pad("src_1"))

	play(t, p)
	assert.Equal(t, 2, flow.Value[int](tee, "num_src_pads"))
	for _, sink := range sinks {
		assert.Equal(t, 3, flow.Value[int](sink, "num_buffers"), sink.Name())
	}
}

func TestStatisticsUpdates(t *testing.T) {
	tests := []struct {
		description string
		props       []interface{}
		updates     int
	}{
		{
			description: "every buffer",
			props:       []interface{}{"buffer_update_freq", 1},
			updates:     4,
		},
		{
			description: "every second buffer without eos",
			props:       []interface{}{"buffer_update_freq", 2, "update_on_eos", false},
			updates:     1,
		},
		{
			description: "bytes",
			props:       []interface{}{"bytes_update_freq", 2000},
			updates:     2,
		},
		{
			description: "disabled",
			props:       []interface{}{"update_on_eos", false},
			updates:     0,
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			src := newElement(t, "fakesrc", "src", "num_buffers", 3, "size_max", 1000)
			stats := newElement(t, "statistics", "stats", test.props...)
			sink := newElement(t, "fakesink", "sink")
			var updates int
			_, err := stats.Connect(element.SignalUpdate, func(*flow.Element, ...interface{}) error {
				updates++
				return nil
			})
			require.NoError(t, err)
			p := chain(t, src, stats, sink)

			play(t, p)
			assert.Equal(t, test.updates, updates)
			assert.Equal(t, 3, flow.Value[int](sink, "num_buffers"))
			if updates > 0 {
				assert.Equal(t, 1000.0, flow.Value[float64](stats, "mean_size"))
				assert.Equal(t, 0.0, flow.Value[float64](stats, "stddev_size"))
			}
		})
	}
}

// tagged produces provided buffers one per call.
type tagged struct {
	buffers [][]byte
}

func (s *tagged) Produce(ctx *flow.Context) error {
	if len(s.buffers) == 0 {
		return io.EOF
	}
	ctx.Push(flow.NewBuffer(s.buffers[0]))
	s.buffers = s.buffers[1:]
	return nil
}

func TestDemux(t *testing.T) {
	src, err := flow.NewElement("src", &tagged{
		buffers: [][]byte{{0, 'a'}, {1, 'b'}, {0, 'c'}},
	}, flow.NewPad("src", flow.Src, flow.Any()))
	require.NoError(t, err)
	demux := newElement(t, "demux", "demux")
	p := chain(t, src, demux)

	received := make(map[string]*[][]byte)
	_, err = demux.Connect(flow.SignalNewPad, func(_ *flow.Element, args ...interface{}) error {
		pad := args[0].(*flow.Pad)
		sink, err := flow.Make("fakesink", "sink_"+pad.Name())
		if err != nil {
			return err
		}
		received[pad.Name()] = collect(t, sink)
		if err := p.Add(sink); err != nil {
			return err
		}
		if err := sink.SetState(flow.Playing); err != nil {
			return err
		}
		return pad.Link(sink.Pad("sink"))
	})
	require.NoError(t, err)

	play(t, p)
	require.Len(t, received, 2)
	assert.Equal(t, [][]byte{{'a'}, {'c'}}, *received[element.StreamPad(0)])
	assert.Equal(t, [][]byte{{'b'}}, *received[element.StreamPad(1)])
	// stream pads are removed when demux is stopped.
	assert.Len(t, demux.Pads(), 1)
}

func TestDemuxHold(t *testing.T) {
	src, err := flow.NewElement("src", &tagged{
		buffers: [][]byte{{7, 'a'}, {7, 'b'}},
	}, flow.NewPad("src", flow.Src, flow.Any()))
	require.NoError(t, err)
	demux := newElement(t, "demux", "demux", "hold", true)
	sink := newElement(t, "fakesink", "sink")
	data := collect(t, sink)
	p := chain(t, src, demux)
	require.NoError(t, p.Add(sink))

	require.NoError(t, p.SetState(flow.Playing))
	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, *data)

	pad := demux.Pad(element.StreamPad(7))
	require.NotNil(t, pad)
	assert.Equal(t, flow.Hold, pad.Policy())
	require.NoError(t, pad.Link(sink.Pad("sink")))
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, [][]byte{{'a'}, {'b'}}, *data)
	assert.True(t, sink.IsEOS())
	require.NoError(t, p.SetState(flow.Null))
}
