package element

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cast"
	"go.uber.org/multierr"

	"github.com/dudk/flow"
)

// RawAudio is the caps structure name of interleaved little-endian PCM.
const RawAudio = "audio/x-raw"

// ErrUnsupportedBitDepth is returned when bit depth is not 8, 16, 24 or 32.
var ErrUnsupportedBitDepth = errors.New("unsupported bit depth")

// pcmFormat describes raw audio stream.
type pcmFormat struct {
	rate     int
	channels int
	bitDepth int
}

func (f pcmFormat) caps() flow.Caps {
	return flow.NewCaps(flow.NewStructure(RawAudio,
		"rate", f.rate,
		"channels", f.channels,
		"width", f.bitDepth,
	))
}

func (f pcmFormat) validate() error {
	switch f.bitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, f.bitDepth)
	}
	if f.rate <= 0 || f.channels <= 0 {
		return fmt.Errorf("invalid audio format: rate %d channels %d", f.rate, f.channels)
	}
	return nil
}

// formatOf reads raw audio format from caps. Fields which are not fixed
// keep values of defaults.
func formatOf(c flow.Caps, defaults pcmFormat) pcmFormat {
	f := defaults
	structures := c.Structures()
	if len(structures) == 0 || structures[0].Name != RawAudio {
		return f
	}
	fields := structures[0].Fields
	if v, err := cast.ToIntE(fields["rate"]); err == nil {
		f.rate = v
	}
	if v, err := cast.ToIntE(fields["channels"]); err == nil {
		f.channels = v
	}
	if v, err := cast.ToIntE(fields["width"]); err == nil {
		f.bitDepth = v
	}
	return f
}

// encodePCM packs samples into little-endian bytes.
func encodePCM(samples []int, bitDepth int) []byte {
	width := bitDepth / 8
	data := make([]byte, len(samples)*width)
	for i, s := range samples {
		b := data[i*width:]
		switch bitDepth {
		case 8:
			b[0] = byte(s)
		case 16:
			binary.LittleEndian.PutUint16(b, uint16(int16(s)))
		case 24:
			b[0], b[1], b[2] = byte(s), byte(s>>8), byte(s>>16)
		case 32:
			binary.LittleEndian.PutUint32(b, uint32(int32(s)))
		}
	}
	return data
}

// decodePCM unpacks little-endian bytes into samples.
func decodePCM(data []byte, bitDepth int) ([]int, error) {
	width := bitDepth / 8
	if width == 0 || len(data)%width != 0 {
		return nil, fmt.Errorf("buffer of %d bytes is not aligned to %d bit samples", len(data), bitDepth)
	}
	samples := make([]int, len(data)/width)
	for i := range samples {
		b := data[i*width:]
		switch bitDepth {
		case 8:
			samples[i] = int(b[0])
		case 16:
			samples[i] = int(int16(binary.LittleEndian.Uint16(b)))
		case 24:
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			samples[i] = int(v<<8) >> 8
		case 32:
			samples[i] = int(int32(binary.LittleEndian.Uint32(b)))
		}
	}
	return samples, nil
}

var wavSrcFactory = flow.Factory{
	Name:        "wavsrc",
	Description: "Decode PCM WAV file into raw audio",
	Properties: []flow.Property{
		{Name: propLocation, Blurb: "Location of the file to read", Kind: flow.KindString},
		{Name: "blocksize", Blurb: "Number of frames per buffer", Kind: flow.KindInt, Default: 1024},
		{Name: "rate", Blurb: "Sample rate of the file", Kind: flow.KindInt, Default: 0, Readonly: true},
		{Name: "channels", Blurb: "Number of channels of the file", Kind: flow.KindInt, Default: 0, Readonly: true},
		{Name: "bit_depth", Blurb: "Bit depth of the file", Kind: flow.KindInt, Default: 0, Readonly: true},
	},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(srcName, flow.Src, flow.NewCaps(flow.NewStructure(RawAudio)))); err != nil {
			return nil, err
		}
		return &wavSrc{e: e}, nil
	},
}

type wavSrc struct {
	e       *flow.Element
	file    *os.File
	decoder *wav.Decoder
	buf     *audio.IntBuffer
	format  pcmFormat

	offset   int64
	position time.Duration
}

func (s *wavSrc) ChangeState(_ context.Context, t flow.Transition) error {
	switch {
	case opening(t):
		return s.open()
	case closing(t):
		return s.close()
	}
	return nil
}

func (s *wavSrc) open() error {
	f, err := os.Open(flow.Value[string](s.e, propLocation))
	if err != nil {
		return err
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return multierr.Combine(fmt.Errorf("wav is not valid: %v", f.Name()), f.Close())
	}
	format := pcmFormat{
		rate:     int(d.SampleRate),
		channels: int(d.NumChans),
		bitDepth: int(d.BitDepth),
	}
	if err := format.validate(); err != nil {
		return multierr.Combine(err, f.Close())
	}
	blocksize := flow.Value[int](s.e, "blocksize")
	if blocksize <= 0 {
		return multierr.Combine(fmt.Errorf("invalid blocksize %d", blocksize), f.Close())
	}
	s.file, s.decoder, s.format = f, d, format
	s.offset, s.position = 0, 0
	s.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: format.channels, SampleRate: format.rate},
		Data:           make([]int, blocksize*format.channels),
		SourceBitDepth: format.bitDepth,
	}
	for name, v := range map[string]int{"rate": format.rate, "channels": format.channels, "bit_depth": format.bitDepth} {
		if err := s.e.UpdateProperty(name, v); err != nil {
			return multierr.Combine(err, s.close())
		}
	}
	return nil
}

func (s *wavSrc) close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file, s.decoder, s.buf = nil, nil, nil
	return err
}

func (s *wavSrc) Produce(ctx *flow.Context) error {
	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return io.EOF
	}
	frames := n / s.format.channels
	b := &flow.Buffer{
		Data:     encodePCM(s.buf.Data[:n], s.format.bitDepth),
		PTS:      s.position,
		Duration: time.Duration(frames) * time.Second / time.Duration(s.format.rate),
		Offset:   s.offset,
	}
	if s.offset == 0 {
		b.Caps = s.format.caps()
	}
	s.offset += int64(len(b.Data))
	s.position += b.Duration
	ctx.Push(b)
	return nil
}

var wavSinkFactory = flow.Factory{
	Name:        "wavsink",
	Description: "Encode raw audio into PCM WAV file",
	Properties: []flow.Property{
		{Name: propLocation, Blurb: "Location of the file to write", Kind: flow.KindString},
		{Name: "rate", Blurb: "Sample rate if stream doesn't define it", Kind: flow.KindInt, Default: 44100},
		{Name: "channels", Blurb: "Number of channels if stream doesn't define it", Kind: flow.KindInt, Default: 2},
		{Name: "bit_depth", Blurb: "Bit depth if stream doesn't define it", Kind: flow.KindInt, Default: 16},
	},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(sinkName, flow.Sink, flow.NewCaps(flow.NewStructure(RawAudio)))); err != nil {
			return nil, err
		}
		return &wavSink{e: e}, nil
	},
}

// wavSink creates encoder when the first buffer arrives, format of the
// stream takes precedence over properties.
type wavSink struct {
	e       *flow.Element
	file    *os.File
	encoder *wav.Encoder
	format  pcmFormat
}

func (s *wavSink) ChangeState(_ context.Context, t flow.Transition) error {
	switch {
	case opening(t):
		f, err := os.Create(flow.Value[string](s.e, propLocation))
		if err != nil {
			return err
		}
		s.file = f
	case closing(t):
		return s.close()
	}
	return nil
}

func (s *wavSink) defaults() pcmFormat {
	return pcmFormat{
		rate:     flow.Value[int](s.e, "rate"),
		channels: flow.Value[int](s.e, "channels"),
		bitDepth: flow.Value[int](s.e, "bit_depth"),
	}
}

func (s *wavSink) start(format pcmFormat) error {
	if err := format.validate(); err != nil {
		return err
	}
	s.format = format
	s.encoder = wav.NewEncoder(s.file, format.rate, format.bitDepth, format.channels, 1)
	return nil
}

func (s *wavSink) Chain(_ *flow.Context, _ *flow.Pad, b *flow.Buffer) error {
	if s.encoder == nil {
		if err := s.start(formatOf(b.Caps, s.defaults())); err != nil {
			return err
		}
	}
	samples, err := decodePCM(b.Data, s.format.bitDepth)
	if err != nil {
		return err
	}
	return s.encoder.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: s.format.channels, SampleRate: s.format.rate},
		Data:           samples,
		SourceBitDepth: s.format.bitDepth,
	})
}

func (s *wavSink) EndOfStream(ctx *flow.Context, _ *flow.Pad) error {
	if err := s.close(); err != nil {
		return err
	}
	return ctx.EndOfStream()
}

// close finalizes the header and closes the file.
func (s *wavSink) close() error {
	if s.file == nil {
		return nil
	}
	var err error
	if s.encoder == nil {
		err = s.start(s.defaults())
	}
	if err == nil {
		err = s.encoder.Close()
	}
	err = multierr.Combine(err, s.file.Close())
	s.file, s.encoder = nil, nil
	return err
}
