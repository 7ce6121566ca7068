package element

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dudk/flow"
)

var fileSrcFactory = flow.Factory{
	Name:        "filesrc",
	Description: "Read from arbitrary point in a file",
	Properties: []flow.Property{
		{Name: propLocation, Blurb: "Location of the file to read", Kind: flow.KindString},
		{Name: "blocksize", Blurb: "Size in bytes to read per buffer", Kind: flow.KindInt, Default: 4096},
	},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(srcName, flow.Src, flow.Any())); err != nil {
			return nil, err
		}
		return &fileSrc{e: e}, nil
	},
}

type fileSrc struct {
	e      *flow.Element
	file   *os.File
	offset int64
}

func (s *fileSrc) ChangeState(_ context.Context, t flow.Transition) error {
	switch {
	case opening(t):
		location := flow.Value[string](s.e, propLocation)
		if location == "" {
			return errors.New("no file name specified for reading")
		}
		f, err := os.Open(location)
		if err != nil {
			return err
		}
		s.file, s.offset = f, 0
	case closing(t):
		return s.close()
	}
	return nil
}

func (s *fileSrc) close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *fileSrc) Produce(ctx *flow.Context) error {
	blocksize := flow.Value[int](s.e, "blocksize")
	if blocksize <= 0 {
		return fmt.Errorf("invalid blocksize %d", blocksize)
	}
	data := make([]byte, blocksize)
	n, err := io.ReadFull(s.file, data)
	if n > 0 {
		ctx.Push(&flow.Buffer{Data: data[:n], PTS: ctx.RunningTime(), Offset: s.offset})
		s.offset += int64(n)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		// short read, next call returns io.EOF.
		return nil
	}
	return err
}

var fileSinkFactory = flow.Factory{
	Name:        "filesink",
	Description: "Write stream to a file",
	Properties: []flow.Property{
		{Name: propLocation, Blurb: "Location of the file to write", Kind: flow.KindString},
		{Name: "append", Blurb: "Append to an already existing file", Kind: flow.KindBool, Default: false},
	},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(sinkName, flow.Sink, flow.Any())); err != nil {
			return nil, err
		}
		return &fileSink{e: e}, nil
	},
}

type fileSink struct {
	e    *flow.Element
	file *os.File
	w    *bufio.Writer
}

func (s *fileSink) ChangeState(_ context.Context, t flow.Transition) error {
	switch {
	case opening(t):
		location := flow.Value[string](s.e, propLocation)
		if location == "" {
			return errors.New("no file name specified for writing")
		}
		flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if flow.Value[bool](s.e, "append") {
			flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		}
		f, err := os.OpenFile(location, flag, 0o644)
		if err != nil {
			return err
		}
		s.file, s.w = f, bufio.NewWriter(f)
	case closing(t):
		return s.close()
	}
	return nil
}

func (s *fileSink) close() error {
	if s.file == nil {
		return nil
	}
	err := s.w.Flush()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file, s.w = nil, nil
	return err
}

func (s *fileSink) Chain(_ *flow.Context, _ *flow.Pad, b *flow.Buffer) error {
	_, err := s.w.Write(b.Data)
	return err
}

func (s *fileSink) EndOfStream(ctx *flow.Context, _ *flow.Pad) error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return ctx.EndOfStream()
}
