package flow

import "time"

// Buffer is a chunk of data passed between elements.
// Buffers are not copied when pushed to multiple peers, so downstream
// elements must not modify Data in place.
type Buffer struct {
	Data []byte
	// PTS is the presentation time in pipeline running time.
	PTS      time.Duration
	Duration time.Duration
	// Offset of the data in the stream, in bytes.
	Offset int64
	// Caps describes the format of data. It's set by elements on the
	// first buffer of the stream and when format changes.
	Caps Caps
}

// NewBuffer wraps data into buffer.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{Data: data}
}

// Size returns the size of buffer data.
func (b *Buffer) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// item is an entry of pad queue: either buffer or end of stream.
type item struct {
	buffer *Buffer
	eos    bool
}
