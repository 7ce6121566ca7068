package element

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/rtp"

	"github.com/dudk/flow"
)

// RTP is the caps structure name of RTP packets.
const RTP = "application/x-rtp"

// rtpHeaderSize is the size of header without CSRC and extensions.
const rtpHeaderSize = 12

var rtpPayFactory = flow.Factory{
	Name:        "rtppay",
	Description: "Packetize buffers into RTP packets",
	Properties: []flow.Property{
		{Name: "pt", Blurb: "The payload type of the packets", Kind: flow.KindInt, Default: 96},
		{Name: "ssrc", Blurb: "The SSRC of the packets", Kind: flow.KindUint64, Default: 0},
		{Name: "mtu", Blurb: "Maximum size of one packet", Kind: flow.KindInt, Default: 1400},
		{Name: "clock_rate", Blurb: "Clock rate of RTP timestamps", Kind: flow.KindInt, Default: 90000},
		{Name: "seqnum_offset", Blurb: "Offset to add to all outgoing seqnum, -1 for random", Kind: flow.KindInt, Default: -1},
		{Name: "seqnum", Blurb: "The RTP sequence number of the last packet", Kind: flow.KindInt, Default: 0, Readonly: true},
	},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(sinkName, flow.Sink, flow.Any())); err != nil {
			return nil, err
		}
		if err := e.AddPad(flow.NewPad(srcName, flow.Src, flow.NewCaps(flow.NewStructure(RTP)))); err != nil {
			return nil, err
		}
		return &rtpPay{e: e}, nil
	},
}

type rtpPay struct {
	e         *flow.Element
	sequencer rtp.Sequencer
}

func (p *rtpPay) ChangeState(_ context.Context, t flow.Transition) error {
	if !opening(t) {
		return nil
	}
	if offset := flow.Value[int](p.e, "seqnum_offset"); offset >= 0 {
		p.sequencer = rtp.NewFixedSequencer(uint16(offset))
	} else {
		p.sequencer = rtp.NewRandomSequencer()
	}
	return nil
}

func (p *rtpPay) Chain(ctx *flow.Context, _ *flow.Pad, b *flow.Buffer) error {
	size := flow.Value[int](p.e, "mtu") - rtpHeaderSize
	if size <= 0 {
		return fmt.Errorf("mtu is too small: %d", flow.Value[int](p.e, "mtu"))
	}
	header := rtp.Header{
		Version:     2,
		PayloadType: uint8(flow.Value[int](p.e, "pt")),
		SSRC:        uint32(flow.Value[uint64](p.e, "ssrc")),
		Timestamp:   rtpTimestamp(b.PTS, flow.Value[int](p.e, "clock_rate")),
	}
	data := b.Data
	for {
		n := min(size, len(data))
		header.SequenceNumber = p.sequencer.NextSequenceNumber()
		header.Marker = n == len(data)
		packet := rtp.Packet{Header: header, Payload: data[:n]}
		raw, err := packet.Marshal()
		if err != nil {
			return err
		}
		ctx.Push(&flow.Buffer{Data: raw, PTS: b.PTS, Offset: b.Offset + int64(len(b.Data)-len(data))})
		if err := p.e.UpdateProperty("seqnum", int(header.SequenceNumber)); err != nil {
			return err
		}
		data = data[n:]
		if len(data) == 0 {
			return nil
		}
	}
}

func rtpTimestamp(pts time.Duration, clockRate int) uint32 {
	return uint32(int64(pts) * int64(clockRate) / int64(time.Second))
}

var rtpDepayFactory = flow.Factory{
	Name:        "rtpdepay",
	Description: "Extract payloads from RTP packets",
	Properties: []flow.Property{
		{Name: "clock_rate", Blurb: "Clock rate of RTP timestamps", Kind: flow.KindInt, Default: 90000},
		{Name: "packets", Blurb: "Number of received packets", Kind: flow.KindInt64, Default: 0, Readonly: true},
		{Name: "lost", Blurb: "Number of packets lost according to sequence numbers", Kind: flow.KindInt64, Default: 0, Readonly: true},
	},
	New: func(e *flow.Element) (interface{}, error) {
		if err := e.AddPad(flow.NewPad(sinkName, flow.Sink, flow.NewCaps(flow.NewStructure(RTP)))); err != nil {
			return nil, err
		}
		if err := e.AddPad(flow.NewPad(srcName, flow.Src, flow.Any())); err != nil {
			return nil, err
		}
		return &rtpDepay{e: e}, nil
	},
}

// rtpDepay joins payloads of packets until the packet with marker bit.
type rtpDepay struct {
	e       *flow.Element
	packets int64
	lost    int64
	started bool
	last    uint16
	pending []byte
	ts      uint32
	offset  int64
}

func (d *rtpDepay) ChangeState(_ context.Context, t flow.Transition) error {
	if opening(t) {
		*d = rtpDepay{e: d.e}
	}
	return nil
}

func (d *rtpDepay) Chain(ctx *flow.Context, _ *flow.Pad, b *flow.Buffer) error {
	var packet rtp.Packet
	if err := packet.Unmarshal(b.Data); err != nil {
		return fmt.Errorf("rtp: %w", err)
	}
	d.packets++
	// duplicate and late packets are dropped.
	stale := false
	if d.started {
		diff := int16(packet.SequenceNumber - d.last)
		if diff > 1 {
			d.lost += int64(diff - 1)
		}
		stale = diff <= 0
	}
	if !stale {
		d.started, d.last = true, packet.SequenceNumber
	}
	if err := d.e.UpdateProperty("packets", d.packets); err != nil {
		return err
	}
	if err := d.e.UpdateProperty("lost", d.lost); err != nil {
		return err
	}
	if stale {
		return nil
	}

	if len(d.pending) == 0 {
		d.ts = packet.Timestamp
	}
	d.pending = append(d.pending, packet.Payload...)
	if packet.Marker {
		d.push(ctx)
	}
	return nil
}

func (d *rtpDepay) EndOfStream(ctx *flow.Context, _ *flow.Pad) error {
	d.push(ctx)
	return ctx.EndOfStream()
}

func (d *rtpDepay) push(ctx *flow.Context) {
	if len(d.pending) == 0 {
		return
	}
	clockRate := int64(flow.Value[int](d.e, "clock_rate"))
	var pts time.Duration
	if clockRate > 0 {
		pts = time.Duration(int64(d.ts) * int64(time.Second) / clockRate)
	}
	ctx.Push(&flow.Buffer{Data: d.pending, PTS: pts, Offset: d.offset})
	d.offset += int64(len(d.pending))
	d.pending = nil
}
