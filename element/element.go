// Package element provides built-in element types. All of them are
// registered in flow.DefaultRegistry.
package element

import (
	"github.com/dudk/flow"
)

// Pad names used by elements with a single pad of each direction.
const (
	srcName  = "src"
	sinkName = "sink"
)

// Common property names.
const (
	propLocation       = "location"
	propSilent         = "silent"
	propSignalHandoffs = "signal_handoffs"
	propLastMessage    = "last_message"
)

// Factories returns factories of all built-in element types.
func Factories() []flow.Factory {
	return []flow.Factory{
		fakeSrcFactory,
		fakeSinkFactory,
		fileSrcFactory,
		fileSinkFactory,
		identityFactory,
		queueFactory,
		teeFactory,
		statisticsFactory,
		demuxFactory,
		wavSrcFactory,
		wavSinkFactory,
		rtpPayFactory,
		rtpDepayFactory,
	}
}

// Register adds all built-in element types to the registry.
func Register(r *flow.Registry) error {
	for _, f := range Factories() {
		if err := r.Register(f); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	if err := Register(flow.DefaultRegistry); err != nil {
		panic(err)
	}
}

// opening returns true for transition which allocates stream resources.
func opening(t flow.Transition) bool {
	return t == flow.Transition{From: flow.Ready, To: flow.Paused}
}

// closing returns true for transition which releases stream resources.
func closing(t flow.Transition) bool {
	return t == flow.Transition{From: flow.Paused, To: flow.Ready}
}

// handoff emits handoff signal if element is configured to do so.
func handoff(e *flow.Element, b *flow.Buffer, p *flow.Pad) error {
	if !flow.Value[bool](e, propSignalHandoffs) {
		return nil
	}
	return e.Emit(flow.SignalHandoff, b, p)
}
