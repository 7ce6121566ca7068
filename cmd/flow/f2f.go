package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dudk/flow"
)

func newF2FCommand(e *env) *cobra.Command {
	var buffers int
	cmd := &cobra.Command{
		Use:   "f2f",
		Short: "Transfer buffers from fakesrc to fakesink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := e.fakePipeline(buffers, printHandoff(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			return play(cmd.Context(), p)
		},
	}
	cmd.Flags().IntVarP(&buffers, "num-buffers", "n", 10, "Number of buffers to transfer")
	return cmd
}

func printHandoff(w io.Writer) flow.Handler {
	return func(sender *flow.Element, args ...interface{}) error {
		b, _ := args[0].(*flow.Buffer)
		pad, _ := args[1].(*flow.Pad)
		fmt.Fprintf(w, "%s %v (%d bytes, offset %d)\n", sender.Name(), pad, b.Size(), b.Offset)
		return nil
	}
}

// fakePipeline builds fakesrc ! fakesink.
func (e *env) fakePipeline(buffers int, handoff flow.Handler) (*flow.Pipeline, error) {
	p, err := e.pipeline("pipeline")
	if err != nil {
		return nil, err
	}
	src, err := e.registry.Make("fakesrc", "src")
	if err != nil {
		return nil, err
	}
	if err := src.SetProperty("silent", true); err != nil {
		return nil, err
	}
	if err := src.SetProperty("num_buffers", buffers); err != nil {
		return nil, err
	}
	sink, err := e.registry.Make("fakesink", "sink")
	if err != nil {
		return nil, err
	}
	for _, el := range []*flow.Element{src, sink} {
		if _, err := el.Connect(flow.SignalHandoff, handoff); err != nil {
			return nil, err
		}
	}
	if err := p.Add(src, sink); err != nil {
		return nil, err
	}
	if err := src.Link(sink); err != nil {
		return nil, err
	}
	return p, nil
}
