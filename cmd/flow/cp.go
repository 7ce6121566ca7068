package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudk/flow"
	"github.com/dudk/flow/element"
)

func newCpCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "cp <source> <dest>",
		Short: "Copy file and print statistics",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := e.copyPipeline(args[0], args[1], func(sender *flow.Element, values ...interface{}) error {
				fmt.Fprintln(cmd.OutOrStdout(), sender.Name(), values)
				return nil
			})
			if err != nil {
				return err
			}
			return play(cmd.Context(), p)
		},
	}
}

// copyPipeline builds filesrc ! statistics ! filesink.
func (e *env) copyPipeline(source, dest string, update flow.Handler) (*flow.Pipeline, error) {
	p, err := e.pipeline("pipeline")
	if err != nil {
		return nil, err
	}
	src, err := e.registry.Make("filesrc", "source")
	if err != nil {
		return nil, err
	}
	if err := src.SetProperty("location", source); err != nil {
		return nil, err
	}
	stats, err := e.registry.Make("statistics", "stats")
	if err != nil {
		return nil, err
	}
	for name, value := range map[string]interface{}{
		"silent":             false,
		"buffer_update_freq": 1,
		"update_on_eos":      true,
	} {
		if err := stats.SetProperty(name, value); err != nil {
			return nil, err
		}
	}
	if _, err := stats.Connect(element.SignalUpdate, update); err != nil {
		return nil, err
	}
	sink, err := e.registry.Make("filesink", "sink")
	if err != nil {
		return nil, err
	}
	if err := sink.SetProperty("location", dest); err != nil {
		return nil, err
	}

	elements := []*flow.Element{src, stats, sink}
	for i, el := range elements {
		if err := p.Add(el); err != nil {
			return nil, err
		}
		if i > 0 {
			if err := elements[i-1].Link(el); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}
