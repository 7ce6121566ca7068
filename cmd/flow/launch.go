package main

import (
	"github.com/spf13/cobra"

	"github.com/dudk/flow"
	"github.com/dudk/flow/launch"
)

func newLaunchCommand(e *env) *cobra.Command {
	var metrics bool
	cmd := &cobra.Command{
		Use:   "launch <description.yaml>",
		Short: "Build pipeline from description and play it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := launch.Load(args[0])
			if err != nil {
				return err
			}
			options := []flow.Option{flow.WithLogger(e.logger)}
			if metrics {
				options = append(options, flow.WithMetric())
			}
			p, err := d.Build(e.registry, options...)
			if err != nil {
				return err
			}
			return play(cmd.Context(), p)
		},
	}
	cmd.Flags().BoolVar(&metrics, "metrics", false, "Collect metrics of elements")
	return cmd
}
