package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newInspectCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [type]",
		Short: "List element types or show details of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			if len(args) == 0 {
				for _, f := range e.registry.Factories() {
					fmt.Fprintf(w, "%s\t%s\n", f.Name, f.Description)
				}
				return nil
			}

			f, err := e.registry.Lookup(args[0])
			if err != nil {
				return err
			}
			el, err := e.registry.Make(f.Name, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\n\nPads:\n", f.Name, f.Description)
			for _, p := range el.Pads() {
				fmt.Fprintf(w, "  %s\t%v\t%v\n", p.Name(), p.Direction(), p.Caps())
			}
			fmt.Fprintln(w, "\nProperties:")
			for _, p := range el.Properties() {
				access := "rw"
				if p.Readonly {
					access = "r"
				}
				value, _ := el.Property(p.Name)
				fmt.Fprintf(w, "  %s\t%v\t%s\t%v\t%s\n", p.Name, p.Kind, access, value, p.Blurb)
			}
			fmt.Fprintln(w, "\nSignals:")
			for _, s := range el.Signals() {
				fmt.Fprintf(w, "  %s\n", s)
			}
			return nil
		},
	}
}
