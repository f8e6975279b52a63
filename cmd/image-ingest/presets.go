package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/menta2k/image-ingest/pkg/presets"
)

func (a *app) newPresetsCmd() *cobra.Command {
	var aspects bool

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List compression or aspect presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			if aspects {
				fmt.Fprintln(w, "NAME\tKIND")
				for _, asp := range presets.Aspects() {
					fmt.Fprintf(w, "%s\t%s\n", asp.Name, asp.Kind)
				}
				return w.Flush()
			}

			reg, err := presets.NewRegistry(cfg.Presets)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "NAME\tMAX SIZE\tMAX DIM\tQUALITY\tENCODING")
			for _, p := range reg.List() {
				fmt.Fprintf(w, "%s\t%.2f MB\t%d px\t%.2f\t%s\n",
					p.Name, p.MaxSizeMB, p.MaxDimensionPx, p.Quality, p.TargetEncoding)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&aspects, "aspects", false, "list aspect presets instead")
	return cmd
}
