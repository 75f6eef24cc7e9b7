package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Release jobs whose locks expired, once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, closeStore, err := openEngine(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := eng.Sweeper().RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d job(s)\n", n)
			return nil
		},
	}
}
