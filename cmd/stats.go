package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statsFormat string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show lead outcomes and per-vendor, per-tier acceptance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "read")
		if err != nil {
			return err
		}
		defer st.Close()

		s, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "load stats")
		}
		return writeFormatted(cmd.OutOrStdout(), statsFormat, newStatsView(s))
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(statsCmd)
}
