package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/lead-router/internal/waterfall"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Show each vendor's price tiers and report missing credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("submit"); err != nil {
			return err
		}

		primary, fallback := buildSteps(cfg)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "test_mode: %t\n", cfg.TestMode)
		for _, s := range []waterfall.Step{primary, fallback} {
			prices := make([]string, len(s.Tiers))
			for i, p := range s.Tiers {
				prices[i] = p.String()
			}
			fmt.Fprintf(out, "%s (%d tiers): %s\n", s.Adapter.Name(), len(s.Tiers), strings.Join(prices, ", "))
		}

		if err := waterfall.NewExecutor(nil, primary, fallback).CheckConfig(); err != nil {
			fmt.Fprintf(out, "warning: %v\n", err)
			return nil
		}
		fmt.Fprintln(out, "credentials: ok")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkConfigCmd)
}
