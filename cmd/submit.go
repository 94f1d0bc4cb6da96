package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-router/internal/leadio"
	"github.com/sells-group/lead-router/internal/model"
	"github.com/sells-group/lead-router/internal/validate"
)

var submitFormat string

var submitCmd = &cobra.Command{
	Use:   "submit <lead.json>",
	Short: "Run the waterfall for a single lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open lead")
		}
		decoded, err := leadio.DecodeJSONObject[model.Lead](f)
		f.Close()
		if err != nil {
			return eris.Wrap(err, "decode lead")
		}

		lead := validate.Normalize(*decoded)
		if res := validate.Lead(lead, time.Now()); !res.Valid {
			_ = writeFormatted(cmd.OutOrStdout(), submitFormat, map[string]any{
				"status": "invalid",
				"errors": res.Errors,
			})
			return eris.New("lead failed validation")
		}

		env, err := initRouter(ctx, "submit")
		if err != nil {
			return err
		}
		defer env.Close()

		result := env.Executor.Process(ctx, lead)
		return writeFormatted(cmd.OutOrStdout(), submitFormat, newLeadResponse(result))
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(submitCmd)
}
