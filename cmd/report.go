package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-router/internal/leadio"
	"github.com/sells-group/lead-router/internal/model"
	"github.com/sells-group/lead-router/internal/store"
)

var (
	reportVendor string
	reportStatus string
	reportLimit  int
)

var reportCmd = &cobra.Command{
	Use:   "report <out.xlsx>",
	Short: "Export bid attempts and acceptance stats to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "read")
		if err != nil {
			return err
		}
		defer st.Close()

		attempts, err := st.ListAllAttempts(ctx, store.AttemptFilter{
			Vendor: reportVendor,
			Status: model.AttemptStatus(reportStatus),
			Limit:  reportLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list attempts")
		}
		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "load stats")
		}

		if err := leadio.WriteReport(args[0], attempts, stats); err != nil {
			return err
		}
		zap.L().Info("report written",
			zap.String("path", args[0]),
			zap.Int("attempts", len(attempts)),
		)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportVendor, "vendor", "", "only attempts to this vendor")
	reportCmd.Flags().StringVar(&reportStatus, "status", "", "only attempts with this status")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 10000, "max attempts to export")
	rootCmd.AddCommand(reportCmd)
}
