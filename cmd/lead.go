package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-router/internal/model"
	"github.com/sells-group/lead-router/internal/store"
)

var (
	leadFormat string

	leadsStatus string
	leadsEmail  string
	leadsLimit  int
	leadsOffset int
)

var leadCmd = &cobra.Command{
	Use:   "lead <id>",
	Short: "Show a stored lead and its bid attempts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "read")
		if err != nil {
			return err
		}
		defer st.Close()

		rec, err := st.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "get lead %s", args[0])
		}
		attempts, err := st.ListAttempts(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "list attempts for %s", args[0])
		}

		return writeFormatted(cmd.OutOrStdout(), leadFormat, newLeadView(rec, attempts))
	},
}

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List stored leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "read")
		if err != nil {
			return err
		}
		defer st.Close()

		recs, err := st.ListLeads(ctx, store.LeadFilter{
			Status: model.LeadStatus(leadsStatus),
			Email:  leadsEmail,
			Limit:  leadsLimit,
			Offset: leadsOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list leads")
		}

		views := make([]model.LeadRecord, len(recs))
		for i := range recs {
			views[i] = recs[i]
			views[i].Lead.SSN = maskSSN(recs[i].Lead.SSN)
		}
		return writeFormatted(cmd.OutOrStdout(), leadFormat, views)
	},
}

func init() {
	leadCmd.Flags().StringVar(&leadFormat, "format", "json", "output format: json or yaml")
	leadsCmd.Flags().StringVar(&leadFormat, "format", "json", "output format: json or yaml")
	leadsCmd.Flags().StringVar(&leadsStatus, "status", "", "filter by status (pending, sold, rejected, error)")
	leadsCmd.Flags().StringVar(&leadsEmail, "email", "", "filter by applicant email")
	leadsCmd.Flags().IntVar(&leadsLimit, "limit", 100, "max leads to list")
	leadsCmd.Flags().IntVar(&leadsOffset, "offset", 0, "leads to skip")
	rootCmd.AddCommand(leadCmd, leadsCmd)
}
