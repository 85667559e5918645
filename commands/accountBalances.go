package commands

import (
	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/workflow"
	"github.com/spf13/cobra"
)

func newAccountBalancesCommand(root *rootOptions) *cobra.Command {
	var businessId string

	cmd := &cobra.Command{
		Use:   "account-balances",
		Short: "Post the open and mixed invoice totals as summary journals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.prepare(cmd)
			if err != nil {
				return err
			}
			aggregator := &workflow.BalanceAggregator{
				Accounts: e.Accounts,
				Source:   &workflow.SQLAmountDueSource{DB: e.DB},
				Journals: e.Journals,
				Ledgers:  e.Ledgers,
				Streams:  workflow.DefaultSummaryStreams(),
				Logger:   e.Logger,
			}
			_, err = aggregator.Run(cmd.Context(), businessId)
			return err
		},
	}
	cmd.Flags().StringVar(&businessId, "business-id", config.AggregatorBusinessId(), "business the summaries are posted for")
	return cmd
}
