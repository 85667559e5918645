package commands

import (
	"encoding/json"
	"fmt"

	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/spf13/cobra"
)

func newTasksCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and requeue queued ledger tasks",
	}
	cmd.AddCommand(newTasksStatusCommand(root))
	cmd.AddCommand(newTasksRequeueCommand(root))
	return cmd
}

func newTasksStatusCommand(root *rootOptions) *cobra.Command {
	var (
		businessId string
		ownerType  string
		ownerId    int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the latest ledger task of a journal, transaction or tax line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := models.ParseLedgerable(models.LedgerableType(ownerType), ownerId)
			if err != nil {
				return err
			}
			e, err := root.prepare(cmd)
			if err != nil {
				return err
			}
			ctx := utils.SetBusinessIdInContext(cmd.Context(), businessId)
			status, err := models.GetLedgerTaskStatus(ctx, e.DB, businessId, owner)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&businessId, "business-id", "", "business the task belongs to")
	cmd.Flags().StringVar(&ownerType, "owner-type", string(models.LedgerableTypeTransactionTax), "journal, transaction or transaction_tax")
	cmd.Flags().IntVar(&ownerId, "owner-id", 0, "id of the owner")
	_ = cmd.MarkFlagRequired("business-id")
	_ = cmd.MarkFlagRequired("owner-id")
	return cmd
}

func newTasksRequeueCommand(root *rootOptions) *cobra.Command {
	var businessId string
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Put dead, failed and unprocessed sent tasks of a business back in the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.prepare(cmd)
			if err != nil {
				return err
			}
			ctx := utils.SetBusinessIdInContext(cmd.Context(), businessId)
			n, err := models.RequeueLedgerTasks(ctx, e.DB, businessId)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d ledger tasks\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&businessId, "business-id", "", "business whose tasks are requeued")
	_ = cmd.MarkFlagRequired("business-id")
	return cmd
}
