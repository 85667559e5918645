package commands

import (
	"github.com/mmdatafocus/double_entry/workflow"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newMigrateTaxLedgersCommand(root *rootOptions) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "migrate-tax-ledgers",
		Short: "Create the missing tax ledger lines of every business",
		Long: "Replays tax line creation for every existing tax line of every business with the\n" +
			"double-entry module enabled. Safe to re-run: lines already posted are skipped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.prepare(cmd)
			if err != nil {
				return err
			}
			runner := workflow.NewBackfillRunner(e.DB, e.Modules, e.Reconciler, e.Logger)
			runner.BatchSize = batchSize

			report, err := runner.Run(cmd.Context())
			if report != nil {
				for _, b := range report.Businesses {
					e.Logger.WithFields(logrus.Fields{
						"field":       "migrate-tax-ledgers",
						"business_id": b.BusinessId,
						"processed":   b.Processed,
						"posted":      b.Posted,
						"skipped":     b.Skipped,
						"failed":      b.Failed,
					}).Info("business summary")
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 200, "tax lines loaded per batch")
	return cmd
}
