package commands

import (
	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/workflow"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newWorkerCommand(root *rootOptions) *cobra.Command {
	var direct bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Dispatch queued ledger tasks and process them",
		Long: "Runs the outbox dispatcher. With Pub/Sub configured the dispatcher publishes tasks and\n" +
			"the worker also drains the task subscription; otherwise tasks run in-process.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.prepare(cmd)
			if err != nil {
				return err
			}
			useDirect := direct || !config.PubSubConfigured()

			g, ctx := errgroup.WithContext(cmd.Context())
			if useDirect {
				dispatcher := workflow.NewOutboxDispatcher(e.DB, &workflow.DirectTaskPublisher{Runner: e.Tasks}, e.Logger)
				g.Go(func() error { return dispatcher.Run(ctx) })
			} else {
				dispatcher := workflow.NewOutboxDispatcher(e.DB, &workflow.PubSubTaskPublisher{Topic: config.LedgerTaskTopic()}, e.Logger)
				subscriber := workflow.NewLedgerTaskSubscriber(e.Tasks, e.Logger)
				g.Go(func() error { return dispatcher.Run(ctx) })
				g.Go(func() error { return subscriber.Run(ctx) })
			}
			e.Logger.WithField("direct", useDirect).Info("ledger task worker started")
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "run tasks in-process even when Pub/Sub is configured")
	return cmd
}
