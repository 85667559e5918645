package commands

import (
	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel string
	migrate  bool
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "double-entry",
		Short: "Double-entry ledger posting and tax reconciliation",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logLevel == "" {
				return nil
			}
			lvl, err := logrus.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			config.GetLogger().SetLevel(lvl)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&opts.migrate, "migrate", false, "auto-migrate the ledger tables before running")

	rootCmd.AddCommand(newAccountBalancesCommand(opts))
	rootCmd.AddCommand(newMigrateTaxLedgersCommand(opts))
	rootCmd.AddCommand(newWorkerCommand(opts))
	rootCmd.AddCommand(newTasksCommand(opts))

	return rootCmd
}

func (o *rootOptions) prepare(cmd *cobra.Command) (*engine, error) {
	db, err := connect(cmd.Context())
	if err != nil {
		return nil, err
	}
	if o.migrate {
		if err := models.MigrateTable(db); err != nil {
			return nil, err
		}
	}
	return newEngine(db, config.GetLogger()), nil
}
