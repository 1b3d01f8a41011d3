// Command reedbase is the CLI front end for an embedded ReedBase
// database directory: open/create tables, run SELECT queries, apply
// INSERT/UPDATE/DELETE statements, and inspect indices and history.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reedbase/reedbase"
)

var (
	dbPath     string
	configPath string
	user       string

	logger *zap.Logger
	db     *reedbase.Database
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "reedbase",
		Short:         "Inspect and query a ReedBase database directory",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = zap.NewProduction()
			if err != nil {
				return err
			}

			var cfg *reedbase.Config
			if configPath != "" {
				loaded, err := reedbase.LoadConfig(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = &loaded
			}

			db, err = reedbase.Open(dbPath, cfg, logger)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
	}

	root.PersistentFlags().StringVar(&dbPath, "db", "./data", "database directory")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")
	root.PersistentFlags().StringVar(&user, "user", "cli", "attributed user for write operations")

	root.AddCommand(
		newCreateTableCmd(),
		newCreateIndexCmd(),
		newQueryCmd(),
		newExecCmd(),
		newLookupCmd(),
		newTablesCmd(),
		newIndicesCmd(),
		newHistoryCmd(),
		newRollbackCmd(),
		newDropTableCmd(),
		newCheckLogCmd(),
		newStatsCmd(),
	)
	return root
}
