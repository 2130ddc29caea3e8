package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvload/internal/config"
	"github.com/JonMunkholm/csvload/internal/core"
	"github.com/JonMunkholm/csvload/internal/store"
)

func newLoadCmd(opts *rootOptions) *cobra.Command {
	var (
		flags     targetFlags
		driver    string
		dsn       string
		chunkSize int
		maxErrors int
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a CSV file into its target table in one transaction",
		Long: `Load validates the mapping, then streams the file into the target table.
The table is created when missing. Any conversion or store error rolls the
whole load back.

The database comes from --driver/--dsn, or from DB_DRIVER and DATABASE_URL.`,
		Example: `  csvload load -f people.csv --schema people.txt -m PersonID=id -m FullName=name
  csvload load -f amounts.csv --table stage.Amounts -m code=code:VARCHAR(5) --driver sqlite --dsn local.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			p, err := flags.resolve(ctx, opts.schemaDir)
			if err != nil {
				return errors.New(describeError(err))
			}

			dbCfg := config.DatabaseConfig{Driver: driver, URL: dsn, MaxConns: 2, MinConns: 1}
			if dsn == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				dbCfg = cfg.Database
				if !cmd.Flags().Changed("chunk-size") {
					chunkSize = cfg.Load.ChunkSize
				}
				if !cmd.Flags().Changed("max-errors") {
					maxErrors = cfg.Load.MaxErrors
				}
			}

			st, closeStore, err := store.Open(ctx, dbCfg)
			if err != nil {
				return err
			}
			defer closeStore()

			loader := core.NewLoader(st, core.LoaderConfig{
				ChunkSize: chunkSize,
				MaxErrors: maxErrors,
				Logger:    opts.logger.With("table", p.table.String()),
			})
			result, err := loader.Load(ctx, flags.file, p.table, p.entries)
			if err != nil {
				return errors.New(describeError(err))
			}

			created := ""
			if result.TableCreated {
				created = " (table created)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d rows into %s%s\n", result.RowsInserted, p.table, created)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&driver, "driver", config.DriverSQLServer, "store driver when --dsn is set: sqlserver, postgres or sqlite")
	cmd.Flags().StringVar(&dsn, "dsn", "", "database connection string; overrides DATABASE_URL")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", core.DefaultChunkSize, "records per insert batch")
	cmd.Flags().IntVar(&maxErrors, "max-errors", core.DefaultMaxErrors, "row errors to collect before aborting")
	return cmd
}
