package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvload/internal/logging"
)

type rootOptions struct {
	schemaDir string
	envFile   string
	logLevel  string
	logger    *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "csvload",
		Short:         "csvload loads CSV files into relational tables",
		Long:          `Validate column mappings and load CSV files into SQL Server, PostgreSQL or SQLite tables in a single transaction.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile != "" {
				if err := godotenv.Load(opts.envFile); err != nil && !os.IsNotExist(err) {
					return err
				}
			}
			opts.logger = logging.New(opts.logLevel, "text", cmd.ErrOrStderr())
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.schemaDir, "schema-dir", "schemas", "directory holding schema files")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to read before loading configuration")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(newSchemasCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newLoadCmd(opts))
	return cmd
}
