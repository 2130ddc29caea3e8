package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var flags targetFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a mapping against the CSV header and schema without loading",
		Example: `  csvload validate -f people.csv --schema people.txt -m PersonID=id -m FullName=name
  csvload validate -f people.csv --table dbo.People -m id=id:INT -m name=name:NVARCHAR(100)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := flags.resolve(cmd.Context(), opts.schemaDir)
			if err != nil {
				return errors.New(describeError(err))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Mapping is valid for %s\n", p.table)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TARGET\tCSV COLUMN\tTYPE\tNULL")
			for _, e := range p.entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", e.TargetColumn, e.CSVColumn, e.TargetType, e.Nullable)
			}
			return tw.Flush()
		},
	}

	flags.register(cmd)
	return cmd
}
