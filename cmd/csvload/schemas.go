package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvload/internal/schema"
)

func newSchemasCmd(opts *rootOptions) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "schemas",
		Short: "List the schema files in the schema directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := schema.New(opts.schemaDir)
			if err != nil {
				return err
			}
			names, err := repo.List()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !verbose {
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTABLE\tCOLUMNS")
			for _, n := range names {
				doc, err := repo.Get(n)
				if err != nil {
					fmt.Fprintf(tw, "%s\t(invalid)\t%v\n", n, err)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\n", n, doc.Table, len(doc.Columns))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show each schema's table and column count")
	return cmd
}
