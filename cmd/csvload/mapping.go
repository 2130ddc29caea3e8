package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvload/internal/core"
	"github.com/JonMunkholm/csvload/internal/schema"
)

// targetFlags are the flags shared by validate and load.
type targetFlags struct {
	file     string
	schema   string
	table    string
	mappings []string
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "CSV file to read (required)")
	cmd.Flags().StringVar(&f.schema, "schema", "", "schema file name in the schema directory")
	cmd.Flags().StringVar(&f.table, "table", "", "target table as schema.table, when no schema file is used")
	cmd.Flags().StringArrayVarP(&f.mappings, "map", "m", nil, "mapping target=csvcol[:TYPE]; repeatable")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagsMutuallyExclusive("schema", "table")
	cmd.MarkFlagsOneRequired("schema", "table")
}

// parseMapping parses target=csvcol[:TYPE]. The type follows the last
// colon, so CSV column names may contain colons when a type is given.
func parseMapping(s string) (core.MappingRequest, error) {
	target, rest, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(target) == "" || rest == "" {
		return core.MappingRequest{}, fmt.Errorf("invalid mapping %q: want target=csvcol[:TYPE]", s)
	}
	m := core.MappingRequest{TargetColumn: strings.TrimSpace(target), CSVColumn: rest}
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		m.CSVColumn = rest[:i]
		m.TargetType = strings.TrimSpace(rest[i+1:])
	}
	return m, nil
}

// plan is everything needed to run a load.
type plan struct {
	table   core.QualifiedName
	header  []string
	entries []core.MappingEntry
}

// resolve reads the header and validates the mapping against the schema,
// without touching any store. Mappings without a type take the schema
// column's type.
func (f *targetFlags) resolve(ctx context.Context, schemaDir string) (plan, error) {
	if len(f.mappings) == 0 {
		return plan{}, errors.New("at least one --map is required")
	}
	reqs := make([]core.MappingRequest, 0, len(f.mappings))
	for _, s := range f.mappings {
		m, err := parseMapping(s)
		if err != nil {
			return plan{}, err
		}
		reqs = append(reqs, m)
	}

	var (
		ts    *core.TableSchema
		table core.QualifiedName
	)
	if f.schema != "" {
		repo, err := schema.New(schemaDir)
		if err != nil {
			return plan{}, err
		}
		resolved, err := repo.Resolve(ctx, f.schema)
		if err != nil {
			return plan{}, err
		}
		ts, table = &resolved, resolved.Table
		fillTypes(ts, reqs)
	} else {
		q, err := core.ValidateQualifiedTable(f.table)
		if err != nil {
			return plan{}, err
		}
		table = q
	}

	file, err := os.Open(f.file)
	if err != nil {
		return plan{}, err
	}
	defer file.Close()
	header, err := core.ReadHeader(file)
	if err != nil {
		return plan{}, err
	}

	entries, err := core.ValidateMappings(ts, header, reqs)
	if err != nil {
		return plan{}, err
	}
	return plan{table: table, header: header, entries: entries}, nil
}

func fillTypes(ts *core.TableSchema, reqs []core.MappingRequest) {
	for i, r := range reqs {
		if r.TargetType != "" {
			continue
		}
		id, err := core.ValidateIdentifier(r.TargetColumn)
		if err != nil {
			continue
		}
		if col, ok := ts.Column(id); ok {
			reqs[i].TargetType = col.Type.String()
		}
	}
}

// describeError expands aggregated errors into one line per problem.
func describeError(err error) string {
	var (
		verr    *core.ValidationError
		convErr *core.ConversionError
		ferr    *schema.FileError
	)
	var b strings.Builder
	switch {
	case errors.As(err, &verr):
		b.WriteString("Validation failed:")
		for _, m := range verr.Messages() {
			b.WriteString("\n  - " + m)
		}
	case errors.As(err, &convErr):
		b.WriteString("Conversion failed, nothing was loaded:")
		for _, m := range convErr.Messages() {
			b.WriteString("\n  - " + m)
		}
	case errors.As(err, &ferr):
		b.WriteString(ferr.Error())
		for _, m := range ferr.Details() {
			b.WriteString("\n  - " + m)
		}
	default:
		b.WriteString(err.Error())
	}
	if msg := core.MapError(err); msg.Code != "" {
		fmt.Fprintf(&b, "\n(Code: %s) %s", msg.Code, msg.Action)
	}
	return b.String()
}
