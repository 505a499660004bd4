package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relata/relata"
)

// seedFile is the YAML document consumed by the seed command.
type seedFile struct {
	Tables []seedTable `yaml:"tables"`
}

type seedTable struct {
	Table string           `yaml:"table"`
	Rows  []map[string]any `yaml:"rows"`
}

// NewSeedCommand inserts rows from a YAML document. The literal field
// value "@uuid" expands to a freshly generated identifier, and each run is
// reported under a generated run tag.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <db> <file.yaml>",
		Short: "Insert rows from a YAML seed file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			var doc seedFile
			if err := yaml.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("parse seed file: %w", err)
			}

			db, err := relata.Open(args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			tag := uuid.NewString()
			for _, spec := range doc.Tables {
				exists, err := db.Table(spec.Table).Exists(cmd.Context())
				if err != nil {
					return err
				}
				if !exists {
					return fmt.Errorf("no such table: %s", spec.Table)
				}

				inserted := 0
				for _, row := range spec.Rows {
					if err := insertRow(cmd, db, spec.Table, row); err != nil {
						return err
					}
					inserted++
				}
				if opts.Verbose {
					fmt.Fprintf(cmd.OutOrStdout(), "seed %s: %s += %d rows\n", tag, spec.Table, inserted)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seed run %s complete\n", tag)
			return nil
		},
	}
}

func insertRow(cmd *cobra.Command, db *relata.DB, table string, row map[string]any) error {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	placeholders := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		placeholders = append(placeholders, "?")
		args = append(args, expandValue(row[c]))
	}

	query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := db.Raw().ExecContext(cmd.Context(), query, args...); err != nil {
		return fmt.Errorf("seed %s: %w", table, err)
	}
	return nil
}

// expandValue substitutes generator placeholders in seed values.
func expandValue(v any) any {
	if s, ok := v.(string); ok && s == "@uuid" {
		return uuid.NewString()
	}
	return v
}
