package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relata/relata"
)

// NewRowsCommand dumps a table's rows through the untyped Row path.
func NewRowsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rows <db> <table>",
		Short: "Dump a table's rows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := relata.Open(args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			view := db.Table(args[1]).OrderBy("[" + relata.IdentityColumn + "]")
			results, err := view.All(cmd.Context())
			if err != nil {
				return err
			}

			// No binding is registered in a fresh session, so every
			// result is an untyped Row.
			rows := make([]map[string]any, 0, len(results))
			for _, r := range results {
				if row, ok := r.(relata.Row); ok {
					rows = append(rows, map[string]any(row))
				}
			}

			out, err := marshalRows(rows, opts.Format)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func marshalRows(rows []map[string]any, format string) ([]byte, error) {
	if format == "json" {
		out, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode rows: %w", err)
		}
		return append(out, '\n'), nil
	}
	out, err := yaml.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}
	return out, nil
}
