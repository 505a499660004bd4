package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relata/relata"
)

// NewTablesCommand lists the tables of a database, marking the reserved
// relation table.
func NewTablesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <db>",
		Short: "List tables in a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := relata.Open(args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.Raw().QueryContext(cmd.Context(), `
				SELECT name FROM sqlite_master
				WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
				ORDER BY name
			`)
			if err != nil {
				return fmt.Errorf("list tables: %w", err)
			}
			defer rows.Close()

			for rows.Next() {
				var name string
				if err := rows.Scan(&name); err != nil {
					return fmt.Errorf("list tables: %w", err)
				}
				if name == relata.RelationTable {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (relation store)\n", name)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return rows.Err()
		},
	}
}
