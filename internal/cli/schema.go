package cli

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relata/relata"
)

// NewSchemaCommand prints the stored DDL for one table.
func NewSchemaCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <db> <table>",
		Short: "Print the stored DDL for a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := relata.Open(args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			var ddl string
			err = db.Raw().QueryRowContext(cmd.Context(), `
				SELECT sql FROM sqlite_master
				WHERE type = 'table' AND name = ?
			`, args[1]).Scan(&ddl)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("no such table: %s", args[1])
			}
			if err != nil {
				return fmt.Errorf("read schema: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), ddl)
			return nil
		},
	}
}
