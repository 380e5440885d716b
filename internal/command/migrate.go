package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/streme-fun/streme-bot/internal/storage/migrations"
)

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, _ := cmd.Flags().GetBool("list")
			if list {
				files, err := migrations.PostgresFiles()
				if err != nil {
					return writeCommandError(cmd, err)
				}
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return nil
			}

			cc, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cc.Close()
			if cc.Stub {
				return writeCommandError(cmd, fmt.Errorf("migrate needs Postgres; drop --stub"))
			}

			pool, err := cc.pool(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if err := migrations.RunPostgres(cmd.Context(), pool); err != nil {
				return writeCommandError(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
	cmd.Flags().Bool("list", false, "print the embedded migration files and exit")
	return cmd
}
