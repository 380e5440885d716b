package command

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewTokensCmd creates the tokens command group.
func NewTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Inspect recorded tokens",
	}
	cmd.AddCommand(newTokensListCmd(), newTokensGetCmd())
	return cmd
}

func newTokensListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded tokens, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cc.Close()

			store, err := cc.Store(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}
			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				return writeCommandError(cmd, fmt.Errorf("--limit must be positive"))
			}
			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tokens recorded.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tSYMBOL\tADDRESS\tFID\tCAST")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					r.Timestamp.UTC().Format("2006-01-02 15:04"), r.Symbol, r.ContractAddress, r.RequestorFID, r.CastHash)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of tokens")
	cmd.Flags().Bool("json", false, "output in JSON format")
	return cmd
}

func newTokensGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <address>",
		Short: "Show one token record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cc.Close()

			store, err := cc.Store(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}
			rec, err := store.GetByAddress(cmd.Context(), strings.ToLower(args[0]))
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return writeJSON(cmd, rec)
		},
	}
}
