package command

import (
	"github.com/spf13/cobra"

	"github.com/streme-fun/streme-bot/internal/stats"
)

// NewStatsCmd creates the stats command group.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Read staking and reward figures of a token",
	}
	cmd.AddCommand(newStatsTokenCmd(), newStatsHolderCmd())
	return cmd
}

func newStatsTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <address>",
		Short: "Aggregate figures of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			calc, cc, err := openCalculator(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cc.Close()

			st, err := calc.TokenStats(cmd.Context(), args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return writeJSON(cmd, st)
		},
	}
}

func newStatsHolderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "holder <address> <holder>",
		Short: "Figures of one holder of a token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			calc, cc, err := openCalculator(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer cc.Close()

			st, err := calc.HolderStats(cmd.Context(), args[0], args[1])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			return writeJSON(cmd, st)
		},
	}
}

func openCalculator(cmd *cobra.Command) (*stats.Calculator, *CommandContext, error) {
	cc, err := GetContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := cc.Store(cmd.Context())
	if err != nil {
		cc.Close()
		return nil, nil, err
	}
	client, err := cc.Chain(cmd.Context())
	if err != nil {
		cc.Close()
		return nil, nil, err
	}
	return stats.NewCalculator(client, store, cc.Network, nil), cc, nil
}
