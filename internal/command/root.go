// Package command implements the streme-cli operator commands.
package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "streme-cli"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Operate the Streme deployment bot",
		Long:          "streme-cli runs single mentions through the pipeline and inspects deployed tokens.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			setupLogging(cmd, verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "config/config.yaml", "path to configuration file")
	cmd.PersistentFlags().Bool("stub", false, "use the in-memory store, stub chain and stub AI")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")

	cmd.AddCommand(
		NewProcessCmd(),
		NewStatsCmd(),
		NewTokensCmd(),
		NewMigrateCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}
