// Package cli holds the opustrack command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/opustrack/opustrack/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile string
}

// NewRootCommand creates the root command for the opustrack binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "opustrack",
		Short: "OpusTrack - inspection incidents, work orders and parts",
		Long: `OpusTrack tracks vehicle-inspection incidents, the work orders raised
against them and the parts those work orders consume, per inspection center (VIC).`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.EnvFile != "" {
				config.LoadDotEnv(opts.EnvFile)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment (skipped when missing)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewAccessCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}
