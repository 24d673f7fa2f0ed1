package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/jobkit/pkg/config"
)

type rootFlags struct {
	envFiles []string
	topology string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "jobkitd",
		Short:         "Run job queue servers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if len(flags.envFiles) == 0 {
				return nil
			}
			return config.LoadEnv(flags.envFiles...)
		},
	}
	cmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files to load before reading the environment")
	cmd.PersistentFlags().StringVar(&flags.topology, "topology", "", "queue topology file (overrides JOBKIT_TOPOLOGY)")

	cmd.AddCommand(newServeCmd(flags), newMigrateCmd())
	return cmd
}
