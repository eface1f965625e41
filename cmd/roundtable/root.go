package main

import (
	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/roundtable/roundtable"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          internal.DefaultAppName,
		Short:        "Turn-taking conversation between one person and a table of agents",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to a config file (default: ./config.yaml or the user config dir)")

	root.AddCommand(newChatCmd(), newReplayCmd())
	return root
}
