package cmd

import (
	"github.com/spf13/cobra"

	"reporunner/internal/app"
)

func newDetectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <repository-path>",
		Short: "Show the services reporunner would bring up, without starting anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Detect(args[0], cmd.OutOrStdout())
		},
	}
}
