package cmd

import (
	"github.com/spf13/cobra"

	"reporunner/internal/app"
)

func newResumeCmd() *cobra.Command {
	var (
		runID      string
		configPath string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "resume <repository-path>",
		Short: "Resume an interrupted run from its checkpoint",
		Long: `resume loads the checkpoint of an earlier run and continues it.
Phases that already completed are replayed from their recorded outputs
instead of being executed again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), app.RunOptions{
				RepoPath:   args[0],
				ConfigPath: configPath,
				RunID:      runID,
				JSONOutput: jsonOutput,
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "ID of the run to resume (required)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to an explicit config file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the run report as JSON")
	cmd.MarkFlagRequired("run-id")
	return cmd
}
