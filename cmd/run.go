package cmd

import (
	"github.com/spf13/cobra"

	"reporunner/internal/app"
)

func newRunCmd() *cobra.Command {
	var (
		mode       string
		timeout    int
		configPath string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "run <repository-path>",
		Short: "Analyze a repository and bring its services up",
		Long: `run detects the services in the repository, assigns them ports,
installs dependencies, starts everything in dependency order, and
validates health. The run is checkpointed; use "resume" to continue an
interrupted or partially failed run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(cmd.Context(), app.RunOptions{
				RepoPath:       args[0],
				ConfigPath:     configPath,
				Mode:           mode,
				TimeoutSeconds: timeout,
				JSONOutput:     jsonOutput,
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", `run mode: "full" or "fast" (default from config)`)
	cmd.Flags().IntVar(&timeout, "timeout", 0, "global timeout in seconds (default from config)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to an explicit config file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit the run report as JSON")
	return cmd
}
