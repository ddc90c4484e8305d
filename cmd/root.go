package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reporunner",
	Short: "Bring up an unfamiliar repository's services automatically",
	Long: `reporunner analyzes a repository, assigns ports to its services,
installs their dependencies, starts them in dependency order, and
verifies they are healthy. Failures are diagnosed and retried, and
every step is checkpointed so an interrupted run can be resumed.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid arguments, failed runs)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "reporunner version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newDetectCmd())
	rootCmd.AddCommand(newVersionCmd())
}
