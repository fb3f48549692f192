// Package cmd implements the webhaul command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/webhaul/webhaul/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "webhaul",
	Short: "Asynchronous web scraping job service",
	Long: `webhaul runs web scraping jobs asynchronously: admit a job, watch its
progress over a websocket, answer human-input prompts when the agent needs
them, and fetch the result when it completes.

Run 'webhaul serve' to start the service, or use the 'jobs' command group
to talk to a running instance.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	rootLogLevel   string
	rootLogProfile string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&rootLogProfile, "log-profile", "", "Log profile: STRUCTURED (JSON) or CONSOLE")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return observability.InitCLILogger(rootLogLevel, rootLogProfile)
	}
}

// versionInfo holds build metadata injected at link time via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command and the
// /version endpoint.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}

// Execute runs the root command.
func Execute() {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
