package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/rancher/api-commit-action/internal/app"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Printf("api commit action failed: %v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		overrides app.Overrides
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "api-commit-action",
		Short: "Commit working tree changes through the GitHub API",
		Long: "api-commit-action uploads the files changed since HEAD as a single commit created through the " +
			"GitHub Git data API, then either opens a pull request from a new branch or advances an existing branch.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("dry-run") {
				overrides.DryRun = &dryRun
			}

			cfg, err := app.LoadConfig(overrides)
			if err != nil {
				return err
			}

			runner, err := app.NewRunner(cfg)
			if err != nil {
				return err
			}

			return runner.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&overrides.ConfigFile, "config", "", "Path to a YAML config file (overrides INPUT_CONFIG_FILE)")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&overrides.LogFormat, "log-format", "", "Log format: text or json")
	flags.BoolVar(&dryRun, "dry-run", false, "Detect changes without writing to GitHub")
	flags.StringVar(&overrides.WorkingDirectory, "working-directory", "", "Git working tree to publish from")

	return cmd
}
