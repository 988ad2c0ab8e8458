package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"EcoPulse/internal/app"
	"EcoPulse/internal/config"
	"EcoPulse/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one pipeline run and print its summary as JSON",
	RunE:  runOnce,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline on the configured cron schedule until interrupted",
	Long: `Starts the cron scheduler using scheduler.cronExpression in scheduler.timezone.
A trigger that fires while the previous run is still in progress is skipped.`,
	RunE: runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE:  runMigrate,
}

var showLimit int

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print stored topics and articles as JSON",
}

var showTopicCmd = &cobra.Command{
	Use:   "topic <name>",
	Short: "Print a topic's current state and recent score history",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowTopic,
}

var showArticleCmd = &cobra.Command{
	Use:   "article <url>",
	Short: "Print one stored article",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowArticle,
}

func init() {
	showTopicCmd.Flags().IntVar(&showLimit, "limit", 10, "history rows to print, 0 for all")
	showCmd.AddCommand(showTopicCmd)
	showCmd.AddCommand(showArticleCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(configPath)
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	summary, err := application.RunOnce(cmd.Context())
	if err != nil {
		return fmt.Errorf("pipeline run %s: %w", summary.RunID, err)
	}

	return printJSON(cmd, summary)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(configPath)
	logger := logging.New(cfg.Logging.Level)

	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	return application.Serve(cmd.Context())
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load(configPath)
	logger := logging.New(cfg.Logging.Level)

	if err := app.Migrate(cmd.Context(), cfg, logger); err != nil {
		return err
	}
	logger.Info("schema ready", "driver", cfg.Database.Driver)
	return nil
}

func runShowTopic(cmd *cobra.Command, args []string) error {
	cfg := config.Load(configPath)
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level)

	report, err := app.ShowTopic(cmd.Context(), cfg, logger, args[0], showLimit)
	if err != nil {
		return err
	}
	return printJSON(cmd, report)
}

func runShowArticle(cmd *cobra.Command, args []string) error {
	cfg := config.Load(configPath)
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level)

	article, err := app.ShowArticle(cmd.Context(), cfg, logger, args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd, article)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
