// Package main is the lessonforge server, worker and operator CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/lessonforge/internal/app"
	"github.com/yungbote/lessonforge/internal/generation"
)

var version = "dev"

var (
	noWorker    bool
	lessonID    string
	activityID  string
	dumpMetrics bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lessonforge",
	Short:         "Lesson activity generation engine",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&noWorker, "no-worker", false, "do not poll the Temporal task queue in this process")
	generateCmd.Flags().StringVar(&lessonID, "lesson", "", "lesson id to generate")
	_ = generateCmd.MarkFlagRequired("lesson")
	retryCmd.Flags().StringVar(&activityID, "activity", "", "activity id to regenerate")
	_ = retryCmd.MarkFlagRequired("activity")
	for _, c := range []*cobra.Command{generateCmd, retryCmd} {
		c.Flags().BoolVar(&dumpMetrics, "metrics", false, "print run metrics to stderr when done")
	}

	rootCmd.AddCommand(serveCmd, workerCmd, generateCmd, retryCmd, migrateCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and the Temporal worker when configured)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			return a.Serve(ctx, !noWorker)
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the Temporal worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			if a.Clients.Temporal == nil {
				return fmt.Errorf("worker requires TEMPORAL_ADDRESS")
			}
			if err := a.StartWorker(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		})
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate every activity of a lesson in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(lessonID)
		if err != nil {
			return fmt.Errorf("invalid --lesson: %w", err)
		}
		enableMetrics()
		return withApp(func(ctx context.Context, a *app.App) error {
			summary, err := a.GenerateLesson(ctx, id)
			printSummary(cmd, summary)
			printMetrics(cmd, a)
			return err
		})
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Regenerate one activity in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(activityID)
		if err != nil {
			return fmt.Errorf("invalid --activity: %w", err)
		}
		enableMetrics()
		return withApp(func(ctx context.Context, a *app.App) error {
			summary, err := a.RetryActivity(ctx, id)
			printSummary(cmd, summary)
			printMetrics(cmd, a)
			return err
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := app.NewLogger()
		if err != nil {
			return err
		}
		defer log.Sync()
		cfg := app.LoadConfig(log)
		cfg.RunMigrations = true
		pg, err := app.OpenDB(log, cfg)
		if err != nil {
			return err
		}
		log.Info("Schema up to date")
		return pg.Close()
	},
}

func withApp(fn func(ctx context.Context, a *app.App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := app.NewLogger()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, log)
	if err != nil {
		log.Error("Failed to initialize app", "error", err)
		log.Sync()
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printSummary(cmd *cobra.Command, summary *generation.RunSummary) {
	if summary == nil {
		return
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)
}

func enableMetrics() {
	if dumpMetrics {
		_ = os.Setenv("METRICS_ENABLED", "true")
	}
}

func printMetrics(cmd *cobra.Command, a *app.App) {
	if !dumpMetrics {
		return
	}
	if err := a.DumpMetrics(cmd.ErrOrStderr()); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "metrics:", err)
	}
}
