package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kingsroom/scrapemeta/internal/config"
	"github.com/kingsroom/scrapemeta/pkg/cache"
	customerrors "github.com/kingsroom/scrapemeta/pkg/errors"
	"github.com/kingsroom/scrapemeta/pkg/session"
	"github.com/kingsroom/scrapemeta/pkg/store"
	"github.com/kingsroom/scrapemeta/pkg/tables"
	"github.com/kingsroom/scrapemeta/pkg/wipe"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scrapemeta",
		Short: "Scraper metadata lifecycle tool",
		Long: `scrapemeta manages the scraper's metadata tables: it can bulk-wipe
derived state (attempts, jobs, discovered URLs, inferred structures) while
preserving the HTML blob cache, and audit that the cache is intact.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("region", "r", "", "AWS region (defaults to AWS_REGION)")
	rootCmd.PersistentFlags().String("endpoint", "", "DynamoDB endpoint override for local stacks")
	rootCmd.PersistentFlags().StringP("env", "e", "dev", "Deployment environment tag suffixed to table names")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	wipeCmd := &cobra.Command{
		Use:   "wipe",
		Short: "Wipe scraper metadata tables, preserving the blob cache index",
		RunE:  runWipe,
	}
	wipeCmd.Flags().Bool("live", false, "Actually delete; without this flag the run is a dry run")
	wipeCmd.Flags().String("report", "", "Write the run report to this file as YAML")

	verifyCmd := &cobra.Command{
		Use:   "verify-cache",
		Short: "Audit that cached HTML blobs referenced by the cache index exist",
		RunE:  runVerifyCache,
	}
	verifyCmd.Flags().String("cache-bucket", "", "S3 bucket holding cached HTML blobs")
	verifyCmd.Flags().Int("sample", 25, "How many cache records to audit (0 = all)")

	rootCmd.AddCommand(wipeCmd, verifyCmd)

	if err := rootCmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func runWipe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess, err := session.NewSession(ctx, &session.Config{
		Region:   cfg.Region,
		Endpoint: cfg.Endpoint,
	})
	if err != nil {
		return err
	}

	client, err := sess.DynamoDB()
	if err != nil {
		return err
	}

	inv, err := tables.NewInventory(cfg.Env)
	if err != nil {
		return err
	}

	mode := wipe.ModeDryRun
	if cfg.Live {
		mode = wipe.ModeLive
	}

	// Live runs must show whose credentials are about to delete data;
	// for a dry run an unresolvable identity is only worth a warning.
	identity, err := sess.CallerIdentity(ctx)
	if err != nil {
		if mode == wipe.ModeLive {
			return fmt.Errorf("cannot start live wipe: %w", err)
		}
		logrus.WithError(err).Warn("could not resolve caller identity")
	}

	orch := wipe.NewOrchestrator(store.New(client), inv, wipe.StdinGate(os.Stdout), os.Stdout).
		WithIdentity(identity)

	report, runErr := orch.Run(ctx, mode)

	if cfg.ReportFile != "" {
		if err := writeReport(cfg.ReportFile, report); err != nil {
			logrus.WithError(err).Error("failed to write report file")
		}
	}

	// Declining the prompt is a clean exit, everything else fatal
	if runErr != nil && !customerrors.IsOperatorAbort(runErr) {
		return runErr
	}
	return nil
}

func runVerifyCache(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setupLogging(cfg.LogLevel)

	if cfg.CacheBucket == "" {
		return fmt.Errorf("cache bucket must be set (--cache-bucket or SCRAPEMETA_CACHE_BUCKET)")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sess, err := session.NewSession(ctx, &session.Config{
		Region:   cfg.Region,
		Endpoint: cfg.Endpoint,
	})
	if err != nil {
		return err
	}

	client, err := sess.DynamoDB()
	if err != nil {
		return err
	}
	blobs, err := sess.S3()
	if err != nil {
		return err
	}

	inv, err := tables.NewInventory(cfg.Env)
	if err != nil {
		return err
	}

	verifier := cache.NewVerifier(cache.NewIndex(client, inv.CacheIndex()), blobs, cfg.CacheBucket)
	report, err := verifier.Verify(ctx, cfg.SampleSize)
	if err != nil {
		return err
	}

	fmt.Printf("checked %d cache records\n", report.Checked)
	for _, key := range report.Missing {
		fmt.Printf("missing blob: %s\n", key)
	}
	if !report.OK() {
		return fmt.Errorf("cache verification failed: %d blobs missing", len(report.Missing))
	}
	fmt.Println("cache intact")
	return nil
}

func writeReport(path string, report *wipe.RunReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func setupLogging(level string) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
	})

	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
