package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sabarim/composerdata/internal/auth"
	"github.com/sabarim/composerdata/internal/composer"
	"github.com/sabarim/composerdata/internal/config"
	"github.com/sabarim/composerdata/internal/credentials"
	"github.com/sabarim/composerdata/internal/logging"
	"github.com/sabarim/composerdata/internal/orchestrator"
	"github.com/sabarim/composerdata/internal/report"
	"github.com/sabarim/composerdata/internal/window"
)

var (
	configFile       string
	credentialsPath  string
	startDate        string
	resetCredentials bool
	parquetEnabled   bool
	parquetDir       string
	maxRetries       int
	retryDelayMS     int
	logLevel         string
	showVersion      bool
)

var versionString = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "composerdata",
		Short: "A utility to download symphony performance data from Composer",
		Long: `A standalone utility that authenticates against the Composer trading API,
fetches live and backtest performance series for configured symphony groups,
and prints the merged result as CSV.`,
		Run: runRootCommand,
	}

	rootCmd.Flags().StringVar(&configFile, "config", "config.yaml", "Path to config file")
	rootCmd.Flags().StringVar(&credentialsPath, "credentials", "", "Path to the credential record")
	rootCmd.Flags().StringVar(&startDate, "start-date", "", "Start date (YYYY-MM-DD) for monthly-mode groups")
	rootCmd.Flags().BoolVar(&resetCredentials, "reset-credentials", false, "Delete the stored credential record before running")
	rootCmd.Flags().BoolVar(&parquetEnabled, "parquet", false, "Also write the output table as Parquet files")
	rootCmd.Flags().StringVar(&parquetDir, "parquet-dir", "", "Output directory for Parquet files")
	rootCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Maximum number of retries for failed requests")
	rootCmd.Flags().IntVar(&retryDelayMS, "retry-delay", 0, "Initial retry delay in milliseconds")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Print version information")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runRootCommand(cmd *cobra.Command, args []string) {
	if showVersion {
		fmt.Printf("composerdata version %s\n", versionString)
		return
	}

	log := logging.New(logLevel)

	// 1. Load configuration from file and environment
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading configuration")
	}

	// 2. Override configuration with command-line flags
	if credentialsPath != "" {
		cfg.Credentials.Path = credentialsPath
	}
	if maxRetries > 0 {
		cfg.Fetch.MaxRetries = maxRetries
	}
	if retryDelayMS > 0 {
		cfg.Fetch.RetryDelayMS = retryDelayMS
	}
	if parquetEnabled {
		cfg.Output.ParquetEnabled = true
	}
	if parquetDir != "" {
		cfg.Output.ParquetDir = parquetDir
		cfg.Output.ParquetEnabled = true
	}

	// 3. Create context cancelled by OS signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigchan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	// 4. Resolve credentials, prompting the operator when no usable record exists
	store := credentials.NewStore(cfg.Credentials.Path)
	if resetCredentials {
		if err := store.Delete(); err != nil {
			log.Fatal().Err(err).Msg("failed to reset credentials")
		}
		log.Info().Str("path", store.Path()).Msg("credential record deleted")
	}

	creds, err := store.Load()
	if errors.Is(err, credentials.ErrNotFound) {
		log.Info().Str("path", store.Path()).Msg("no credential record found, capturing")
		creds, err = credentials.Capture(os.Stdin, os.Stderr)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to capture credentials")
		}
		if err := store.Save(creds); err != nil {
			log.Fatal().Err(err).Msg("failed to save credentials")
		}
	} else if err != nil {
		log.Fatal().Err(err).Msg("failed to load credentials")
	}

	// 5. Collect the monthly start date before any network work
	today := time.Now()
	var monthlyStart time.Time
	if cfg.HasMonthly() {
		monthlyStart, err = resolveMonthlyStart(startDate, today)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid start date")
		}
	}

	// 6. Establish the session with a single probe, retrying transient failures
	httpClient := &http.Client{Timeout: time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second}
	session, err := establishSession(ctx, creds, cfg, httpClient, log)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			authFailed(store)
		}
		log.Fatal().Err(err).Msg("failed to establish session")
	}

	// 7. Fetch all groups and assemble the output table
	client := composer.NewClient(session, cfg.API.LiveBaseURL, cfg.API.BacktestBaseURL, composer.Options{
		MaxRetries:        cfg.Fetch.MaxRetries,
		RetryDelay:        time.Duration(cfg.Fetch.RetryDelayMS) * time.Millisecond,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		Timeout:           time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	}, log)

	runner := orchestrator.NewRunner(client, today, monthlyStart, log)
	table, err := runner.Run(ctx, cfg.Groups)
	if err != nil {
		if errors.Is(err, composer.ErrAuthRevoked) {
			authFailed(store)
		}
		log.Fatal().Err(err).Msg("run failed")
	}

	// 8. Render the CSV to stdout only after the full table is assembled
	fmt.Print(report.Render(table))

	if cfg.Output.ParquetEnabled {
		if err := report.WriteParquet(cfg.Output.ParquetDir, table, log); err != nil {
			log.Fatal().Err(err).Msg("failed to write parquet output")
		}
	}

	log.Info().Msg("done")
}

// establishSession retries transient probe failures with doubling backoff.
// Invalid credentials are surfaced immediately and never retried.
func establishSession(ctx context.Context, creds credentials.Credentials, cfg config.Config, httpClient *http.Client, log zerolog.Logger) (*auth.Session, error) {
	delay := time.Duration(cfg.Fetch.RetryDelayMS) * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= cfg.Fetch.MaxRetries; attempt++ {
		session, err := auth.Establish(ctx, creds, cfg.API.LiveBaseURL, httpClient, log)
		if err == nil {
			return session, nil
		}
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, err
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Msg("session establishment failed")

		if attempt < cfg.Fetch.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return nil, fmt.Errorf("could not establish session after %d attempts: %w", cfg.Fetch.MaxRetries, lastErr)
}

// resolveMonthlyStart takes the monthly start date from the flag or, when
// absent, prompts the operator for one.
func resolveMonthlyStart(flagValue string, today time.Time) (time.Time, error) {
	value := flagValue
	if value == "" {
		fmt.Fprint(os.Stderr, "Enter the Start Date for your analysis (YYYY-MM-DD) and press Enter: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			return time.Time{}, fmt.Errorf("no start date entered")
		}
		value = strings.TrimSpace(scanner.Text())
	}

	start, err := time.Parse(window.DateFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format %q, please use YYYY-MM-DD", value)
	}
	if window.DateOnly(start).After(window.DateOnly(today)) {
		return time.Time{}, fmt.Errorf("%w: %s", window.ErrStartAfterToday, value)
	}
	return start, nil
}

// authFailed prints the stable authentication failure message and exits.
// The recovery path is deleting the credential record and rerunning.
func authFailed(store *credentials.Store) {
	fmt.Fprintln(os.Stderr, "Authentication failed. Cannot proceed.")
	fmt.Fprintf(os.Stderr, "Delete %s (or rerun with --reset-credentials) to enter new credentials.\n", store.Path())
	os.Exit(1)
}
