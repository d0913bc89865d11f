package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vigilhq/vigil/internal/alerts"
	"github.com/vigilhq/vigil/internal/config"
	"github.com/vigilhq/vigil/internal/logger"
	"github.com/vigilhq/vigil/internal/metrics"
	"github.com/vigilhq/vigil/internal/notify"
	"github.com/vigilhq/vigil/internal/sampler"
	"github.com/vigilhq/vigil/internal/storage/sqlite"
)

var (
	// Version info (set by ldflags)
	version = "dev"

	// Flags
	debug      bool
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vigil",
		Short: "In-process metric collection and alerting agent",
		Long: `vigil samples host metrics, evaluates threshold rules against them,
and delivers alert notifications to webhook sinks.

Direct Run:
  vigil run [--debug]     Run the agent in foreground mode
  vigil rules [--json]    Show the effective rule set`,
		Version: version,
	}

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newRunCmd(),
		newRulesCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}

// newRunCmd creates the run subcommand for foreground execution.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent in foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForeground()
		},
	}
}

// runForeground wires the store, sampler, manager, rules, and sinks, then
// runs until interrupted.
func runForeground() error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logLevel := logger.ParseLevel(cfg.Log.Level)
	if debug {
		logLevel = logger.LevelDebug
	}
	logger.Init(logLevel, cfg.Log.Path)
	defer logger.Close()
	logger.Info("vigil starting", "version", version)

	// Optional SQLite persistence
	var db *sqlite.DB
	storeOpts := []metrics.StoreOption{
		metrics.WithCapacity(cfg.Metrics.Capacity),
	}
	if cfg.Storage.Enabled {
		db, err = sqlite.Open(cfg.Storage.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		storeOpts = append(storeOpts,
			metrics.WithPersistence(sqlite.NewMetricsStore(db)),
			metrics.WithRetentionDays(cfg.Storage.RetentionDays),
		)
	}

	store := metrics.NewStore(storeOpts...)

	// Log level counts feed the error-rate rule
	logger.AttachMetrics(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting metric store: %v\n", err)
		os.Exit(1)
	}
	defer store.Stop()

	managerOpts := []alerts.ManagerOption{}
	if cfg.Alerts.Tick > 0 {
		managerOpts = append(managerOpts, alerts.WithTick(cfg.Alerts.Tick))
	}
	if db != nil {
		managerOpts = append(managerOpts, alerts.WithHistoryStore(sqlite.NewAlertStore(db)))
	}
	manager := alerts.NewManager(store, managerOpts...)

	for _, sc := range cfg.Alerts.Sinks {
		sink, err := notify.New(sc.Type, sc.URL, sc.Timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating sink %q: %v\n", sc.Role, err)
			os.Exit(1)
		}
		manager.RegisterSink(sc.Role, sink)
	}

	for _, rc := range effectiveRules(cfg) {
		if !rc.IsEnabled() {
			continue
		}
		severity := alerts.SeverityWarning
		if rc.Severity != "" {
			severity, _ = alerts.ParseSeverity(rc.Severity)
		}
		_, err := manager.AddMetricRule(alerts.MetricRuleConfig{
			Name:          rc.Name,
			Metric:        rc.Metric,
			Threshold:     rc.Threshold,
			Operator:      rc.Operator,
			Description:   rc.Description,
			Duration:      rc.Duration,
			CheckInterval: rc.CheckInterval,
			Severity:      severity,
			Category:      rc.Category,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating rule %q: %v\n", rc.Name, err)
			os.Exit(1)
		}
	}

	if cfg.Alerts.Enabled {
		manager.Start(ctx)
		defer manager.Stop()
	}

	var smp *sampler.Sampler
	if cfg.Sampler.IsEnabled() {
		smp = sampler.New(store,
			sampler.WithInterval(cfg.Sampler.Interval),
			sampler.WithDiskPath(cfg.Sampler.DiskPath),
			sampler.WithPerCore(cfg.Sampler.PerCore),
		)
		smp.Start(ctx)
		defer smp.Stop()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
	logger.Info("vigil stopping", "signal", sig.String())

	return nil
}

// newRulesCmd creates the rules subcommand, printing the effective rule set.
func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show the effective rule set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			rules := effectiveRules(cfg)

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rules)
			}

			for _, rc := range rules {
				state := "enabled"
				if !rc.IsEnabled() {
					state = "disabled"
				}
				duration := "immediate"
				if rc.Duration > 0 {
					duration = rc.Duration.String()
				}
				op := rc.Operator
				if op == "" {
					op = ">"
				}
				fmt.Printf("  %-20s %s %s %g for %s [%s] (%s)\n",
					rc.Name, rc.Metric, op, rc.Threshold, duration, rc.Severity, state)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

// effectiveRules returns the configured rules, falling back to the built-in
// defaults when none are configured.
func effectiveRules(cfg *config.Config) []config.RuleConfig {
	if len(cfg.Alerts.Rules) > 0 {
		return cfg.Alerts.Rules
	}
	return config.DefaultRules()
}
