package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"wiretap/pkg/cli"
	"wiretap/pkg/config"
	"wiretap/pkg/eventbus"
	"wiretap/pkg/mockstore"
	"wiretap/pkg/model"
	"wiretap/pkg/persistence"
	"wiretap/pkg/registry"
	"wiretap/pkg/server"
	"wiretap/pkg/telemetry/health"
	"wiretap/pkg/telemetry/metrics"
	"wiretap/pkg/tlsca"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Wiretap proxy suite",
	Long: `Start every configured proxy (normal, outgoing, db) and the admin API.

On boot, previously configured proxies are restored from disk and
auto-started when their auto_start flag is set, they are not disabled,
and the global_auto_start switch is on.
The admin API is then served for managing proxies, mocks, and request
history while the suite runs.

Examples:
  # Start with default config
  wiretap run

  # Start with custom config
  wiretap run --config /etc/wiretap/config.yaml

  # Override the admin API listen address
  wiretap run --listen 127.0.0.1:9191

  # Validate config without starting anything
  wiretap run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override admin API listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the suite")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("invalid config: %v", err))
	}

	setupLogging(cfg.Telemetry.Logging)

	if runFlags.dryRun {
		fmt.Println("Configuration valid")
		return nil
	}

	printBanner(cfg)

	store, err := persistence.New(cfg.Persistence.DataDir, cfg.Persistence.CoalesceWindow)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open persistence store: %w", err))
	}

	ca, err := tlsca.NewManager(tlsca.Config{
		Dir:           cfg.Security.CADir,
		KeySize:       cfg.Security.CAKeySize,
		CAValidity:    cfg.Security.CAValidity,
		LeafValidity:  cfg.Security.LeafValidity,
		LeafCacheSize: cfg.Security.LeafCacheSize,
	})
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize MITM certificate authority: %w", err))
	}

	mocks := mockstore.New(cfg.Proxies.MaxMockHistory)
	bus := eventbus.New(cfg.EventBus.ChannelBufferSize, cfg.EventBus.EarlyBufferCap)
	reg := registry.New(cfg.Proxies, mocks, bus, store, ca)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slog.Info("booting proxy registry")
	for _, bootErr := range reg.Boot(ctx) {
		slog.Warn("error during boot", "error", bootErr)
	}

	loadPersistedMocks(store, mocks, reg)

	var cleaner *persistence.Cleaner
	if cfg.Persistence.RequestTTL > 0 && cfg.Persistence.CleanupSchedule != "" {
		cleaner = persistence.NewCleaner(store, cfg.Persistence.RequestTTL)
		if err := cleaner.Start(ctx, cfg.Persistence.CleanupSchedule); err != nil {
			slog.Warn("failed to start persistence cleanup scheduler", "error", err)
			cleaner = nil
		} else {
			defer cleaner.Stop()
		}
	}

	healthChecker := health.New(cfg.Telemetry.Health.CheckTimeout)
	healthChecker.RegisterCheck("proxies", func(ctx context.Context) error {
		for _, proxyCfg := range reg.List() {
			if proxyCfg.Disabled || !proxyCfg.AutoStart {
				continue
			}
			if _, rt, ok := reg.Get(proxyCfg.Kind, proxyCfg.Port); ok && !rt.IsRunning {
				return fmt.Errorf("proxy %s:%d is not running", proxyCfg.Kind, proxyCfg.Port)
			}
		}
		return nil
	})

	var m *metrics.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		m = metrics.New(cfg.Telemetry.Metrics.Namespace)
	}

	srv := server.NewServer(cfg.Server, cfg.Licensing, reg, mocks, store, bus, healthChecker, m)

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting admin API server", "address", cfg.Server.ListenAddress)
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("admin API server error: %w", err)
		}
	}()

	fmt.Println()
	fmt.Printf("Admin API listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if m != nil {
		fmt.Printf("Metrics endpoint: http://%s/metrics\n", cfg.Server.ListenAddress)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		for _, proxyCfg := range reg.List() {
			if err := reg.Stop(shutdownCtx, proxyCfg.Kind, proxyCfg.Port); err != nil {
				slog.Warn("error stopping proxy during shutdown", "kind", proxyCfg.Kind, "port", proxyCfg.Port, "error", err)
			}
		}

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("admin API shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("Suite stopped")
		return nil
	}
}

// loadPersistedMocks restores each booted proxy's mock library from disk,
// the load-side counterpart to the admin API's per-mutation persist calls.
func loadPersistedMocks(store *persistence.Store, mocks *mockstore.Store, reg *registry.Registry) {
	for _, proxyCfg := range reg.List() {
		key := persistence.MocksKey(string(proxyCfg.Kind), proxyCfg.Port)
		if !store.Exists(key) {
			continue
		}
		var saved []model.Mock
		if err := store.Load(key, &saved); err != nil {
			slog.Warn("failed to load persisted mocks", "kind", proxyCfg.Kind, "port", proxyCfg.Port, "error", err)
			continue
		}
		mocks.Import(saved)
	}
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" || cfg.Format == "console" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Wiretap %s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("Configuration loaded")
	slog.Debug("proxy defaults",
		"testing_mode", cfg.Proxies.TestingMode,
		"global_auto_start", cfg.Proxies.GlobalAutoStart,
	)
}
