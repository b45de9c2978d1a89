// Command nmd runs the filegrid name server: cluster membership,
// routing, and control-plane proxying to storage servers.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/filegrid/filegrid/internal/logger"
	"github.com/filegrid/filegrid/internal/telemetry"
	"github.com/filegrid/filegrid/pkg/adminapi"
	clusterstore "github.com/filegrid/filegrid/pkg/cluster/store"
	"github.com/filegrid/filegrid/pkg/config"
	"github.com/filegrid/filegrid/pkg/metrics"
	"github.com/filegrid/filegrid/pkg/metrics/prometheus"
	"github.com/filegrid/filegrid/pkg/nm"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "nmd",
	Short: "filegrid name server",
	Long: `nmd runs the filegrid name server: cluster membership, file
routing, and control-plane proxying to storage servers.

Environment Variables:
  All configuration options can be overridden with FILEGRID_<SECTION>_<KEY>.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	RunE:  runInit,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the name server",
	RunE:  runStart,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "nmd %s (commit: %s, built: %s)\n", version, commit, date)
		return nil
	},
}

var (
	configFile string
	forceInit  bool
)

func init() {
	initCmd.Flags().StringVar(&configFile, "config", "", "Path to config file")
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Force overwrite existing config file")

	startCmd.Flags().StringVar(&configFile, "config", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.DefaultConfigPath("nm")
	}
	if !forceInit {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := config.DefaultNMConfig()
	if err := config.SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadNM(configFile)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "filegrid-nmd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "filegrid-nmd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		log.Fatalf("failed to initialize profiling: %v", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	var clusterMetrics metrics.ClusterMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		clusterMetrics = prometheus.NewCluster()
		logger.Info("metrics enabled")
	}

	store, err := openClusterStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("failed to open cluster store: %v", err)
	}

	srv := nm.New(nm.Options{
		ListenAddr:      cfg.ListenAddr,
		MaxConnections:  cfg.MaxConnections,
		ShutdownTimeout: cfg.ShutdownTimeout,
		SweepInterval:   cfg.Membership.SweepInterval,
		DeadAfter:       cfg.Membership.DeadAfter,
		Store:           store,
		Metrics:         clusterMetrics,
	})

	var adminSrv *http.Server
	if cfg.Admin.Enabled {
		adminSrv = &http.Server{Addr: cfg.Admin.Addr, Handler: adminapi.NewNMRouter(srv.Cluster())}
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("admin API server error", "error", err)
			}
		}()
		logger.Info("admin API enabled", "addr", cfg.Admin.Addr)
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Serve(ctx) }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("name server listening", "addr", cfg.ListenAddr)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, draining connections")
		cancel()
		if adminSrv != nil {
			_ = adminSrv.Shutdown(context.Background())
		}
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			os.Exit(1)
		}
		logger.Info("name server stopped")
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}
	return nil
}

func openClusterStore(ctx context.Context, cfg config.ClusterStoreConfig) (clusterstore.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return clusterstore.NewMemory(), nil
	case "sqlite":
		return clusterstore.NewSQLite(cfg.DSN)
	case "postgres":
		return clusterstore.NewPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown cluster store driver %q", cfg.Driver)
	}
}
