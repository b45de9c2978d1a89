// Command ssd runs a filegrid storage server: file content, sentence
// locking, undo, and checkpoints for the files it's assigned.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/filegrid/filegrid/internal/logger"
	"github.com/filegrid/filegrid/internal/telemetry"
	"github.com/filegrid/filegrid/pkg/adminapi"
	"github.com/filegrid/filegrid/pkg/config"
	checkpoints3 "github.com/filegrid/filegrid/pkg/filestore/checkpointstore/s3"
	metastorebadger "github.com/filegrid/filegrid/pkg/filestore/metastore/badger"

	"github.com/filegrid/filegrid/pkg/filestore"
	"github.com/filegrid/filegrid/pkg/metrics"
	"github.com/filegrid/filegrid/pkg/metrics/prometheus"
	"github.com/filegrid/filegrid/pkg/ss"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "ssd",
	Short: "filegrid storage server",
	Long: `ssd runs a filegrid storage server: file content, sentence
locking, undo, and checkpoints for the files it's assigned.

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
	Short: "Start the storage server",
	RunE:  runStart,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "ssd %s (commit: %s, built: %s)\n", version, commit, date)
		return nil
	},
}

var (
	configFile string
	initID     string
	forceInit  bool
)

func init() {
	initCmd.Flags().StringVar(&configFile, "config", "", "Path to config file")
	initCmd.Flags().StringVar(&initID, "id", "", "Storage server ID")
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
	if initID == "" {
		return fmt.Errorf("--id is required")
	}

	path := configFile
	if path == "" {
		path = config.DefaultConfigPath("ss")
	}
	if !forceInit {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := config.DefaultSSConfig(initID)
	if err := config.SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadSS(configFile)
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
		ServiceName:    "filegrid-ssd",
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
		ServiceName:    "filegrid-ssd",
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

	var filestoreMetrics metrics.FilestoreMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		filestoreMetrics = prometheus.NewFilestore()
		logger.Info("metrics enabled")
	}

	metastore, err := openMetastore(cfg.DataDir, cfg.Metastore)
	if err != nil {
		log.Fatalf("failed to open metastore: %v", err)
	}

	checkpointStore, err := openCheckpointStore(ctx, cfg.DataDir, cfg.CheckpointStore)
	if err != nil {
		log.Fatalf("failed to open checkpoint store: %v", err)
	}

	store, err := filestore.NewStore(cfg.DataDir, metastore, checkpointStore)
	if err != nil {
		log.Fatalf("failed to open filestore: %v", err)
	}

	srv := ss.New(ss.Options{
		ID:                  cfg.ID,
		ListenAddr:          cfg.ListenAddr,
		MaxConnections:      cfg.MaxConnections,
		ShutdownTimeout:     cfg.ShutdownTimeout,
		NMAddr:              cfg.NMAddr,
		AdvertiseHost:       advertiseHost(cfg.ListenAddr),
		AdvertiseClientPort: advertisePort(cfg.ListenAddr),
		AdvertiseNMPort:     advertisePort(cfg.ListenAddr),
		HeartbeatInterval:   cfg.HeartbeatInterval,
		Store:               store,
		Metrics:             filestoreMetrics,
	})

	var adminSrv *http.Server
	if cfg.Admin.Enabled {
		adminSrv = &http.Server{Addr: cfg.Admin.Addr, Handler: adminapi.NewSSRouter()}
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

	logger.Info("storage server listening", "id", cfg.ID, "addr", cfg.ListenAddr)

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
		logger.Info("storage server stopped")
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}
	return nil
}

func openMetastore(dataDir string, cfg config.MetastoreConfig) (filestore.Metastore, error) {
	switch cfg.Driver {
	case "", "json":
		return filestore.NewJSONMetastore(dataDir), nil
	case "badger":
		return metastorebadger.Open(cfg.Path, cfg.Cache.Size.Int64())
	default:
		return nil, fmt.Errorf("unknown metastore driver %q", cfg.Driver)
	}
}

func openCheckpointStore(ctx context.Context, dataDir string, cfg config.CheckpointStoreConfig) (filestore.CheckpointStore, error) {
	switch cfg.Driver {
	case "", "disk":
		return filestore.NewDiskCheckpointStore(dataDir), nil
	case "s3":
		return checkpoints3.New(ctx, checkpoints3.Config{
			Bucket:         cfg.Bucket,
			Prefix:         cfg.Prefix,
			Region:         cfg.Region,
			Endpoint:       cfg.Endpoint,
			AccessKey:      cfg.AccessKey,
			SecretKey:      cfg.SecretKey,
			ForcePathStyle: cfg.ForcePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown checkpoint store driver %q", cfg.Driver)
	}
}

// advertiseHost and advertisePort split a "host:port" listen address for
// NM registration. A blank host (":4701") advertises "localhost".
func advertiseHost(listenAddr string) string {
	host, _, err := net.SplitHostPort(listenAddr)
	if err != nil || host == "" {
		return "localhost"
	}
	return host
}

func advertisePort(listenAddr string) int {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
