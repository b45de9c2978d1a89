package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/filegrid/filegrid/internal/logtail"
	"github.com/filegrid/filegrid/pkg/config"
)

var (
	logsFollow bool
	logsLines  int
	logsSince  string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the name server's log file",
	Long: `Display and optionally follow the name server's log file.

Requires logging.output in the configuration to point at a file; when
the server logs to stdout/stderr there is no file to read.

Examples:
  # Show the last 100 lines (default)
  nmd logs

  # Follow new entries in real time
  nmd logs -f

  # Show entries since a timestamp
  nmd logs --since "2026-01-15T10:00:00Z"`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since timestamp (RFC3339)")
	logsCmd.Flags().StringVar(&configFile, "config", "", "Path to config file")

	rootCmd.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadNM(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logFile := cfg.Logging.Output
	if logFile == "" || logFile == "stdout" || logFile == "stderr" {
		return fmt.Errorf("name server logs to %s, not a file; set logging.output to a file path to use this command", logFile)
	}
	if _, err := os.Stat(logFile); err != nil {
		return fmt.Errorf("log file not found: %s", logFile)
	}

	var since time.Time
	if logsSince != "" {
		since, err = time.Parse(time.RFC3339, logsSince)
		if err != nil {
			return fmt.Errorf("invalid --since (want RFC3339): %w", err)
		}
	}

	if !logsFollow {
		return logtail.Show(cmd.OutOrStdout(), logFile, logsLines, since)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "Following %s (Ctrl+C to stop)...\n", logFile)
	return logtail.Follow(ctx, cmd.OutOrStdout(), logFile, logsLines, since)
}
