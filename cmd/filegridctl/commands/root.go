// Package commands implements the filegridctl subcommands.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Flags holds the persistent flag values shared by every subcommand.
var Flags struct {
	NMAddr string
	User   string
	Output string
}

var rootCmd = &cobra.Command{
	Use:   "filegridctl",
	Short: "filegrid control client",
	Long: `filegridctl is a thin command-line client for the filegrid
distributed file service. Control-plane subcommands issue one wire
protocol operation against the name server, which forwards it to a
storage server where the op requires it. The read, write, undo and
stream subcommands first ask the name server for a route and then talk
to that storage server directly (write sends a begin, one or more edits
and a commit on one connection). Every subcommand prints the result.

Use "filegridctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&Flags.NMAddr, "nm", "localhost:5050", "Name server address")
	rootCmd.PersistentFlags().StringVar(&Flags.User, "user", os.Getenv("USER"), "Acting user")
	rootCmd.PersistentFlags().StringVarP(&Flags.Output, "output", "o", "table", "Output format (table|json)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(deregisterCmd)
	rootCmd.AddCommand(listUsersCmd)
	rootCmd.AddCommand(viewRouteCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(createFolderCmd)
	rootCmd.AddCommand(viewFolderCmd)
	rootCmd.AddCommand(addAccessCmd)
	rootCmd.AddCommand(remAccessCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(viewCheckpointCmd)
	rootCmd.AddCommand(revertCmd)
	rootCmd.AddCommand(listCheckpointsCmd)
	rootCmd.AddCommand(requestAccessCmd)
	rootCmd.AddCommand(viewRequestsCmd)
	rootCmd.AddCommand(respondRequestCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(configCmd)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
