// Command filegridctl is a thin client for the filegrid cluster: each
// control-plane invocation issues one wire protocol operation against the
// name server; data-plane invocations ask the name server for a route and
// then issue their ops against that storage server. Each prints the result.
package main

import (
	"fmt"
	"os"

	"github.com/filegrid/filegrid/cmd/filegridctl/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
