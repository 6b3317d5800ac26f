// Command terminald is the daemon entry point: a single "serve"
// subcommand that wires configuration, durable stores, the session
// manager, and the WebSocket channel endpoint together. Grounded on the
// teacher's cmd/cw root command and its "node" subcommand, trimmed to
// the one daemon command this system needs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "terminald",
		Short: "Localhost PTY session server for browser terminal clients",
	}
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
