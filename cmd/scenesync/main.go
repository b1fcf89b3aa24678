// Command scenesync hosts a shared 3D scene session for a group of
// peers.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scenesync",
		Short: "Collaborative 3D scene session server",
		Long: `scenesync keeps a shared 3D scene consistent across a group of peers.

Peers connect over TCP (or WebSocket), authenticate with the session
code printed at startup, and exchange updates to the volume, the
cutting plane, widgets and laser pointers. One peer at a time may
manipulate an object; everyone else sees the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)
	return rootCmd
}
