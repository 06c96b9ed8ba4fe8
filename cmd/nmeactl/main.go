package main

import (
	"fmt"
	"os"

	"github.com/danmuck/nmead/internal/logging"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "nmeactl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nmeactl",
		Short: "NMEA 0183 sentence server and tools",
		Long: `nmeactl runs a line-oriented TCP server that answers NMEA 0183 sentences
through registered handlers, and provides client and checksum tools.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
		},
	}
	root.AddCommand(
		serveCmd(),
		sendCmd(),
		checksumCmd(),
		configCmd(),
		versionCmd(),
	)
	return root
}
