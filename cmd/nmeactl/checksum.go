package main

import (
	"fmt"

	"github.com/danmuck/nmead/internal/protocol"
	"github.com/spf13/cobra"
)

func checksumCmd() *cobra.Command {
	var format bool

	cmd := &cobra.Command{
		Use:   "checksum <text>",
		Short: "Print the NMEA checksum of a sentence body",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if format {
				fmt.Fprintln(cmd.OutOrStdout(), protocol.Format(args[0], false))
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), protocol.Checksum(args[0]))
		},
	}

	cmd.Flags().BoolVarP(&format, "format", "f", false, "print the complete sentence instead")
	return cmd
}
