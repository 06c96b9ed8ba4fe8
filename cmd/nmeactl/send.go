package main

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/nmead/internal/client"
	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var (
		addr    string
		raw     bool
		timeout time.Duration
		retries int
	)

	cmd := &cobra.Command{
		Use:   "send <body> [body...]",
		Short: "Send sentences to a server and print each reply",
		Long: `Send completes each body with '$' and checksum unless --raw is set,
then prints the single reply line the server sends back.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := client.DefaultConfig()
			cfg.Address = addr
			cfg.ConnectTimeout = timeout
			cfg.ReadTimeout = timeout
			cfg.WriteTimeout = timeout
			cfg.MaxAttempts = retries

			c, err := client.New(cfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			conn, err := c.Dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			for _, body := range args {
				reply, err := conn.Send(ctx, body, raw)
				if err != nil {
					return fmt.Errorf("send %q: %w", body, err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), reply)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:9000", "server address host:port")
	cmd.Flags().BoolVar(&raw, "raw", false, "send bodies exactly as given")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "connect and reply timeout")
	cmd.Flags().IntVar(&retries, "retries", 3, "dial attempts before giving up (0 retries forever)")
	return cmd
}
