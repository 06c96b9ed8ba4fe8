package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/nmead/internal/admin"
	"github.com/danmuck/nmead/internal/config"
	"github.com/danmuck/nmead/internal/handlers"
	"github.com/danmuck/nmead/internal/logging"
	"github.com/danmuck/nmead/internal/observability"
	"github.com/danmuck/nmead/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	configPath string
	host       string
	port       int
	debug      bool
	adminAddr  string
	trace      bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sentence server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveServeConfig(cmd, opts)
			if err != nil {
				return err
			}
			logging.SetDebug(cfg.Server.Debug)

			if cfg.Trace {
				shutdownTracing, err := observability.InitTracing(os.Stderr)
				if err != nil {
					return err
				}
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WithDefaults().ShutdownTimeout)
					defer cancel()
					if err := shutdownTracing(ctx); err != nil {
						log.Warn().Err(err).Msg("trace exporter flush failed")
					}
				}()
			}

			srv, err := buildServer(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.AdminAddr != "" {
				adm := admin.New(admin.Config{
					Addr:        cfg.AdminAddr,
					CorsOrigins: cfg.CorsOrigins,
					Version:     version,
					Token:       cfg.AdminToken,
				}, srv)
				go func() {
					if err := adm.Serve(ctx); err != nil {
						log.Error().Err(err).Msg("nmea.admin stopped")
						stop()
					}
				}()
			}

			if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	bindServeFlags(cmd, &opts)
	return cmd
}

func bindServeFlags(cmd *cobra.Command, opts *serveOptions) {
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to config.toml")
	cmd.Flags().StringVar(&opts.host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", server.DefaultPort, "listen port (overrides config)")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "log every line received and sent")
	cmd.Flags().StringVar(&opts.adminAddr, "admin", "", "admin HTTP address (overrides config)")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "export dispatch spans to stderr (overrides config)")
}

// resolveServeConfig loads the config file when given, then applies only
// the flags the user set.
func resolveServeConfig(cmd *cobra.Command, opts serveOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = opts.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if flags.Changed("debug") {
		cfg.Server.Debug = opts.debug
	}
	if flags.Changed("admin") {
		cfg.AdminAddr = opts.adminAddr
	}
	if flags.Changed("trace") {
		cfg.Trace = opts.trace
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// buildServer assembles a server with the configured builtin handlers and streamer.
func buildServer(cfg config.Config) (*server.Server, error) {
	srv := server.New(cfg.Server)
	if err := handlers.Install(srv, cfg.Handlers); err != nil {
		return nil, err
	}
	if ticker := handlers.Ticker(cfg.Stream.Interval, cfg.Stream.Sentence); ticker != nil {
		if err := srv.SetStreamer(ticker); err != nil {
			return nil, err
		}
	}
	return srv, nil
}
