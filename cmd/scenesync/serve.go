package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vango-dev/scenesync/internal/config"
	"github.com/vango-dev/scenesync/pkg/server"
)

type serveOptions struct {
	configPath     string
	address        string
	httpAddress    string
	sessionCode    string
	maxMessageSize uint32
	logLevel       string
	logFormat      string
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a session",
		Long: `Start a session and wait for peers.

The session code is printed once the server is listening. Peers must
send it with their credentials. Configuration comes from the file
given by --config or $SCENESYNC_CONFIG; flags override file values.

Examples:
  scenesync serve
  scenesync serve --address=0.0.0.0:3760 --http=:8080
  scenesync serve --session-code=Demo42 --log-level=debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to the YAML config file (default $"+config.EnvVar+")")
	flags.StringVarP(&opts.address, "address", "a", "", "TCP address for peers (default :3760)")
	flags.StringVar(&opts.httpAddress, "http", "", "Address for /ws, /metrics, /healthz and /peers (disabled when empty)")
	flags.StringVar(&opts.sessionCode, "session-code", "", "Fixed session code (random when empty)")
	flags.Uint32Var(&opts.maxMessageSize, "max-message-size", 0, "Largest payload a peer may declare, in bytes")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")

	return cmd
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command, opts serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Server.Address = opts.address
	}
	if flags.Changed("http") {
		cfg.Server.HTTPAddress = opts.httpAddress
	}
	if flags.Changed("session-code") {
		cfg.Server.SessionCode = opts.sessionCode
	}
	if flags.Changed("max-message-size") {
		cfg.Server.MaxMessageSize = opts.maxMessageSize
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	logger, err := cfg.Log.NewLogger(stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	sc := cfg.ServerConfig()
	sc.Logger = logger
	srv, err := server.New(sc)
	if err != nil {
		return err
	}

	printBanner(stdout, srv)
	if path := cfg.Path(); path != "" {
		logger.Info("configuration loaded", "path", path)
	}

	return srv.ListenAndServe(ctx)
}

func printBanner(w io.Writer, srv *server.Server) {
	sc := srv.Config()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  scenesync "+version)
	fmt.Fprintf(w, "  Session code: %s\n", srv.SessionCode())
	fmt.Fprintf(w, "  Peers:        tcp://%s\n", sc.Address)
	if sc.HTTPAddress != "" {
		fmt.Fprintf(w, "  HTTP:         http://%s (ws at /ws)\n", sc.HTTPAddress)
	}
	fmt.Fprintln(w)
}
