package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/wrapmcp"
	"github.com/loykin/wrapmcp/internal/logger"
)

// rootFlags holds the CLI surface. Every flag has a WRAP_MCP_* environment
// twin; an explicitly set flag wins over the environment.
type rootFlags struct {
	Transport       string
	LogSize         int
	ToolTimeout     time.Duration
	ProtocolVersion string
	PreserveANSI    bool
	Watch           bool
	HTTPAddr        string
	Metrics         bool
	LogFile         string
	LogLevel        string
	LogColors       bool
	Grace           time.Duration
	Debounce        time.Duration
}

// buildRoot creates the root command.
func buildRoot() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "wrapmcp [flags] -- <command> [args...]",
		Short: "Transparent logging proxy for MCP servers",
		Long: `Wrapmcp sits between an MCP client and an MCP server launched as a
child process. Tool traffic passes through unchanged and is recorded in a
bounded in-memory log. Built-in tools (show_log, clear_log,
restart_wrapped_server) let the client inspect the log and restart the
wrapped server without losing it.

Examples:
  wrapmcp -- python my_server.py
  wrapmcp --watch -- ./target/debug/my-server
  wrapmcp --transport=http --http-addr=127.0.0.1:8000 -- node server.js`,
		Args: func(cmd *cobra.Command, args []string) error {
			if cmd.ArgsLenAtDash() < 0 && len(args) == 0 {
				return fmt.Errorf("no wrapped command given; usage: wrapmcp [flags] -- <command> [args...]")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, args)
		},
		SilenceUsage: true,
	}

	root.Flags().StringVar(&flags.Transport, "transport", "", "client transport: stdio or http (default stdio)")
	root.Flags().IntVar(&flags.LogSize, "log-size", 0, "log store capacity in entries (default 1000)")
	root.Flags().DurationVar(&flags.ToolTimeout, "tool-timeout", 0, "per-call forwarding timeout (default 30s)")
	root.Flags().StringVar(&flags.ProtocolVersion, "protocol-version", "", "MCP protocol version for the wrappee handshake")
	root.Flags().BoolVar(&flags.PreserveANSI, "preserve-ansi", false, "keep ANSI escape sequences in captured stderr")
	root.Flags().BoolVar(&flags.Watch, "watch", false, "restart the wrapped server when its binary changes")
	root.Flags().StringVar(&flags.HTTPAddr, "http-addr", "", "listen address for the http transport (default 127.0.0.1:8000)")
	root.Flags().BoolVar(&flags.Metrics, "metrics", false, "expose Prometheus metrics on /metrics (http transport)")
	root.Flags().StringVar(&flags.LogFile, "log-file", "", "write proxy diagnostics to this rotating file instead of stderr")
	root.Flags().StringVar(&flags.LogLevel, "log-level", "", "diagnostic log level: debug, info, warn, error")
	root.Flags().BoolVar(&flags.LogColors, "log-colors", false, "colorize diagnostic log levels")
	root.Flags().DurationVar(&flags.Grace, "grace", 0, "wait after SIGTERM before force-killing the wrapped server (default 5s)")
	root.Flags().DurationVar(&flags.Debounce, "debounce", 0, "quiet window before a file-change restart (default 2s)")

	return root
}

func run(cmd *cobra.Command, flags *rootFlags, args []string) error {
	cfg, err := wrapmcp.LoadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, flags, &cfg)

	// Everything after "--" is the wrapped command; without a dash the
	// whole positional tail is.
	tail := args
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		tail = args[at:]
	}
	if len(tail) == 0 {
		return fmt.Errorf("no wrapped command given")
	}
	cfg.Command = tail[0]
	cfg.Args = tail[1:]

	closeLog := logger.Setup(logger.Options{
		Level:  cfg.LogLevel,
		File:   cfg.LogFile,
		Colors: cfg.LogColors,
	})
	defer closeLog()

	if cfg.Metrics {
		if err := wrapmcp.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	p, err := wrapmcp.New(cfg)
	if err != nil {
		return err
	}

	// Signals are armed last so a failure above exits cleanly without a
	// half-wired handler.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return p.Run(ctx)
}

// applyFlags layers explicitly set flags over the environment-derived
// config.
func applyFlags(cmd *cobra.Command, flags *rootFlags, cfg *wrapmcp.Config) {
	set := cmd.Flags().Changed
	if set("transport") {
		cfg.Transport = flags.Transport
	}
	if set("log-size") {
		cfg.LogSize = flags.LogSize
	}
	if set("tool-timeout") {
		cfg.ToolTimeout = flags.ToolTimeout
	}
	if set("protocol-version") {
		cfg.ProtocolVersion = flags.ProtocolVersion
	}
	if set("preserve-ansi") {
		cfg.PreserveANSI = flags.PreserveANSI
	}
	if set("watch") {
		cfg.WatchBinary = flags.Watch
	}
	if set("http-addr") {
		cfg.HTTPAddr = flags.HTTPAddr
	}
	if set("metrics") {
		cfg.Metrics = flags.Metrics
	}
	if set("log-file") {
		cfg.LogFile = flags.LogFile
	}
	if set("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if set("log-colors") {
		cfg.LogColors = flags.LogColors
	}
	if set("grace") {
		cfg.Grace = flags.Grace
	}
	if set("debounce") {
		cfg.Debounce = flags.Debounce
	}
}
