// Package wrapmcp wraps an MCP server process behind a transparent proxy.
// The proxy forwards tool traffic unchanged, records it in a bounded
// in-memory log, and adds built-in tools for inspecting the log and
// restarting the wrapped process.
package wrapmcp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/wrapmcp/internal/config"
	"github.com/loykin/wrapmcp/internal/controller"
	"github.com/loykin/wrapmcp/internal/logstore"
	"github.com/loykin/wrapmcp/internal/metrics"
	"github.com/loykin/wrapmcp/internal/protocol"
	"github.com/loykin/wrapmcp/internal/proxy"
	"github.com/loykin/wrapmcp/internal/server"
	"github.com/loykin/wrapmcp/internal/tools"
	"github.com/loykin/wrapmcp/internal/watcher"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type LogEntry = logstore.Entry

type ToolDescriptor = protocol.ToolDescriptor

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads WRAP_MCP_* environment variables over the defaults.
func LoadConfig() (Config, error) { return config.Load() }

// Proxy is the assembled application: log store, wrappee controller, tool
// manager, orchestrator and the optional binary watcher, behind one Run.
type Proxy struct {
	cfg   Config
	store *logstore.Store
	ctrl  *controller.Controller
	mgr   *tools.Manager
	orch  *proxy.Orchestrator
	watch *watcher.Watcher
}

// New assembles a proxy from cfg. Nothing is spawned yet; Run does that.
func New(cfg Config) (*Proxy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("no wrapped command given")
	}

	store := logstore.New(cfg.LogSize)
	ctrl := controller.New(controller.Config{
		Command:         cfg.Command,
		Args:            cfg.Args,
		PreserveANSI:    cfg.PreserveANSI,
		ProtocolVersion: cfg.ProtocolVersion,
		CallTimeout:     cfg.ToolTimeout,
		Grace:           cfg.Grace,
		Debounce:        cfg.Debounce,
	}, store)
	mgr := tools.NewManager(ctrl, store, cfg.ToolTimeout)
	orch := proxy.New(mgr, ctrl, store, cfg.ProtocolVersion)

	return &Proxy{cfg: cfg, store: store, ctrl: ctrl, mgr: mgr, orch: orch}, nil
}

// Store exposes the log store for embedding callers.
func (p *Proxy) Store() *logstore.Store { return p.store }

// State returns the wrappee lifecycle state name.
func (p *Proxy) State() string { return p.ctrl.State().String() }

// Run starts the wrappee, arms the binary watcher when configured, and
// serves the selected transport until ctx is cancelled. A wrappee that
// fails to start does not abort the proxy: the built-in tools stay
// reachable and restart_wrapped_server can recover it later.
func (p *Proxy) Run(ctx context.Context) error {
	if err := p.ctrl.Start(ctx); err != nil {
		slog.Error("wrapped server failed to start", "command", p.cfg.Command, "error", err)
	}

	if p.cfg.WatchBinary {
		path, err := filepath.Abs(p.cfg.Command)
		if err == nil {
			p.watch, err = watcher.Start(path, p.ctrl)
		}
		if err != nil {
			// Watching is best-effort; the proxy works without it.
			slog.Warn("binary watch disabled", "command", p.cfg.Command, "error", err)
		}
	}

	var err error
	switch p.cfg.Transport {
	case config.TransportHTTP:
		srv := server.NewHTTPServer(p.orch, server.HTTPOptions{
			Addr:    p.cfg.HTTPAddr,
			Metrics: p.cfg.Metrics,
		})
		err = srv.Run(ctx)
	default:
		err = server.NewStdioServer(p.orch).Run(ctx)
	}

	p.shutdown()
	return err
}

// shutdown stops inbound traffic first, then the watcher, then the
// wrappee, so nothing can trigger a restart into a dying process.
func (p *Proxy) shutdown() {
	p.orch.Close()
	if p.watch != nil {
		p.watch.Close()
	}
	p.ctrl.Shutdown()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
