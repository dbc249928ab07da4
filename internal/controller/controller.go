// Package controller owns the wrappee lifecycle: the state machine from
// spawn through handshake to running, the exclusive restart path, and the
// debounced file-change trigger. It owns exactly one live wrappee client
// at a time.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/wrapmcp/internal/logstore"
	"github.com/loykin/wrapmcp/internal/metrics"
	"github.com/loykin/wrapmcp/internal/process"
	"github.com/loykin/wrapmcp/internal/protocol"
	"github.com/loykin/wrapmcp/internal/wrappee"
)

// restartPacing is the pause between terminating the old process and
// spawning its replacement, giving sockets and pid files time to settle.
const restartPacing = 500 * time.Millisecond

// Config carries the launch contract for the wrappee.
type Config struct {
	Command         string
	Args            []string
	Env             []string
	PreserveANSI    bool
	ProtocolVersion string
	CallTimeout     time.Duration
	Grace           time.Duration // cooperative termination window
	Debounce        time.Duration // file-change quiet window
}

func (c *Config) withDefaults() {
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = protocol.ProtocolVersion
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.Grace <= 0 {
		c.Grace = 5 * time.Second
	}
	if c.Debounce <= 0 {
		c.Debounce = 2 * time.Second
	}
}

// Controller supervises one wrappee process. State reads are cheap and
// concurrent; restarts take an exclusive gate so at most one lifecycle
// transition is in flight at any instant.
type Controller struct {
	cfg   Config
	store *logstore.Store

	// nextID outlives individual clients so request ids stay unique
	// across restarts.
	nextID atomic.Uint64

	mu         sync.RWMutex
	state      State
	client     *wrappee.Client
	failReason string

	// restartMu is the exclusive restart gate. TryLock failure means a
	// restart is already in flight and the caller is rejected, never
	// queued.
	restartMu sync.Mutex

	// refreshTools is installed by the tool manager; called after every
	// successful handshake.
	refreshTools func(context.Context, *wrappee.Client) error
	// notifyToolsChanged is installed by the orchestrator; called after
	// a successful restart.
	notifyToolsChanged func()

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// New creates a controller in the NotStarted state.
func New(cfg Config, store *logstore.Store) *Controller {
	cfg.withDefaults()
	return &Controller{cfg: cfg, store: store, state: StateNotStarted}
}

// SetToolRefresher installs the discovery callback run after handshakes.
func (c *Controller) SetToolRefresher(fn func(context.Context, *wrappee.Client) error) {
	c.refreshTools = fn
}

// SetToolsChangedNotifier installs the boundary notification hook.
func (c *Controller) SetToolsChangedNotifier(fn func()) {
	c.notifyToolsChanged = fn
}

// Snapshot returns the current state without blocking on any lifecycle
// operation.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{State: c.state, FailReason: c.failReason}
	if c.client != nil {
		s.PID = c.client.PID()
	}
	return s
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Client returns the live wrappee client, or ErrUnavailable when the
// wrappee is not in the Running state (starting, restarting, stopped or
// failed). Callers must not retain the client across restarts.
func (c *Controller) Client() (*wrappee.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateRunning || c.client == nil {
		return nil, fmt.Errorf("%w: wrappee is %s", protocol.ErrUnavailable, c.state)
	}
	return c.client, nil
}

func (c *Controller) setState(to State, reason string) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.failReason = reason
	c.mu.Unlock()
	if from != to {
		slog.Info("wrappee state transition", "from", from.String(), "to", to.String())
		metrics.IncStateTransition(from.String(), to.String())
		metrics.SetCurrentState(to.String(), StateNames)
	}
}

// spawnAndHandshake runs the common start path: spawn, handshake, tool
// discovery. The caller is responsible for state transitions.
func (c *Controller) spawnAndHandshake(ctx context.Context) (*wrappee.Client, error) {
	handle, err := process.Spawn(process.Options{
		Command:       c.cfg.Command,
		Args:          c.cfg.Args,
		Env:           c.cfg.Env,
		SuppressColor: !c.cfg.PreserveANSI,
	})
	if err != nil {
		return nil, &protocol.SpawnError{Command: c.cfg.Command, Err: err}
	}

	client := wrappee.New(handle, &c.nextID, c.store, c.cfg.PreserveANSI)
	if _, err := client.Initialize(ctx, c.cfg.ProtocolVersion, c.cfg.CallTimeout); err != nil {
		client.Close()
		_ = handle.Terminate(c.cfg.Grace)
		return nil, err
	}
	return client, nil
}

// Start spawns the wrappee, performs the handshake and refreshes tool
// discovery. Spawn or handshake failure leaves the controller Failed. A
// discovery failure during Start is fatal as well: without an initial tool
// set the proxy has nothing to advertise.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateNotStarted, StateStopped, StateFailed:
		// allowed
	default:
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("start not allowed from state %s", st)
	}
	c.state = StateStarting
	c.mu.Unlock()
	metrics.SetCurrentState(StateStarting.String(), StateNames)

	client, err := c.spawnAndHandshake(ctx)
	if err != nil {
		c.setState(StateFailed, err.Error())
		return err
	}

	if c.refreshTools != nil {
		if err := c.refreshTools(ctx, client); err != nil {
			client.Close()
			_ = client.Handle().Terminate(c.cfg.Grace)
			derr := &protocol.DiscoveryError{Err: err}
			c.setState(StateFailed, derr.Error())
			return derr
		}
	}

	c.mu.Lock()
	c.client = client
	c.state = StateRunning
	c.failReason = ""
	c.mu.Unlock()
	metrics.SetCurrentState(StateRunning.String(), StateNames)
	slog.Info("wrappee running", "pid", client.PID())
	return nil
}

// Restart replaces the wrappee process while keeping the log store and
// request-id sequence intact. Only one restart may run at a time; a
// concurrent attempt fails immediately with ErrUnavailable. Any failure
// along the way leaves the controller Failed rather than silently
// reverting.
func (c *Controller) Restart(ctx context.Context) error {
	if !c.restartMu.TryLock() {
		return fmt.Errorf("%w: restart already in progress", protocol.ErrUnavailable)
	}
	defer c.restartMu.Unlock()

	c.mu.Lock()
	switch c.state {
	case StateRunning, StateFailed:
		// allowed; Failed recovers through a successful restart
	default:
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("restart not allowed from state %s", st)
	}
	old := c.client
	c.client = nil
	c.state = StateRestarting
	c.mu.Unlock()
	metrics.SetCurrentState(StateRestarting.String(), StateNames)
	metrics.IncRestart()

	oldPID := 0
	if old != nil {
		oldPID = old.PID()
		slog.Info("stopping wrappee for restart", "old_pid", oldPID)
		old.Close()
		if err := old.Handle().Terminate(c.cfg.Grace); err != nil {
			slog.Warn("error terminating old wrappee", "pid", oldPID, "error", err)
		}
	}

	time.Sleep(restartPacing)

	client, err := c.spawnAndHandshake(ctx)
	if err != nil {
		c.setState(StateFailed, err.Error())
		return err
	}

	if c.refreshTools != nil {
		if err := c.refreshTools(ctx, client); err != nil {
			client.Close()
			_ = client.Handle().Terminate(c.cfg.Grace)
			derr := &protocol.DiscoveryError{Err: err}
			c.setState(StateFailed, derr.Error())
			return derr
		}
	}

	c.mu.Lock()
	c.client = client
	c.state = StateRunning
	c.failReason = ""
	c.mu.Unlock()
	metrics.SetCurrentState(StateRunning.String(), StateNames)
	slog.Info("wrappee restarted", "old_pid", oldPID, "new_pid", client.PID())

	if c.notifyToolsChanged != nil {
		c.notifyToolsChanged()
	}
	return nil
}

// Shutdown terminates the wrappee and moves to the terminal Stopped state.
// It is idempotent.
func (c *Controller) Shutdown() {
	c.debounceMu.Lock()
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	c.debounceMu.Unlock()

	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	client := c.client
	c.client = nil
	c.state = StateStopped
	c.mu.Unlock()
	metrics.SetCurrentState(StateStopped.String(), StateNames)

	if client != nil {
		client.Close()
		if err := client.Handle().Terminate(c.cfg.Grace); err != nil {
			slog.Warn("error terminating wrappee during shutdown", "error", err)
		}
	}
	slog.Info("wrappee controller stopped")
}
