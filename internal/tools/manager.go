// Package tools caches the advertised tool set and routes invocations to
// a built-in handler or to the wrappee.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/wrapmcp/internal/controller"
	"github.com/loykin/wrapmcp/internal/logstore"
	"github.com/loykin/wrapmcp/internal/metrics"
	"github.com/loykin/wrapmcp/internal/protocol"
	"github.com/loykin/wrapmcp/internal/wrappee"
)

// Manager holds the union of built-in tools and the most recently
// discovered wrappee tools. The cached set is replaced wholesale on every
// successful discovery; a failed refresh leaves the previous set in
// effect.
type Manager struct {
	ctrl    *controller.Controller
	store   *logstore.Store
	timeout time.Duration

	mu           sync.RWMutex
	wrappeeTools []protocol.ToolDescriptor
}

// NewManager wires a manager to the controller and installs itself as the
// controller's discovery callback.
func NewManager(ctrl *controller.Controller, store *logstore.Store, timeout time.Duration) *Manager {
	m := &Manager{ctrl: ctrl, store: store, timeout: timeout}
	ctrl.SetToolRefresher(m.refresh)
	return m
}

// refresh runs tools/list against a freshly started client and atomically
// replaces the cache. On a name collision with a built-in, the built-in
// wins and the wrappee tool is suppressed.
func (m *Manager) refresh(ctx context.Context, client *wrappee.Client) error {
	discovered, err := client.ListTools(ctx, m.timeout)
	if err != nil {
		return &protocol.DiscoveryError{Err: err}
	}

	kept := make([]protocol.ToolDescriptor, 0, len(discovered))
	for _, t := range discovered {
		if isBuiltin(t.Name) {
			slog.Warn("wrappee tool shadowed by built-in, suppressing", "tool", t.Name)
			continue
		}
		kept = append(kept, t)
	}

	m.mu.Lock()
	m.wrappeeTools = kept
	m.mu.Unlock()
	slog.Info("tool discovery complete", "wrappee_tools", len(kept), "builtin_tools", len(builtinDescriptors))
	return nil
}

// Discover forces a refresh against the currently running wrappee.
func (m *Manager) Discover(ctx context.Context) error {
	client, err := m.ctrl.Client()
	if err != nil {
		return err
	}
	return m.refresh(ctx, client)
}

// All returns the advertised tool set: built-ins plus the cached wrappee
// tools.
func (m *Manager) All() []protocol.ToolDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]protocol.ToolDescriptor, 0, len(builtinDescriptors)+len(m.wrappeeTools))
	out = append(out, m.wrappeeTools...)
	out = append(out, builtinDescriptors...)
	return out
}

// IsBuiltin reports whether name is handled locally by the proxy.
func (m *Manager) IsBuiltin(name protocol.ToolName) bool { return isBuiltin(name) }

// knows reports whether name is currently advertised.
func (m *Manager) knows(name protocol.ToolName) bool {
	if isBuiltin(name) {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.wrappeeTools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Invoke routes one tool call. Built-ins execute locally with no
// forwarding timeout. Forwarded calls fail fast with ErrUnavailable while
// the controller is mid-restart or failed; nothing is queued.
func (m *Manager) Invoke(ctx context.Context, name protocol.ToolName, args json.RawMessage) (json.RawMessage, error) {
	if isBuiltin(name) {
		result, err := m.invokeBuiltin(ctx, name, args)
		if err != nil {
			metrics.IncToolCall("builtin", "error")
			return nil, err
		}
		metrics.IncToolCall("builtin", "ok")
		return json.Marshal(result)
	}

	if !m.knows(name) {
		metrics.IncToolCall("wrappee", "not_found")
		return nil, fmt.Errorf("%w: %s", protocol.ErrNotFound, name)
	}

	client, err := m.ctrl.Client()
	if err != nil {
		metrics.IncToolCall("wrappee", "unavailable")
		return nil, err
	}

	started := time.Now()
	result, err := client.CallTool(ctx, name, args, m.timeout)
	metrics.ObserveCallDuration("wrappee", time.Since(started).Seconds())
	if err != nil {
		outcome := "error"
		var te *protocol.TimeoutError
		if errors.As(err, &te) {
			outcome = "timeout"
		}
		metrics.IncToolCall("wrappee", outcome)
		return nil, err
	}
	metrics.IncToolCall("wrappee", "ok")
	return result, nil
}
