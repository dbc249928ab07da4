// Package proxy is the request orchestrator: it receives canonical
// JSON-RPC requests from a transport adapter, records log entries,
// dispatches tool calls, and relays outbound notifications.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/wrapmcp/internal/controller"
	"github.com/loykin/wrapmcp/internal/logstore"
	"github.com/loykin/wrapmcp/internal/metrics"
	"github.com/loykin/wrapmcp/internal/protocol"
	"github.com/loykin/wrapmcp/internal/tools"
)

// serverVersion is reported to clients in the initialize response.
const serverVersion = "0.3.0"

// Notifier delivers an outbound notification to the connected client.
// Transports install one; when none is installed notifications are
// dropped with a log line (the HTTP transport has no push channel).
type Notifier func(method string, params any)

// Orchestrator ties the tool manager, controller and log store together
// behind a single Handle entry point.
type Orchestrator struct {
	mgr             *tools.Manager
	ctrl            *controller.Controller
	store           *logstore.Store
	protocolVersion string

	notifyMu sync.RWMutex
	notify   Notifier

	accepting atomic.Bool
}

// New builds an orchestrator and registers its tools/list_changed relay
// with the controller.
func New(mgr *tools.Manager, ctrl *controller.Controller, store *logstore.Store, protocolVersion string) *Orchestrator {
	if protocolVersion == "" {
		protocolVersion = protocol.ProtocolVersion
	}
	o := &Orchestrator{mgr: mgr, ctrl: ctrl, store: store, protocolVersion: protocolVersion}
	o.accepting.Store(true)
	ctrl.SetToolsChangedNotifier(o.NotifyToolsChanged)
	return o
}

// SetNotifier installs the outbound notification sink for the active
// transport.
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.notifyMu.Lock()
	o.notify = n
	o.notifyMu.Unlock()
}

// NotifyToolsChanged tells the client that the advertised tool set
// changed, typically after a wrappee restart.
func (o *Orchestrator) NotifyToolsChanged() {
	o.notifyMu.RLock()
	n := o.notify
	o.notifyMu.RUnlock()
	if n == nil {
		slog.Info("no notification channel, dropping tools/list_changed")
		return
	}
	slog.Info("sending tools/list_changed notification")
	n(protocol.MethodToolListChanged, nil)
}

// Close stops accepting inbound requests. Idempotent.
func (o *Orchestrator) Close() { o.accepting.Store(false) }

// Handle processes one canonical inbound message and returns the response
// to encode back to the client, or nil for notifications.
func (o *Orchestrator) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	if req.IsNotification() {
		o.handleNotification(req)
		return nil
	}
	if !o.accepting.Load() {
		return errorResponse(req.ID, protocol.CodeInternalError, "server is shutting down")
	}
	metrics.IncRequest(req.Method)

	switch req.Method {
	case protocol.MethodInitialize:
		return o.handleInitialize(req)
	case protocol.MethodToolsList:
		return resultResponse(req.ID, protocol.ListToolsResult{Tools: o.mgr.All()})
	case protocol.MethodToolsCall:
		return o.handleToolCall(ctx, req)
	case protocol.MethodPing:
		return resultResponse(req.ID, map[string]any{})
	default:
		return errorResponse(req.ID, protocol.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (o *Orchestrator) handleNotification(req *protocol.Request) {
	switch req.Method {
	case protocol.MethodInitialized:
		slog.Debug("client initialized")
	default:
		slog.Debug("ignoring client notification", "method", req.Method)
	}
}

func (o *Orchestrator) handleInitialize(req *protocol.Request) *protocol.Response {
	return resultResponse(req.ID, map[string]any{
		"protocolVersion": o.protocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": true},
		},
		"serverInfo": map[string]any{
			"name":    "wrapmcp",
			"version": serverVersion,
		},
	})
}

// handleToolCall dispatches one tools/call request. Forwarded calls get
// request/response/error entries in the log store; built-in calls are not
// self-logged so that clear_log leaves the store genuinely empty.
func (o *Orchestrator) handleToolCall(ctx context.Context, req *protocol.Request) *protocol.Response {
	var params protocol.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, protocol.CodeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	builtin := o.mgr.IsBuiltin(params.Name)
	var reqSeq uint64
	if !builtin {
		reqSeq = o.store.AddRequest(params.Name, params.Arguments)
	}

	started := time.Now()
	result, err := o.mgr.Invoke(ctx, params.Name, params.Arguments)
	elapsed := time.Since(started)

	if err != nil {
		if !builtin {
			o.store.AddError(protocol.RequestID(reqSeq), params.Name, err.Error(), elapsed)
		}
		slog.Warn("tool call failed", "tool", params.Name, "elapsed", elapsed, "error", err)
		return errorResponse(req.ID, errorCode(err), err.Error())
	}

	if !builtin {
		o.store.AddResponse(protocol.RequestID(reqSeq), params.Name, result, elapsed)
	}
	return &protocol.Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

// errorCode maps the error taxonomy onto JSON-RPC codes. A wrappee
// protocol error passes its original code through unchanged.
func errorCode(err error) int {
	var fe *protocol.ForwardingError
	if errors.As(err, &fe) {
		return fe.Resp.Code
	}
	switch {
	case errors.Is(err, protocol.ErrNotFound):
		return protocol.CodeInvalidParams
	default:
		return protocol.CodeInternalError
	}
}

func resultResponse(id json.RawMessage, result any) *protocol.Response {
	b, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, protocol.CodeInternalError, "encode result: "+err.Error())
	}
	return &protocol.Response{JSONRPC: "2.0", ID: id, Result: b}
}

func errorResponse(id json.RawMessage, code int, message string) *protocol.Response {
	return &protocol.Response{JSONRPC: "2.0", ID: id, Error: protocol.NewErrorObject(code, message)}
}
