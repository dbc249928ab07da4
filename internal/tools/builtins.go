package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loykin/wrapmcp/internal/logstore"
	"github.com/loykin/wrapmcp/internal/protocol"
)

// Built-in tool names.
const (
	ToolShowLog       protocol.ToolName = "show_log"
	ToolClearLog      protocol.ToolName = "clear_log"
	ToolRestartServer protocol.ToolName = "restart_wrapped_server"
)

const defaultShowLogLimit = 20

var builtinDescriptors = []protocol.ToolDescriptor{
	{
		Name:        ToolShowLog,
		Description: "Display recorded request/response logs from the wrapper",
		Origin:      protocol.OriginBuiltin,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {"type": "integer", "description": "Maximum number of log entries to show (default: 20)", "default": 20},
				"tool_name": {"type": "string", "description": "Filter logs by tool name"},
				"entry_type": {"type": "string", "enum": ["request", "response", "error", "stderr"], "description": "Filter logs by entry type"},
				"keyword": {"type": "string", "description": "Regular expression to search in log content (falls back to literal search if invalid)"},
				"format": {"type": "string", "enum": ["ai", "text", "json"], "description": "Output format (default: ai)", "default": "ai"}
			}
		}`),
	},
	{
		Name:        ToolClearLog,
		Description: "Clear all recorded logs",
		Origin:      protocol.OriginBuiltin,
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	},
	{
		Name:        ToolRestartServer,
		Description: "Restart the wrapped MCP server while preserving logs",
		Origin:      protocol.OriginBuiltin,
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
	},
}

func isBuiltin(name protocol.ToolName) bool {
	switch name {
	case ToolShowLog, ToolClearLog, ToolRestartServer:
		return true
	default:
		return false
	}
}

// showLogRequest mirrors the show_log input schema.
type showLogRequest struct {
	Limit     int    `json:"limit"`
	ToolName  string `json:"tool_name"`
	EntryType string `json:"entry_type"`
	Keyword   string `json:"keyword"`
	Format    string `json:"format"`
}

// invokeBuiltin executes a local tool. Built-ins never go through the
// forwarding timeout; their side effects are confined to the log store and
// the controller.
func (m *Manager) invokeBuiltin(ctx context.Context, name protocol.ToolName, args json.RawMessage) (*protocol.CallToolResult, error) {
	switch name {
	case ToolShowLog:
		return m.showLog(args)
	case ToolClearLog:
		m.store.Clear()
		return protocol.TextResult("Log cleared."), nil
	case ToolRestartServer:
		if err := m.ctrl.Restart(ctx); err != nil {
			return nil, err
		}
		return protocol.TextResult("Wrapped server restarted successfully"), nil
	default:
		return nil, fmt.Errorf("%w: %s", protocol.ErrNotFound, name)
	}
}

func (m *Manager) showLog(args json.RawMessage) (*protocol.CallToolResult, error) {
	req := showLogRequest{Limit: defaultShowLogLimit, Format: string(logstore.FormatAI)}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, fmt.Errorf("invalid show_log parameters: %w", err)
		}
	}
	if req.Limit <= 0 {
		req.Limit = defaultShowLogLimit
	}
	kind, ok := logstore.ParseKind(req.EntryType)
	if !ok {
		return nil, fmt.Errorf("invalid entry_type %q", req.EntryType)
	}

	entries := m.store.Query(logstore.Filter{
		Limit:   req.Limit,
		Tool:    protocol.ToolName(req.ToolName),
		Kind:    kind,
		Keyword: req.Keyword,
	})
	return protocol.TextResult(logstore.Render(entries, logstore.Format(req.Format))), nil
}
