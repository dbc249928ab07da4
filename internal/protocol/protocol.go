package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the MCP protocol version presented to the wrappee
// during the initialize handshake unless overridden by configuration.
const ProtocolVersion = "2025-03-26"

// JSON-RPC method names used on both sides of the proxy.
const (
	MethodInitialize      = "initialize"
	MethodInitialized     = "notifications/initialized"
	MethodToolsList       = "tools/list"
	MethodToolsCall       = "tools/call"
	MethodToolListChanged = "notifications/tools/list_changed"
	MethodPing            = "ping"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// RequestID identifies an outbound call issued to the wrappee. IDs are
// unique for the lifetime of the proxy process and are never reused, so a
// stale response arriving after a timeout can never match a later call.
type RequestID uint64

func (id RequestID) String() string { return fmt.Sprintf("%d", id) }

// ToolName is the nominal type for tool identifiers. Keeping it distinct
// from plain strings prevents ids and names from being swapped at call
// sites.
type ToolName string

func (n ToolName) String() string { return string(n) }

// Request is a canonical inbound or outbound JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool { return len(r.ID) == 0 }

// Response is a JSON-RPC response carrying either a result or an error.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the wire shape of a JSON-RPC error.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewErrorObject builds an error object without attached data.
func NewErrorObject(code int, message string) *ErrorObject {
	return &ErrorObject{Code: code, Message: message}
}

// ToolOrigin distinguishes proxy built-ins from tools discovered on the
// wrappee.
type ToolOrigin string

const (
	OriginBuiltin ToolOrigin = "builtin"
	OriginWrappee ToolOrigin = "wrappee"
)

// ToolDescriptor describes one invocable tool as advertised to the client.
type ToolDescriptor struct {
	Name        ToolName        `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Origin      ToolOrigin      `json:"-"`
}

// InitializeParams is the payload of the initialize handshake sent to the
// wrappee.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// ClientInfo identifies the proxy to the wrappee.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// CallToolParams is the payload of a tools/call request.
type CallToolParams struct {
	Name      ToolName        `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ListToolsResult is the result payload of a tools/list response.
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// CallToolResult is the result payload of a tools/call response.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is a single content block in a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextResult wraps a plain text payload into a tool call result.
func TextResult(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{{Type: "text", Text: text}}}
}
