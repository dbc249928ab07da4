package wrappee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/wrapmcp/internal/protocol"
)

// clientVersion identifies the proxy in the initialize handshake.
const clientVersion = "0.3.0"

// Initialize performs the protocol handshake: an initialize call followed
// by the initialized notification. It returns the wrappee's initialize
// result.
func (c *Client) Initialize(ctx context.Context, protocolVersion string, timeout time.Duration) (json.RawMessage, error) {
	params := protocol.InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      protocol.ClientInfo{Name: "wrapmcp", Version: clientVersion},
	}
	resp, err := c.Call(ctx, protocol.MethodInitialize, params, timeout)
	if err != nil {
		return nil, &protocol.HandshakeError{Err: err}
	}
	if resp.Error != nil {
		return nil, &protocol.HandshakeError{Err: resp.Error}
	}
	if err := c.Notify(protocol.MethodInitialized, nil); err != nil {
		return nil, &protocol.HandshakeError{Err: fmt.Errorf("initialized notification: %w", err)}
	}
	slog.Info("wrappee handshake complete", "protocol_version", protocolVersion, "pid", c.PID())
	return resp.Result, nil
}

// ListTools asks the wrappee for its current tool set.
func (c *Client) ListTools(ctx context.Context, timeout time.Duration) ([]protocol.ToolDescriptor, error) {
	resp, err := c.Call(ctx, protocol.MethodToolsList, map[string]any{}, timeout)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	var result protocol.ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	for i := range result.Tools {
		result.Tools[i].Origin = protocol.OriginWrappee
	}
	return result.Tools, nil
}

// CallTool forwards one tool invocation. A protocol-level error from the
// wrappee is surfaced as a ForwardingError so it reaches the client
// unchanged.
func (c *Client) CallTool(ctx context.Context, name protocol.ToolName, args json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	params := protocol.CallToolParams{Name: name, Arguments: args}
	resp, err := c.Call(ctx, protocol.MethodToolsCall, params, timeout)
	if err != nil {
		var te *protocol.TimeoutError
		if errors.As(err, &te) {
			te.Tool = name
		}
		return nil, err
	}
	if resp.Error != nil {
		return nil, &protocol.ForwardingError{Tool: name, Resp: resp.Error}
	}
	return resp.Result, nil
}
