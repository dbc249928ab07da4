// Package server provides the client-facing transports. Both decode the
// wire into the canonical request shape and hand it to the orchestrator;
// the wrappee-side connection always uses stdio regardless of which
// transport the client picked.
package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/loykin/wrapmcp/internal/protocol"
	"github.com/loykin/wrapmcp/internal/proxy"
)

// stdioPipe joins stdin and stdout into the ReadWriteCloser jsonrpc2
// expects.
type stdioPipe struct {
	in  io.ReadCloser
	out io.WriteCloser
}

func (p stdioPipe) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p stdioPipe) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p stdioPipe) Close() error {
	_ = p.in.Close()
	return p.out.Close()
}

// StdioServer serves one client over newline-delimited JSON-RPC on the
// process's own stdin/stdout.
type StdioServer struct {
	orch *proxy.Orchestrator
}

// NewStdioServer wires the orchestrator to a jsonrpc2 connection over
// stdio and installs the outbound notification channel.
func NewStdioServer(orch *proxy.Orchestrator) *StdioServer {
	return &StdioServer{orch: orch}
}

// Run serves until the client disconnects or ctx is cancelled.
func (s *StdioServer) Run(ctx context.Context) error {
	stream := jsonrpc2.NewBufferedStream(stdioPipe{in: os.Stdin, out: os.Stdout}, jsonrpc2.PlainObjectCodec{})
	// AsyncHandler lets slow forwarded calls overlap; ordering between
	// independent calls is not guaranteed, by protocol.
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(jsonrpc2.HandlerWithError(s.handle)))
	s.orch.SetNotifier(func(method string, params any) {
		if err := conn.Notify(context.Background(), method, params); err != nil {
			slog.Warn("failed to send notification", "method", method, "error", err)
		}
	})
	slog.Info("stdio transport ready")

	select {
	case <-conn.DisconnectNotify():
		slog.Info("stdio client disconnected")
	case <-ctx.Done():
		_ = conn.Close()
	}
	return nil
}

// handle converts a jsonrpc2 request into the canonical shape and routes
// it through the orchestrator.
func (s *StdioServer) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	creq := &protocol.Request{JSONRPC: "2.0", Method: req.Method}
	if req.Params != nil {
		creq.Params = *req.Params
	}
	if !req.Notif {
		creq.ID = encodeID(req.ID)
	}

	resp := s.orch.Handle(ctx, creq)
	if resp == nil {
		return nil, nil
	}
	if resp.Error != nil {
		return nil, &jsonrpc2.Error{Code: int64(resp.Error.Code), Message: resp.Error.Message}
	}
	return json.RawMessage(resp.Result), nil
}

func encodeID(id jsonrpc2.ID) json.RawMessage {
	if id.IsString {
		b, _ := json.Marshal(id.Str)
		return b
	}
	return json.RawMessage(strconv.FormatUint(id.Num, 10))
}
