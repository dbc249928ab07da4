// Package wrappee implements the JSON-RPC client side of the proxy: it
// frames requests onto the child's stdin, correlates responses arriving on
// stdout to outstanding calls by id, and captures the diagnostic stream.
package wrappee

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/wrapmcp/internal/logstore"
	"github.com/loykin/wrapmcp/internal/process"
	"github.com/loykin/wrapmcp/internal/protocol"
)

// maxFrameSize bounds a single newline-delimited JSON frame from the
// wrappee (16 MiB).
const maxFrameSize = 16 << 20

// Client speaks newline-delimited JSON-RPC over one process handle. At
// most one Client owns a handle at a time; the controller replaces the
// whole Client on restart.
type Client struct {
	handle *process.Handle

	// nextID is shared across client generations so request ids are
	// unique for the proxy's lifetime. A stale response from before a
	// restart or timeout can therefore never match a live call.
	nextID *atomic.Uint64

	mu      sync.Mutex
	pending map[protocol.RequestID]chan *protocol.Response

	store        *logstore.Store
	preserveANSI bool

	closeOnce sync.Once
	closed    chan struct{}
}

// New wires a client to a freshly spawned handle and starts its reader
// goroutines.
func New(handle *process.Handle, nextID *atomic.Uint64, store *logstore.Store, preserveANSI bool) *Client {
	c := &Client{
		handle:       handle,
		nextID:       nextID,
		pending:      make(map[protocol.RequestID]chan *protocol.Response),
		store:        store,
		preserveANSI: preserveANSI,
		closed:       make(chan struct{}),
	}
	go c.readLoop()
	go c.stderrLoop()
	return c
}

// PID returns the wrapped process id.
func (c *Client) PID() int { return c.handle.PID() }

// Handle exposes the underlying process handle to the controller for
// termination.
func (c *Client) Handle() *process.Handle { return c.handle }

// Close stops the reader goroutines' consumers and fails any in-flight
// calls. It does not terminate the process; that is the controller's job.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.failPending(fmt.Errorf("client closed"))
	})
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- &protocol.Response{Error: protocol.NewErrorObject(protocol.CodeInternalError, err.Error())}:
		default:
		}
		delete(c.pending, id)
	}
}

// register allocates a fresh id and a completion channel for one call.
func (c *Client) register() (protocol.RequestID, chan *protocol.Response) {
	id := protocol.RequestID(c.nextID.Add(1))
	ch := make(chan *protocol.Response, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return id, ch
}

func (c *Client) unregister(id protocol.RequestID) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// resolve delivers a response to the waiting call, if any. It reports
// whether the id was known.
func (c *Client) resolve(id protocol.RequestID, resp *protocol.Response) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
	return ok
}

func (c *Client) writeFrame(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.handle.Write(append(b, '\n'))
}

// Call sends a request and suspends the calling goroutine until a matching
// response arrives or the timeout elapses. On timeout the pending entry is
// removed and a TimeoutError is returned; the wrappee-side work is not
// cancelled.
func (c *Client) Call(ctx context.Context, method string, params any, timeout time.Duration) (*protocol.Response, error) {
	id, ch := c.register()

	req := protocol.Request{JSONRPC: "2.0", ID: json.RawMessage(strconv.FormatUint(uint64(id), 10)), Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			c.unregister(id)
			return nil, err
		}
		req.Params = b
	}
	if err := c.writeFrame(req); err != nil {
		c.unregister(id)
		return nil, fmt.Errorf("write request %d: %w", id, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, nil
	case <-timer.C:
		c.unregister(id)
		return nil, &protocol.TimeoutError{ID: id, Timeout: timeout}
	case <-ctx.Done():
		c.unregister(id)
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget notification (no id, no response).
func (c *Client) Notify(method string, params any) error {
	req := protocol.Request{JSONRPC: "2.0", Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = b
	}
	return c.writeFrame(req)
}

// readLoop consumes stdout frames until the pipe closes. Responses with an
// unknown id are logged and dropped; they are expected after timeouts.
func (c *Client) readLoop() {
	sc := bufio.NewScanner(c.handle.Stdout())
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp protocol.Response
		if err := json.Unmarshal(line, &resp); err != nil || len(resp.ID) == 0 {
			// Not a response frame: server-initiated request or
			// notification. The proxy does not act on these.
			slog.Debug("ignoring non-response frame from wrappee", "frame", truncate(string(line), 200))
			continue
		}
		id, err := parseID(resp.ID)
		if err != nil {
			slog.Warn("response with unparseable id from wrappee", "id", string(resp.ID))
			continue
		}
		if !c.resolve(id, &resp) {
			slog.Warn("response for unknown request id, discarding", "id", id)
		}
	}
	if err := sc.Err(); err != nil {
		slog.Debug("wrappee stdout reader stopped", "error", err)
	}
	c.failPending(fmt.Errorf("wrappee stdout closed"))
}

func parseID(raw json.RawMessage) (protocol.RequestID, error) {
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return protocol.RequestID(n), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
