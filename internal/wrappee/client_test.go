package wrappee

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/wrapmcp/internal/logstore"
	"github.com/loykin/wrapmcp/internal/process"
	"github.com/loykin/wrapmcp/internal/protocol"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/cat/sleep on Unix-like systems")
	}
}

// spawnLoopback starts cat as the wrapped process: every request frame is
// echoed back verbatim, which the reader parses as a response whose id
// matches the request.
func spawnLoopback(t *testing.T) (*Client, *logstore.Store, *atomic.Uint64) {
	t.Helper()
	h, err := process.Spawn(process.Options{Command: "cat"})
	require.NoError(t, err)

	var nextID atomic.Uint64
	store := logstore.New(100)
	c := New(h, &nextID, store, false)
	t.Cleanup(func() {
		c.Close()
		_ = h.Terminate(time.Second)
	})
	return c, store, &nextID
}

func TestCallCorrelatesResponseByID(t *testing.T) {
	requireUnix(t)
	c, _, _ := spawnLoopback(t)

	resp, err := c.Call(context.Background(), "ping", nil, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
}

func TestCallIDsAreSequentialAcrossCalls(t *testing.T) {
	requireUnix(t)
	c, _, nextID := spawnLoopback(t)

	_, err := c.Call(context.Background(), "first", nil, 5*time.Second)
	require.NoError(t, err)
	_, err = c.Call(context.Background(), "second", nil, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), nextID.Load())
}

// reverseResponder answers two buffered requests in reverse arrival
// order, echoing each request's method inside its result so callers can
// verify they got their own answer.
const reverseResponder = `read -r first
read -r second
for l in "$second" "$first"; do
	id=$(printf '%s' "$l" | sed 's/.*"id":\([0-9]*\).*/\1/')
	m=$(printf '%s' "$l" | sed 's/.*"method":"\([a-z]*\)".*/\1/')
	printf '{"jsonrpc":"2.0","id":%s,"result":{"from":"%s"}}\n' "$id" "$m"
done
sleep 5`

func TestConcurrentCallsCorrelateOutOfOrderResponses(t *testing.T) {
	requireUnix(t)
	h, err := process.Spawn(process.Options{Command: "sh", Args: []string{"-c", reverseResponder}})
	require.NoError(t, err)

	var nextID atomic.Uint64
	c := New(h, &nextID, logstore.New(10), false)
	defer func() {
		c.Close()
		_ = h.Terminate(time.Second)
	}()

	// Two calls in flight at once; the second to arrive is answered
	// first, so each caller only gets its own result if correlation is
	// by id rather than by arrival order.
	results := make(chan error, 2)
	for _, method := range []string{"alpha", "beta"} {
		go func(method string) {
			resp, callErr := c.Call(context.Background(), method, nil, 5*time.Second)
			if callErr != nil {
				results <- callErr
				return
			}
			var result struct {
				From string `json:"from"`
			}
			if callErr = json.Unmarshal(resp.Result, &result); callErr != nil {
				results <- callErr
				return
			}
			if result.From != method {
				results <- fmt.Errorf("call %q received result for %q", method, result.From)
				return
			}
			results <- nil
		}(method)
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("concurrent calls did not both complete")
		}
	}
}

func TestCallTimeoutReturnsTimeoutError(t *testing.T) {
	requireUnix(t)
	h, err := process.Spawn(process.Options{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)

	var nextID atomic.Uint64
	c := New(h, &nextID, logstore.New(10), false)
	defer func() {
		c.Close()
		_ = h.Terminate(time.Second)
	}()

	_, err = c.Call(context.Background(), "never_answered", nil, 100*time.Millisecond)
	var te *protocol.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, protocol.RequestID(1), te.ID)
	assert.Equal(t, 100*time.Millisecond, te.Timeout)
}

func TestCloseFailsInFlightCalls(t *testing.T) {
	requireUnix(t)
	h, err := process.Spawn(process.Options{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	defer func() { _ = h.Terminate(time.Second) }()

	var nextID atomic.Uint64
	c := New(h, &nextID, logstore.New(10), false)

	type result struct {
		resp *protocol.Response
		err  error
	}
	got := make(chan result, 1)
	go func() {
		resp, callErr := c.Call(context.Background(), "stuck", nil, 30*time.Second)
		got <- result{resp, callErr}
	}()

	time.Sleep(50 * time.Millisecond)
	c.Close()

	select {
	case r := <-got:
		require.NoError(t, r.err)
		require.NotNil(t, r.resp)
		require.NotNil(t, r.resp.Error)
		assert.Contains(t, r.resp.Error.Message, "client closed")
	case <-time.After(5 * time.Second):
		t.Fatal("in-flight call not released by Close")
	}
}

func TestStderrCapturedAndStripped(t *testing.T) {
	requireUnix(t)
	h, err := process.Spawn(process.Options{
		Command: "sh",
		Args:    []string{"-c", `printf '\033[31mred alert\033[0m\n' 1>&2; sleep 5`},
	})
	require.NoError(t, err)

	var nextID atomic.Uint64
	store := logstore.New(10)
	c := New(h, &nextID, store, false)
	defer func() {
		c.Close()
		_ = h.Terminate(time.Second)
	}()

	require.Eventually(t, func() bool {
		entries := store.Query(logstore.Filter{Limit: 10, Kind: logstore.KindStderr})
		return len(entries) == 1 && entries[0].Text == "red alert"
	}, 3*time.Second, 20*time.Millisecond, "stripped stderr line should land in the store")
}

func TestContextCancelUnblocksCall(t *testing.T) {
	requireUnix(t)
	h, err := process.Spawn(process.Options{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)

	var nextID atomic.Uint64
	c := New(h, &nextID, logstore.New(10), false)
	defer func() {
		c.Close()
		_ = h.Terminate(time.Second)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err = c.Call(ctx, "cancelled", nil, 30*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
