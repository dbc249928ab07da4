package controller

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/wrapmcp/internal/logstore"
	"github.com/loykin/wrapmcp/internal/protocol"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/cat/sleep on Unix-like systems")
	}
}

// loopbackConfig wraps cat, which echoes every request frame back as a
// response with a matching id, so the handshake completes without a real
// MCP server.
func loopbackConfig() Config {
	return Config{
		Command:     "cat",
		CallTimeout: 5 * time.Second,
		Grace:       time.Second,
	}
}

func TestStartTransitionsToRunning(t *testing.T) {
	requireUnix(t)
	c := New(loopbackConfig(), logstore.New(10))
	defer c.Shutdown()

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateRunning, c.State())

	snap := c.Snapshot()
	assert.Greater(t, snap.PID, 0)
	assert.Empty(t, snap.FailReason)
}

func TestStartRejectedWhileRunning(t *testing.T) {
	requireUnix(t)
	c := New(loopbackConfig(), logstore.New(10))
	defer c.Shutdown()

	require.NoError(t, c.Start(context.Background()))
	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestStartSpawnFailureLeavesFailed(t *testing.T) {
	requireUnix(t)
	cfg := loopbackConfig()
	cfg.Command = "/nonexistent/binary-xyz"
	c := New(cfg, logstore.New(10))

	err := c.Start(context.Background())
	var se *protocol.SpawnError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StateFailed, c.State())
	assert.NotEmpty(t, c.Snapshot().FailReason)
}

func TestClientFailsFastUnlessRunning(t *testing.T) {
	c := New(loopbackConfig(), logstore.New(10))
	_, err := c.Client()
	assert.ErrorIs(t, err, protocol.ErrUnavailable)
}

func TestRestartReplacesProcess(t *testing.T) {
	requireUnix(t)
	c := New(loopbackConfig(), logstore.New(10))
	defer c.Shutdown()

	require.NoError(t, c.Start(context.Background()))
	oldPID := c.Snapshot().PID

	notified := make(chan struct{}, 1)
	c.SetToolsChangedNotifier(func() { notified <- struct{}{} })

	require.NoError(t, c.Restart(context.Background()))
	assert.Equal(t, StateRunning, c.State())
	assert.NotEqual(t, oldPID, c.Snapshot().PID)

	select {
	case <-notified:
	case <-time.After(time.Second):
		t.Fatal("restart did not announce the tool set change")
	}
}

func TestRestartRejectedWhileOneInFlight(t *testing.T) {
	requireUnix(t)
	c := New(loopbackConfig(), logstore.New(10))
	defer c.Shutdown()
	require.NoError(t, c.Start(context.Background()))

	// Hold the gate as a concurrent restart would.
	c.restartMu.Lock()
	err := c.Restart(context.Background())
	c.restartMu.Unlock()

	assert.ErrorIs(t, err, protocol.ErrUnavailable)
	assert.Equal(t, StateRunning, c.State())
}

func TestRestartNotAllowedBeforeStart(t *testing.T) {
	c := New(loopbackConfig(), logstore.New(10))
	err := c.Restart(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestRestartRecoversFromFailed(t *testing.T) {
	requireUnix(t)
	gate := filepath.Join(t.TempDir(), "ready")

	cfg := Config{
		Command:     "sh",
		Args:        []string{"-c", `[ -f "$GATE" ] && exec cat; exit 1`},
		Env:         []string{"GATE=" + gate},
		CallTimeout: 500 * time.Millisecond,
		Grace:       time.Second,
	}
	c := New(cfg, logstore.New(10))
	defer c.Shutdown()

	// Child exits immediately, so the handshake cannot complete.
	require.Error(t, c.Start(context.Background()))
	assert.Equal(t, StateFailed, c.State())

	require.NoError(t, os.WriteFile(gate, nil, 0o600))
	require.NoError(t, c.Restart(context.Background()))
	assert.Equal(t, StateRunning, c.State())
}

func TestShutdownIsIdempotentAndTerminal(t *testing.T) {
	requireUnix(t)
	c := New(loopbackConfig(), logstore.New(10))
	require.NoError(t, c.Start(context.Background()))

	c.Shutdown()
	c.Shutdown()
	assert.Equal(t, StateStopped, c.State())

	_, err := c.Client()
	assert.ErrorIs(t, err, protocol.ErrUnavailable)
}

func TestRequestIDsSurviveRestart(t *testing.T) {
	requireUnix(t)
	c := New(loopbackConfig(), logstore.New(10))
	defer c.Shutdown()

	require.NoError(t, c.Start(context.Background()))
	before := c.nextID.Load()
	require.NoError(t, c.Restart(context.Background()))

	// The handshake of the new process consumed ids from the same
	// sequence; nothing was reset.
	assert.Greater(t, c.nextID.Load(), before)
}
