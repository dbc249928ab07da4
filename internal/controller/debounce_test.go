package controller

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/wrapmcp/internal/logstore"
)

func TestFileChangesCollapseIntoOneStart(t *testing.T) {
	requireUnix(t)
	cfg := loopbackConfig()
	cfg.Debounce = 100 * time.Millisecond
	c := New(cfg, logstore.New(10))
	defer c.Shutdown()

	var notifications atomic.Int32
	c.SetToolsChangedNotifier(func() { notifications.Add(1) })

	// A burst of change events within one quiet window.
	for i := 0; i < 5; i++ {
		c.HandleFileChange()
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return c.State() == StateRunning
	}, 3*time.Second, 20*time.Millisecond)

	// Give a second debounce window time to fire if one was queued.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), notifications.Load())
}

func TestCancelPendingRestartDropsTheTimer(t *testing.T) {
	cfg := loopbackConfig()
	cfg.Debounce = 50 * time.Millisecond
	c := New(cfg, logstore.New(10))
	defer c.Shutdown()

	c.HandleFileChange()
	c.CancelPendingRestart()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateNotStarted, c.State())
}

func TestDebouncedRestartAfterRunning(t *testing.T) {
	requireUnix(t)
	cfg := loopbackConfig()
	cfg.Debounce = 50 * time.Millisecond
	c := New(cfg, logstore.New(10))
	defer c.Shutdown()

	require.NoError(t, c.Start(t.Context()))
	oldPID := c.Snapshot().PID

	c.HandleFileChange()

	require.Eventually(t, func() bool {
		snap := c.Snapshot()
		return snap.State == StateRunning && snap.PID != oldPID
	}, 5*time.Second, 20*time.Millisecond, "file change should restart the wrappee")
}
