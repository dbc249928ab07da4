package controller

import (
	"context"
	"log/slog"
	"time"
)

// HandleFileChange is invoked by the file watcher for every relevant
// event. Signals arriving within one debounce window collapse into a
// single restart, scheduled once the window closes with no further
// signals.
func (c *Controller) HandleFileChange() {
	c.debounceMu.Lock()
	defer c.debounceMu.Unlock()
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceTimer = time.AfterFunc(c.cfg.Debounce, c.fireDebouncedRestart)
}

// CancelPendingRestart drops any restart scheduled by HandleFileChange.
// The watcher uses this when the watched binary is removed: restarting
// into a missing file would only fail.
func (c *Controller) CancelPendingRestart() {
	c.debounceMu.Lock()
	defer c.debounceMu.Unlock()
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
}

func (c *Controller) fireDebouncedRestart() {
	switch c.State() {
	case StateRunning, StateFailed:
		slog.Info("debounce window closed, restarting wrappee")
		if err := c.Restart(context.Background()); err != nil {
			slog.Error("debounced restart failed", "error", err)
		}
	case StateNotStarted, StateStopped:
		// Binary appeared before the wrappee ever ran (or after an
		// explicit stop): perform an initial start instead.
		slog.Info("debounce window closed, starting wrappee")
		if err := c.Start(context.Background()); err != nil {
			slog.Error("debounced start failed", "error", err)
			return
		}
		if c.notifyToolsChanged != nil {
			c.notifyToolsChanged()
		}
	default:
		slog.Debug("debounced restart skipped", "state", c.State().String())
	}
}
