package watcher

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/wrapmcp/internal/controller"
	"github.com/loykin/wrapmcp/internal/logstore"
	"github.com/loykin/wrapmcp/internal/protocol"
)

func newTestController(debounce time.Duration) *controller.Controller {
	return controller.New(controller.Config{
		Command:  "cat",
		Debounce: debounce,
	}, logstore.New(10))
}

func TestStartRejectsRelativePath(t *testing.T) {
	_, err := Start("relative/binary", newTestController(time.Second))
	var fwe *protocol.FileWatchError
	require.ErrorAs(t, err, &fwe)
	assert.Contains(t, fwe.Error(), "absolute")
}

func TestStartRejectsMissingDirectory(t *testing.T) {
	_, err := Start("/nonexistent-dir-xyz/binary", newTestController(time.Second))
	var fwe *protocol.FileWatchError
	require.ErrorAs(t, err, &fwe)
}

func TestWriteEventTriggersDebouncedStart(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test requires cat on Unix-like systems")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "wrappee-bin")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o700))

	ctrl := newTestController(50 * time.Millisecond)
	defer ctrl.Shutdown()

	w, err := Start(path, ctrl)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o700))

	// The controller has never run; the debounced signal performs the
	// initial start once the quiet window closes.
	require.Eventually(t, func() bool {
		return ctrl.State() == controller.StateRunning
	}, 5*time.Second, 20*time.Millisecond)
}

func TestUnrelatedFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrappee-bin")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o700))

	ctrl := newTestController(50 * time.Millisecond)
	defer ctrl.Shutdown()

	w, err := Start(path, ctrl)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other-file"), []byte("x"), 0o600))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, controller.StateNotStarted, ctrl.State())
}

func TestRemoveCancelsPendingRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrappee-bin")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o700))

	ctrl := newTestController(200 * time.Millisecond)
	defer ctrl.Shutdown()

	w, err := Start(path, ctrl)
	require.NoError(t, err)
	defer w.Close()

	// A write schedules a restart; removing the binary inside the quiet
	// window cancels it.
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o700))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Remove(path))

	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, controller.StateNotStarted, ctrl.State())
}

func TestCloseReturns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wrappee-bin")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o700))

	w, err := Start(path, newTestController(time.Second))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		w.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}
