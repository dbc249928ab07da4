// Package watcher observes the wrappee binary on disk and feeds change
// signals into the controller's debounced restart path.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/loykin/wrapmcp/internal/controller"
	"github.com/loykin/wrapmcp/internal/protocol"
)

// Watcher translates filesystem events on one binary into controller
// signals. The parent directory is watched rather than the file itself:
// build tools typically replace binaries by rename, which would silently
// drop a direct file watch.
type Watcher struct {
	path string
	base string
	ctrl *controller.Controller
	fw   *fsnotify.Watcher
	done chan struct{}
}

// Start begins watching path, which must be absolute. Setup failure
// returns a FileWatchError; the caller logs it and runs without watching.
func Start(path string, ctrl *controller.Controller) (*Watcher, error) {
	if !filepath.IsAbs(path) {
		return nil, &protocol.FileWatchError{Path: path, Err: fmt.Errorf("watch path must be absolute")}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &protocol.FileWatchError{Path: path, Err: err}
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, &protocol.FileWatchError{Path: path, Err: err}
	}

	w := &Watcher{
		path: path,
		base: filepath.Base(path),
		ctrl: ctrl,
		fw:   fw,
		done: make(chan struct{}),
	}
	go w.run()
	slog.Info("watching wrappee binary", "path", path)
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != w.base {
				continue
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		// The binary is gone; wait for it to reappear instead of
		// restarting into nothing.
		slog.Info("wrappee binary removed, waiting for recreation", "path", w.path)
		w.ctrl.CancelPendingRestart()
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if _, err := os.Stat(w.path); err != nil {
			return
		}
		slog.Debug("wrappee binary changed", "op", ev.Op.String())
		w.ctrl.HandleFileChange()
	}
}

// Close stops the watcher and waits for its event loop to exit.
func (w *Watcher) Close() {
	_ = w.fw.Close()
	<-w.done
}
