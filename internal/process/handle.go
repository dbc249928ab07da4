// Package process owns the wrappee OS process: spawning with piped stdio,
// atomic stdin writes, and two-phase (cooperative then forced) termination.
package process

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ColorSuppressEnv is applied to the wrappee environment at spawn time
// unless the caller opts out, so captured diagnostics stay free of escape
// sequences at the source.
var ColorSuppressEnv = []string{
	"NO_COLOR=1",
	"CLICOLOR=0",
	"RUST_LOG_STYLE=never",
}

// Options describes the child process to spawn.
type Options struct {
	Command       string
	Args          []string
	Env           []string // extra KEY=VALUE entries appended to the inherited environment
	SuppressColor bool
}

// Handle owns one running child process and its standard-stream pipes. A
// Handle is exclusively owned by a single wrappee client; it is destroyed
// on process exit or explicit termination and never reused.
type Handle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	writeMu sync.Mutex

	reapOnce sync.Once
	waitDone chan struct{}

	mu      sync.Mutex
	exitErr error
	exited  bool
}

// Spawn starts the command with piped stdin/stdout/stderr and the
// color-suppression environment applied when requested.
func Spawn(opts Options) (*Handle, error) {
	// #nosec G204 -- the command is the operator-supplied wrappee.
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Env = append(os.Environ(), opts.Env...)
	if opts.SuppressColor {
		cmd.Env = append(cmd.Env, ColorSuppressEnv...)
	}
	cmd.SysProcAttr = sysProcAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &Handle{
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		waitDone: make(chan struct{}),
	}
	slog.Info("spawned wrappee process", "command", opts.Command, "pid", h.PID())
	return h, nil
}

// PID returns the child's process id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Stdout returns the child's standard output stream.
func (h *Handle) Stdout() io.Reader { return h.stdout }

// Stderr returns the child's diagnostic stream.
func (h *Handle) Stderr() io.Reader { return h.stderr }

// Write sends raw bytes to the child's stdin. Writes from concurrent
// callers never interleave.
func (h *Handle) Write(b []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_, err := h.stdin.Write(b)
	return err
}

// reap attaches the single cmd.Wait waiter. Safe to call more than once;
// only the first call starts the waiter.
func (h *Handle) reap() {
	h.reapOnce.Do(func() {
		go func() {
			err := h.cmd.Wait()
			h.mu.Lock()
			h.exitErr = err
			h.exited = true
			h.mu.Unlock()
			close(h.waitDone)
		}()
	})
}

// Done is closed once the child has exited and been reaped.
func (h *Handle) Done() <-chan struct{} {
	h.reap()
	return h.waitDone
}

// ExitErr returns the recorded exit error once the process has exited.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Terminate requests cooperative termination, waits up to grace, then
// forcibly kills the process group. It is idempotent: calling it again for
// an already-exited process returns the same recorded result.
func (h *Handle) Terminate(grace time.Duration) error {
	h.mu.Lock()
	exited := h.exited
	h.mu.Unlock()
	if exited {
		return h.ExitErr()
	}

	pid := h.PID()
	_ = h.stdin.Close()
	signalGroup(pid, false)
	h.reap()

	select {
	case <-h.waitDone:
	case <-time.After(grace):
		slog.Warn("wrappee did not exit within grace period, killing", "pid", pid, "grace", grace)
		signalGroup(pid, true)
		select {
		case <-h.waitDone:
		case <-time.After(200 * time.Millisecond):
			// best-effort
		}
	}
	return h.ExitErr()
}
