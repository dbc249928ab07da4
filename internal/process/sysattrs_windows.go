//go:build windows

package process

import (
	"os"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// sysProcAttr creates a new process group on Windows for signal delivery.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}

// signalGroup approximates group signaling on Windows. There is no
// SIGTERM; both phases fall back to killing the leader.
func signalGroup(pid int, _ bool) {
	if pid <= 0 {
		return
	}
	if p, err := os.FindProcess(pid); err == nil {
		_ = p.Kill()
	}
}
