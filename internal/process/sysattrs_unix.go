//go:build !windows

package process

import "syscall"

// sysProcAttr places the child in its own process group so that
// termination signals reach the whole wrappee tree, not just the leader.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup delivers SIGTERM (or SIGKILL when force is set) to the
// child's process group.
func signalGroup(pid int, force bool) {
	if pid <= 0 {
		return
	}
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	_ = syscall.Kill(-pid, sig)
}
