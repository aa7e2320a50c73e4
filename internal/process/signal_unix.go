//go:build !windows

package process

import "syscall"

const (
	sigStop = syscall.SIGSTOP
	sigCont = syscall.SIGCONT
)

func sendSignal(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}

// Exists reports whether pid is alive (EPERM counts as alive).
func Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}
