//go:build windows

package process

import (
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Windows has no SIGSTOP/SIGCONT; the numbers only need to be distinct.
const (
	sigStop = syscall.Signal(0x13)
	sigCont = syscall.Signal(0x12)
)

func sendSignal(pid int, sig syscall.Signal) error {
	switch sig {
	case syscall.SIGKILL, syscall.SIGTERM:
		p, err := gopsproc.NewProcess(int32(pid))
		if err != nil {
			return err
		}
		return p.Kill()
	default:
		return ErrUnsupported
	}
}

// Exists reports whether pid is alive.
func Exists(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := gopsproc.PidExists(int32(pid))
	return err == nil && ok
}
