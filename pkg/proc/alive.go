package proc

import (
	stderrors "errors"
	"syscall"
)

// Alive reports whether pid names a running, non-zombie process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if IsZombie(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return stderrors.Is(err, syscall.EPERM)
}

func IsZombie(pid int) bool {
	st, err := readStat(pid)
	if err != nil {
		return false
	}
	return st.state == 'Z'
}
