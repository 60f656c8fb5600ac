package runner

import (
	"context"
	"syscall"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/proc"
	"github.com/pkg/errors"
)

// StopActive stops a run owned by another mdfctl process. The request is
// recorded in the active file first so that host finalizes the run as
// stopped rather than as an error.
func StopActive(ctx context.Context, root string, a *history.ActiveRun, grace time.Duration) error {
	if a == nil {
		return errors.New("no active run")
	}
	if err := history.RequestStop(root, a.ID, time.Now()); err != nil {
		return err
	}
	return StopPID(ctx, a.PID, grace)
}

// StopPID sends SIGTERM to pid's process group and SIGKILL once grace has
// passed. It is what `mdfctl stop` uses from another process.
func StopPID(ctx context.Context, pid int, grace time.Duration) error {
	return terminatePIDGroup(ctx, pid, grace)
}

func terminatePIDGroup(ctx context.Context, pid int, timeout time.Duration) error {
	if pid <= 0 {
		return nil
	}
	pgid, err := syscall.Getpgid(pid)
	signal := func(sig syscall.Signal) {
		if err == nil {
			_ = syscall.Kill(-pgid, sig)
		} else {
			_ = syscall.Kill(pid, sig)
		}
	}
	signal(syscall.SIGTERM)

	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < timeout {
			timeout = remaining
		}
	}

	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()

	deadline := time.Now().Add(timeout)
	for proc.Alive(pid) && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if !proc.Alive(pid) {
		return nil
	}

	signal(syscall.SIGKILL)
	killDeadline := time.Now().Add(2 * time.Second)
	for proc.Alive(pid) && time.Now().Before(killDeadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if proc.Alive(pid) {
		return errors.Errorf("failed to stop worker %d", pid)
	}
	return nil
}
