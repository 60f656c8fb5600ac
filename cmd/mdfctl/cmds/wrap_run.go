package cmds

import (
	"bufio"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// exitCodeError makes main exit with the worker's own code.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string { return "wrapped worker failed" }

func (e exitCodeError) ExitCode() int { return e.code }

func newWrapRunCmd() *cobra.Command {
	var runID string
	var cwd string
	var exitInfoPath string
	var tailLines int

	cmd := &cobra.Command{
		Use:    "__wrap-run -- [cmd args...]",
		Short:  "Internal: run a worker and record its exit info",
		Hidden: true,
		Args:   cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout belongs to the worker; nothing of ours may reach it
			zerolog.SetGlobalLevel(zerolog.Disabled)
			log.Logger = zerolog.New(io.Discard)

			if runID == "" {
				return errors.New("missing --run-id")
			}
			if exitInfoPath == "" {
				return errors.New("missing --exit-info")
			}
			if tailLines <= 0 {
				tailLines = 25
			}

			// a vanished host must not take the worker down with SIGPIPE
			signal.Ignore(syscall.SIGPIPE)

			startedAt := time.Now()
			child := exec.Command(args[0], args[1:]...) //nolint:gosec
			child.Dir = cwd
			child.Env = os.Environ()
			child.Stdin = os.Stdin
			child.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: syscall.Getpgrp()}

			pr, pw, err := os.Pipe()
			if err != nil {
				return errors.Wrap(err, "output pipe")
			}
			child.Stdout = pw
			child.Stderr = pw

			if err := child.Start(); err != nil {
				_ = pr.Close()
				_ = pw.Close()
				_ = history.WriteExitInfo(exitInfoPath, history.ExitInfo{
					RunID:     runID,
					StartedAt: startedAt,
					ExitedAt:  time.Now(),
					Error:     errors.Wrap(err, "start").Error(),
				})
				return errors.Wrap(err, "start child")
			}
			_ = pw.Close()

			sigCh := make(chan os.Signal, 8)
			signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
			defer signal.Stop(sigCh)
			go func() {
				for s := range sigCh {
					_ = child.Process.Signal(s)
				}
			}()

			tail := history.NewOutputBuffer(tailLines)
			copied := make(chan struct{})
			go func() {
				defer close(copied)
				teeOutput(pr, os.Stdout, tail)
			}()

			waitErr := child.Wait()
			<-copied
			_ = pr.Close()

			info := exitInfoFromWait(runID, child.Process.Pid, startedAt, time.Now(), waitErr)
			info.OutputTail = tail.Lines()
			_ = history.WriteExitInfo(exitInfoPath, info)

			switch {
			case info.ExitCode != nil && *info.ExitCode != 0:
				return exitCodeError{code: *info.ExitCode}
			case info.Signal != "":
				return exitCodeError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Run id")
	cmd.Flags().StringVar(&cwd, "cwd", "", "Working directory")
	cmd.Flags().StringVar(&exitInfoPath, "exit-info", "", "Exit info JSON path")
	cmd.Flags().IntVar(&tailLines, "tail-lines", 25, "How many output lines to record on exit")
	return cmd
}

// teeOutput passes worker lines through unchanged and keeps the last ones.
// Write errors are ignored so the worker keeps draining after the host goes.
func teeOutput(r io.Reader, w io.Writer, tail *history.OutputBuffer) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			_, _ = io.WriteString(w, line)
			tail.Append(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return
		}
	}
}

func exitInfoFromWait(runID string, pid int, startedAt, exitedAt time.Time, waitErr error) history.ExitInfo {
	info := history.ExitInfo{
		RunID:     runID,
		PID:       pid,
		StartedAt: startedAt,
		ExitedAt:  exitedAt,
	}
	if waitErr == nil {
		code := 0
		info.ExitCode = &code
		return info
	}
	info.Error = waitErr.Error()
	var ee *exec.ExitError
	if stderrors.As(waitErr, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				info.Signal = ws.Signal().String()
			}
			if ws.Exited() {
				code := ws.ExitStatus()
				info.ExitCode = &code
			}
		}
	}
	return info
}
