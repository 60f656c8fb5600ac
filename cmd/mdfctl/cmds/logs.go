package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var tail int
	var follow bool
	var raw bool
	var errorsOnly bool

	cmd := &cobra.Command{
		Use:   "logs [run-id]",
		Short: "Show a run log (active run, a given run, or the latest one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			path, err := pickLogFile(opts, args)
			if err != nil {
				return err
			}

			lines, err := history.TailLines(path, tail, 8<<20)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			now := time.Now()
			for _, l := range lines {
				printLogLine(out, l, now, raw, errorsOnly)
			}
			if !follow {
				return nil
			}
			return followLog(cmd.Context(), path, func(l string) {
				printLogLine(out, l, time.Now(), raw, errorsOnly)
			})
		},
	}

	cmd.Flags().IntVarP(&tail, "tail", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print lines as written, without level/timestamp normalization")
	cmd.Flags().BoolVar(&errorsOnly, "errors", false, "Only print ERROR and CRITICAL lines")
	return cmd
}

func pickLogFile(opts rootOptions, args []string) (string, error) {
	if len(args) == 1 {
		rec, err := opts.historyStore().Get(args[0])
		if err != nil {
			return "", err
		}
		if rec.LogFile == "" {
			return "", errors.Errorf("run %s has no log file", rec.ID)
		}
		return rec.LogFile, nil
	}
	active, err := history.LoadActive(opts.RepoRoot)
	if err != nil {
		return "", err
	}
	if active != nil && active.LogFile != "" {
		return active.LogFile, nil
	}
	return history.LatestLog(opts.LogsDir)
}

func printLogLine(w io.Writer, line string, now time.Time, raw, errorsOnly bool) {
	if strings.HasPrefix(line, "### ") {
		if !errorsOnly {
			_, _ = fmt.Fprintln(w, line)
		}
		return
	}
	e := history.ParseLine(line, now)
	if errorsOnly && !e.IsErrorLevel() {
		return
	}
	if raw {
		_, _ = fmt.Fprintln(w, line)
		return
	}
	_, _ = fmt.Fprintln(w, e.Display())
}

// followLog prints whatever is appended to path until ctx ends. fsnotify
// wakes it up; a slow ticker covers filesystems without notifications.
func followLog(ctx context.Context, path string, emit func(string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open log")
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return errors.Wrap(err, "seek log")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "fsnotify")
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return errors.Wrap(err, "watch log dir")
	}

	r := bufio.NewReader(f)
	var partial string
	drain := func() {
		for {
			s, err := r.ReadString('\n')
			partial += s
			if err != nil {
				return
			}
			emit(strings.TrimRight(partial, "\r\n"))
			partial = ""
		}
	}

	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == filepath.Clean(path) && ev.Has(fsnotify.Write) {
				drain()
			}
		case _, ok := <-w.Errors:
			if !ok {
				return nil
			}
		case <-t.C:
			drain()
		}
	}
}
