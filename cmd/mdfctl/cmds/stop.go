package cmds

import (
	"fmt"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/proc"
	"github.com/auto-mdf/mdfctl/pkg/runner"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// hostFinalizeWait is how long stop waits for the owning mdfctl run to write
// the final record before writing it itself.
const hostFinalizeWait = 3 * time.Second

func newStopCmd() *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the active automation run",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			active, err := history.LoadActive(opts.RepoRoot)
			if err != nil {
				return err
			}
			if active == nil {
				return errors.New("no active run")
			}

			if proc.Alive(active.PID) {
				if grace <= 0 {
					grace = opts.File.Runner.StopGrace
				}
				if grace <= 0 {
					grace = runner.DefaultStopGrace
				}
				log.Info().Str("run", active.ID).Int("pid", active.PID).Dur("grace", grace).Msg("stopping run")
				if err := runner.StopActive(cmd.Context(), opts.RepoRoot, active, grace); err != nil {
					return err
				}
			}

			deadline := time.Now().Add(hostFinalizeWait)
			for time.Now().Before(deadline) {
				a, err := history.LoadActive(opts.RepoRoot)
				if err == nil && a == nil {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stopped %s (%s)\n", active.ID, active.ScriptName)
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}

			// the host is gone; close the record on its behalf
			store := opts.historyStore()
			rec, err := store.Get(active.ID)
			if err != nil {
				log.Debug().Err(err).Str("run", active.ID).Msg("no history line, writing a new one")
				rec = &history.Record{
					ID:         active.ID,
					ScriptName: active.ScriptName,
					ScriptPath: active.ScriptPath,
					StartTime:  active.StartedAt,
					LogFile:    active.LogFile,
				}
			}
			if !rec.Finished() {
				now := time.Now()
				rec.EndTime = &now
				rec.Status = history.StatusStopped
				if err := store.Append(*rec); err != nil {
					return err
				}
			}
			if err := history.RemoveActive(opts.RepoRoot); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "stopped %s (%s); host was not running, record closed\n", active.ID, active.ScriptName)
			return nil
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 0, "Time between SIGTERM and SIGKILL (defaults to runner.stop_grace or 5s)")
	return cmd
}
