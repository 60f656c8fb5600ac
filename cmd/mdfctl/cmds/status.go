package cmds

import (
	"os"

	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/proc"
	"github.com/auto-mdf/mdfctl/pkg/progress"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var tailLines int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active run, its worker process and its progress",
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
				last, err := opts.historyStore().List(history.ListOptions{Limit: 1})
				if err != nil {
					return err
				}
				out := map[string]any{"running": false}
				if len(last) > 0 {
					out["last_run"] = summarizeRecord(last[0])
				}
				return printJSON(cmd, out)
			}

			type status struct {
				Running  bool               `json:"running"`
				Run      *history.ActiveRun `json:"run"`
				Alive    bool               `json:"alive"`
				Process  *proc.Sample       `json:"process,omitempty"`
				Progress *progress.State    `json:"progress,omitempty"`
				Exit     *history.ExitInfo  `json:"exit,omitempty"`
				LogTail  []string           `json:"log_tail,omitempty"`
			}
			st := status{Run: active, Alive: proc.Alive(active.PID)}
			st.Running = st.Alive

			if st.Alive {
				if s, err := proc.NewSampler().Sample(active.PID); err == nil {
					st.Process = &s
				}
			}
			if active.ProgressFile != "" {
				if ps, ok, err := progress.NewStore(active.ProgressFile).Read(); err == nil && ok {
					st.Progress = &ps
				}
			}
			if !st.Alive && active.ExitInfo != "" {
				if _, err := os.Stat(active.ExitInfo); err == nil {
					if ei, err := history.ReadExitInfo(active.ExitInfo); err == nil {
						st.Exit = ei
					}
				}
			}
			if !st.Alive && tailLines > 0 && active.LogFile != "" {
				if lines, err := history.TailLines(active.LogFile, tailLines, 2<<20); err == nil {
					st.LogTail = lines
				}
			}
			return printJSON(cmd, st)
		},
	}

	cmd.Flags().IntVar(&tailLines, "tail-lines", 25, "Log lines to include when the worker is no longer alive")
	return cmd
}

type recordSummary struct {
	ID              string              `json:"id"`
	ScriptName      string              `json:"script_name"`
	Status          history.Status      `json:"status"`
	ExitCode        *int                `json:"exit_code,omitempty"`
	FailureKind     history.FailureKind `json:"failure_kind,omitempty"`
	MissingModules  []string            `json:"missing_modules,omitempty"`
	StartTime       string              `json:"start_time"`
	DurationSeconds float64             `json:"duration_seconds"`
	LogFile         string              `json:"log_file,omitempty"`
}

func summarizeRecord(r history.Record) recordSummary {
	return recordSummary{
		ID:              r.ID,
		ScriptName:      r.ScriptName,
		Status:          r.Status,
		ExitCode:        r.ExitCode,
		FailureKind:     r.FailureKind,
		MissingModules:  r.MissingModules,
		StartTime:       r.StartTime.Local().Format("2006-01-02 15:04:05"),
		DurationSeconds: r.Duration().Seconds(),
		LogFile:         r.LogFile,
	}
}
