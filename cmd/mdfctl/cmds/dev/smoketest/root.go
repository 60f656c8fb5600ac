package smoketest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/progress"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewCmd() *cobra.Command {
	var timeout time.Duration
	var wrap bool

	cmd := &cobra.Command{
		Use:   "smoketest",
		Short: "Run mdfctl smoke/integration tests (dev-only)",
		Long:  "Build the fake worker, run it through the runner answering a prompt, and check the record, log and progress file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			sb, err := newSandbox(ctx, "mdfctl-smoketest-*")
			if err != nil {
				return err
			}
			defer sb.Close()

			wrapper := ""
			if wrap {
				wrapper, err = os.Executable()
				if err != nil {
					return err
				}
			}

			d := &scriptedDialoger{answer: bridge.Response{Value: "42"}}
			h, rec, err := sb.run(ctx, sb.runner(d, wrapper), "--prompt", "Número do CT-e", "--steps", "3")
			if err != nil {
				return err
			}
			if rec.Status != history.StatusCompleted {
				return errors.Errorf("expected completed, got %s (output: %v)", rec.Status, rec.CapturedOutput)
			}
			if d.Count() != 1 {
				return errors.Errorf("expected one dialog, got %d", d.Count())
			}
			if !containsLine(rec.CapturedOutput, "answer: 42") {
				return errors.New("worker did not see the prompt answer")
			}

			st, ok, err := progress.NewStore(h.ProgressFile).Read()
			if err != nil {
				return err
			}
			if !ok || st.Status != progress.StatusCompleted || st.Percent != 100 {
				return errors.Errorf("unexpected progress: ok=%v status=%s percent=%d", ok, st.Status, st.Percent)
			}

			if wrap {
				info, err := history.ReadExitInfo(h.ExitInfoFile)
				if err != nil {
					return err
				}
				if info.ExitCode == nil || *info.ExitCode != 0 {
					return errors.New("wrapper recorded a non-zero exit")
				}
			}

			out := map[string]any{"ok": true, "run": rec.ID, "log_file": rec.LogFile, "wrapped": wrap}
			b, _ := json.MarshalIndent(out, "", "  ")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			log.Info().Msg("smoketest ok")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Overall timeout for the smoke test (includes building the fake worker)")
	cmd.Flags().BoolVar(&wrap, "wrap", false, "Run the worker under this binary's __wrap-run")

	cmd.AddCommand(
		newFailuresCmd(),
		newStopCmd(),
	)
	return cmd
}
