package smoketest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/proc"
	"github.com/auto-mdf/mdfctl/pkg/runner"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Smoke test: a hung worker is stopped, recorded and the slot freed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			sb, err := newSandbox(ctx, "mdfctl-smoketest-stop-*")
			if err != nil {
				return err
			}
			defer sb.Close()

			r := sb.runner(&scriptedDialoger{answer: bridge.Response{Cancelled: true}}, "")
			h, err := r.Start(ctx, runner.Spec{Script: sb.worker, Name: "fake_worker", Args: []string{"--steps", "1", "--fail", "hang"}})
			if err != nil {
				return err
			}

			active, err := history.LoadActive(sb.root)
			if err != nil {
				return err
			}
			if active == nil || active.PID != h.PID {
				return errors.New("active run file does not point at the worker")
			}
			if _, err := r.Start(ctx, runner.Spec{Script: sb.worker}); !errors.Is(err, runner.ErrAlreadyRunning) {
				return errors.Errorf("expected second start to be refused, got %v", err)
			}

			time.Sleep(300 * time.Millisecond)
			if err := h.Stop(ctx); err != nil {
				return err
			}
			rec, err := h.Wait(ctx)
			if err != nil {
				return err
			}
			if rec.Status != history.StatusStopped {
				return errors.Errorf("expected stopped, got %s", rec.Status)
			}
			if proc.Alive(h.PID) {
				return errors.Errorf("worker %d still alive after stop", h.PID)
			}
			if r.IsRunning() {
				return errors.New("run slot not released")
			}

			out := map[string]any{"ok": true, "run": rec.ID}
			b, _ := json.MarshalIndent(out, "", "  ")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			log.Info().Msg("smoketest stop ok")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Overall timeout for the smoke test")
	return cmd
}
