package smoketest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/runner"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type failureCase struct {
	name     string
	args     []string
	status   history.Status
	kind     history.FailureKind
	exitCode int
}

var failureCases = []failureCase{
	{name: "exit", args: []string{"--fail", "exit", "--code", "3"}, status: history.StatusError, exitCode: 3},
	{name: "failsafe", args: []string{"--fail", "failsafe"}, status: history.StatusFailsafe, kind: history.KindFailsafe, exitCode: 1},
	{name: "missing-module", args: []string{"--fail", "missing-module"}, status: history.StatusError, kind: history.KindDependencyMissing, exitCode: 1},
	{name: "signal", args: []string{"--fail", "signal"}, status: history.StatusError, kind: history.KindExtractionFailure, exitCode: 1},
}

func newFailuresCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Smoke test: exit code, failsafe, missing module and signal classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			sb, err := newSandbox(ctx, "mdfctl-smoketest-failures-*")
			if err != nil {
				return err
			}
			defer sb.Close()

			r := sb.runner(&scriptedDialoger{answer: bridge.Response{Cancelled: true}}, "")
			for _, c := range failureCases {
				if err := runFailureCase(ctx, sb, r, c); err != nil {
					return errors.Wrap(err, c.name)
				}
				log.Info().Str("case", c.name).Msg("failure case ok")
			}

			out := map[string]any{"ok": true, "cases": len(failureCases)}
			b, _ := json.MarshalIndent(out, "", "  ")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			log.Info().Msg("smoketest failures ok")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "Overall timeout for the smoke test")
	return cmd
}

func runFailureCase(ctx context.Context, sb *sandbox, r *runner.Runner, c failureCase) error {
	_, rec, err := sb.run(ctx, r, append([]string{"--steps", "2", "--delay", "10ms"}, c.args...)...)
	if err != nil {
		return err
	}
	if rec.Status != c.status {
		return errors.Errorf("expected status %s, got %s", c.status, rec.Status)
	}
	if rec.FailureKind != c.kind {
		return errors.Errorf("expected failure kind %q, got %q", c.kind, rec.FailureKind)
	}
	if rec.ExitCode == nil || *rec.ExitCode != c.exitCode {
		return errors.Errorf("expected exit code %d, got %v", c.exitCode, rec.ExitCode)
	}
	if c.kind == history.KindDependencyMissing && !containsLine(rec.MissingModules, "pyautogui") {
		return errors.Errorf("expected pyautogui in missing modules, got %v", rec.MissingModules)
	}
	return nil
}
