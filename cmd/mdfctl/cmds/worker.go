package cmds

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/desktop"
	"github.com/auto-mdf/mdfctl/pkg/extract"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/progress"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// errDialogCancelled exits 1 without printing a value, so shell workers can
// branch on `if value=$(mdfctl worker dialog prompt ...)`.
var errDialogCancelled = exitCodeError{code: 1}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Helpers for automation scripts running under mdfctl",
		Long: "Helpers for automation scripts running under mdfctl. Values meant for the " +
			"script (answers, extracted codes) go to stdout; bridge frames go to stderr, " +
			"which the host reads on the same pipe.",
	}
	cmd.AddCommand(newWorkerReportCmd())
	cmd.AddCommand(newWorkerDialogCmd())
	cmd.AddCommand(newWorkerSignalCmd())
	cmd.AddCommand(newWorkerExtractCmd())
	return cmd
}

// workerClient writes frames to stderr so stdout stays free for results.
func workerClient() *bridge.Client {
	c := bridge.NewClient(bridge.ProtocolFromEnv(), bridge.ActiveFromEnv(), os.Stdin, os.Stderr)
	c.Fallback = bridge.NewTerminalDialoger()
	return c
}

func newWorkerReportCmd() *cobra.Command {
	var file string

	open := func(cmd *cobra.Command) (*progress.Reporter, error) {
		path := file
		if path == "" {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return nil, err
			}
			path = progress.PathFromEnv(history.ProgressPath(opts.RepoRoot, "manual"))
		}
		return progress.OpenReporter(progress.NewStore(path))
	}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Update the run's progress file",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "Progress file (defaults to MDF_PROGRESS_FILE)")

	var total int
	start := &cobra.Command{
		Use:   "start",
		Short: "Reset progress and mark the run as started",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open(cmd)
			if err != nil {
				return err
			}
			return r.Start(total)
		},
	}
	start.Flags().IntVar(&total, "total", 0, "Total number of steps")

	var step int
	report := &cobra.Command{
		Use:   "progress <percent> <message>",
		Short: "Set percent and message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := parsePercent(args[0])
			if err != nil {
				return err
			}
			r, err := open(cmd)
			if err != nil {
				return err
			}
			return r.Report(pct, args[1], step)
		},
	}
	report.Flags().IntVar(&step, "step", 0, "Current step (0 keeps the previous one)")

	var snap bool
	checkpoint := &cobra.Command{
		Use:   "checkpoint <percent> <message>",
		Short: "Report one of the shared checkpoints and log the message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pct, err := parsePercent(args[0])
			if err != nil {
				return err
			}
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			sched, err := progress.NewSchedule(opts.File.Progress.Checkpoints)
			if err != nil {
				return err
			}
			if !sched.Valid(pct) {
				if !snap {
					return errors.Errorf("%d is not a checkpoint (%s); pass --snap to round down", pct, joinInts(sched.Points()))
				}
				pct = sched.Snap(pct)
			}
			r, err := open(cmd)
			if err != nil {
				return err
			}
			return r.Checkpoint(pct, args[1])
		},
	}
	checkpoint.Flags().BoolVar(&snap, "snap", false, "Round an unknown percent down to the nearest checkpoint")

	message := func(use, short string, fn func(*progress.Reporter, string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <message>",
			Short: short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := open(cmd)
				if err != nil {
					return err
				}
				return fn(r, strings.Join(args, " "))
			},
		}
	}
	status := func(use, short string, fn func(*progress.Reporter) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				r, err := open(cmd)
				if err != nil {
					return err
				}
				return fn(r)
			},
		}
	}

	complete := &cobra.Command{
		Use:   "complete [message]",
		Short: "Mark the run as completed",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open(cmd)
			if err != nil {
				return err
			}
			return r.Complete(strings.Join(args, " "))
		},
	}

	cmd.AddCommand(
		start,
		report,
		checkpoint,
		message("log", "Add an info message", (*progress.Reporter).Log),
		message("warn", "Add a warning message", (*progress.Reporter).Warn),
		message("error", "Record an error without ending the run", (*progress.Reporter).Error),
		message("fail", "Mark the run as failed", (*progress.Reporter).Fail),
		status("pause", "Mark the run as paused", (*progress.Reporter).Pause),
		status("resume", "Mark the run as running again", (*progress.Reporter).Resume),
		complete,
	)
	return cmd
}

func parsePercent(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if err != nil {
		return 0, errors.Errorf("invalid percent %q", raw)
	}
	return v, nil
}

func joinInts(in []int) string {
	parts := make([]string, 0, len(in))
	for _, v := range in {
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, ",")
}

func newWorkerDialogCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "dialog",
		Short: "Ask the operator through the host, or the terminal without one",
	}
	cmd.PersistentFlags().StringVar(&title, "title", "", "Dialog title")

	var button string
	alert := &cobra.Command{
		Use:   "alert <text>",
		Short: "Show a message and wait for acknowledgement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := workerClient().Alert(cmd.Context(), args[0], title, button)
			return err
		},
	}
	alert.Flags().StringVar(&button, "button", "OK", "Button label")

	var buttons []string
	confirm := &cobra.Command{
		Use:   "confirm <text>",
		Short: "Ask the operator to pick a button; prints the choice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			choice, err := workerClient().Confirm(cmd.Context(), args[0], title, buttons)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), choice)
			return nil
		},
	}
	confirm.Flags().StringSliceVar(&buttons, "buttons", []string{"OK", "Cancel"}, "Button labels")

	var po bridge.PromptOptions
	prompt := &cobra.Command{
		Use:   "prompt <text>",
		Short: "Ask for a value; prints it, or exits 1 when cancelled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			po.Title = title
			v, ok, err := workerClient().Prompt(cmd.Context(), args[0], po)
			if err != nil {
				return err
			}
			if !ok {
				if po.CancelMessage != "" {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), po.CancelMessage)
				}
				return errDialogCancelled
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	prompt.Flags().StringVar(&po.Default, "default", "", "Prefilled value")
	prompt.Flags().BoolVar(&po.RequireInput, "require", false, "Refuse an empty answer")
	prompt.Flags().BoolVar(&po.AllowCancel, "allow-cancel", false, "Allow cancelling a required prompt")
	prompt.Flags().StringVar(&po.CancelMessage, "cancel-message", "", "Message printed when the prompt is cancelled")

	cmd.AddCommand(alert, confirm, prompt)
	return cmd
}

func newWorkerSignalCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "signal <kind> [detail...]",
		Short:     "Report a typed failure to the host",
		Long:      "Report a typed failure to the host. Kinds: dependency_missing, focus_failure, failsafe, extraction_failure.",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{string(bridge.SignalDependencyMissing), string(bridge.SignalFocusFailure), string(bridge.SignalFailsafe), string(bridge.SignalExtractionFailure)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := bridge.SignalKind(args[0])
			if !kind.Valid() {
				return errors.Errorf("unknown signal kind %q", args[0])
			}
			c := workerClient()
			if !c.Active {
				log.Warn().Str("kind", args[0]).Msg("no host attached, signal dropped")
			}
			return c.Signal(kind, strings.Join(args[1:], " "))
		},
	}
}

var extractFinders = map[string]extract.Finder{
	"cte":       extract.FindCTe,
	"averbacao": extract.FindAverbacao,
	"chave":     extract.FindAccessKey,
}

func newWorkerExtractCmd() *cobra.Command {
	var attempts int
	var delay time.Duration
	var copyPage bool
	var publish bool
	var signal bool

	cmd := &cobra.Command{
		Use:       "extract <cte|averbacao|chave>",
		Short:     "Read a code from the copied page text; prints it",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"cte", "averbacao", "chave"},
		RunE: func(cmd *cobra.Command, args []string) error {
			find, ok := extractFinders[args[0]]
			if !ok {
				return errors.Errorf("unknown code %q", args[0])
			}
			p, err := desktop.NewProvider()
			if err != nil {
				return err
			}
			ex := extract.New(p.Clipboard)
			ex.Attempts = attempts
			ex.Delay = delay
			ex.Publish = publish
			if copyPage && p.Keyboard != nil {
				kb := p.Keyboard
				ex.Copy = func(ctx context.Context) error {
					if err := kb.KeyCombo(ctx, "ctrl", "a"); err != nil {
						return err
					}
					return kb.KeyCombo(ctx, "ctrl", "c")
				}
			}

			v, err := ex.Extract(cmd.Context(), args[0], find)
			if err != nil {
				if signal && errors.Is(err, extract.ErrExtractionFailed) {
					if serr := workerClient().Signal(bridge.SignalExtractionFailure, err.Error()); serr != nil {
						log.Warn().Err(serr).Msg("send extraction failure signal")
					}
				}
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", extract.DefaultAttempts, "Clipboard reads before giving up")
	cmd.Flags().DurationVar(&delay, "delay", extract.DefaultDelay, "Pause between attempts")
	cmd.Flags().BoolVar(&copyPage, "copy", true, "Press ctrl+a, ctrl+c before each read")
	cmd.Flags().BoolVar(&publish, "publish", false, "Put the extracted value back on the clipboard")
	cmd.Flags().BoolVar(&signal, "signal", true, "Send an extraction_failure bridge signal on failure")
	return cmd
}
