package cmds

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/events"
	"github.com/auto-mdf/mdfctl/pkg/progress"
	"github.com/auto-mdf/mdfctl/pkg/runner"
	"github.com/auto-mdf/mdfctl/pkg/tui"
)

// registerConsole prints run events for --no-tui. The returned channel is
// closed once run.finished has been printed.
func registerConsole(bus *events.Bus, out io.Writer) <-chan struct{} {
	finished := make(chan struct{})
	var once sync.Once
	lastPercent := -1

	bus.AddHandler("mdf-console", events.TopicRunEvents, func(msg *message.Message) error {
		defer msg.Ack()

		env, err := events.DecodeEnvelope(msg.Payload)
		if err != nil {
			return nil
		}
		switch env.Type {
		case events.TypeRunStarted:
			var v runner.StartedEvent
			if env.Decode(&v) == nil {
				_, _ = fmt.Fprintf(out, "▶ %s (pid %d)\n  log: %s\n", v.ScriptName, v.PID, v.LogFile)
			}
		case events.TypeRunLine:
			var v runner.LineEvent
			if env.Decode(&v) == nil {
				_, _ = fmt.Fprintln(out, v.Entry.Display())
			}
		case events.TypeProgressChanged:
			var v progress.Changed
			if env.Decode(&v) == nil && v.State.Percent != lastPercent {
				lastPercent = v.State.Percent
				_, _ = fmt.Fprintf(out, "[%3d%%] %s\n", v.State.Percent, v.State.Message)
			}
		case events.TypeRunSignal:
			var v bridge.SignalEvent
			if env.Decode(&v) == nil {
				_, _ = fmt.Fprintf(out, "⚡ %s %s\n", v.Kind, v.Detail)
			}
		case events.TypeRunFinished:
			var v runner.FinishedEvent
			if env.Decode(&v) == nil {
				_, _ = fmt.Fprintln(out, finishedSummary(v))
			}
			once.Do(func() { close(finished) })
		}
		return nil
	})
	return finished
}

func finishedSummary(v runner.FinishedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "■ %s: %s", v.ScriptName, v.Status)
	if v.ExitCode != nil {
		fmt.Fprintf(&b, " (exit %d)", *v.ExitCode)
	}
	if v.FailureKind != "" {
		fmt.Fprintf(&b, " [%s]", v.FailureKind)
	}
	fmt.Fprintf(&b, " em %.1fs", v.DurationSeconds)
	if len(v.MissingModules) > 0 {
		fmt.Fprintf(&b, "\n  módulos ausentes: %s (mdfctl deps install %s)", strings.Join(v.MissingModules, ", "), strings.Join(v.MissingModules, " "))
	}
	return b.String()
}

// offerInstall asks the operator whether to install the modules a run was
// missing and prints the installer's result. It reports whether the
// installer ran and succeeded.
func offerInstall(ctx context.Context, d bridge.Dialoger, install tui.InstallFunc, modules []string, out io.Writer) (bool, error) {
	if len(modules) == 0 || install == nil || d == nil {
		return false, nil
	}
	resp, err := d.Request(ctx, tui.InstallOfferFrame(modules))
	if err != nil {
		return false, err
	}
	if !tui.Accepted(resp) {
		_, _ = fmt.Fprintf(out, "instalação ignorada (mdfctl deps install %s)\n", strings.Join(modules, " "))
		return false, nil
	}
	res := install(ctx, modules)
	_, _ = fmt.Fprintln(out, res.Message)
	if res.Details != "" {
		_, _ = fmt.Fprintln(out, res.Details)
	}
	return res.OK, nil
}
