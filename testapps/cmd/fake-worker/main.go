package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/progress"
)

// fake-worker stands in for an automation script: it reports progress, can
// ask the host a question and fails in the ways real scripts do.
func main() {
	var steps int
	var delay time.Duration
	var prompt string
	var confirm string
	var fail string
	var code int
	var spew int
	flag.IntVar(&steps, "steps", 4, "Number of progress steps")
	flag.DurationVar(&delay, "delay", 50*time.Millisecond, "Delay between steps")
	flag.StringVar(&prompt, "prompt", "", "Ask for a value before the first step")
	flag.StringVar(&confirm, "confirm", "", "Ask for confirmation before the first step")
	flag.StringVar(&fail, "fail", "", "Failure mode: exit, failsafe, missing-module, signal, hang")
	flag.IntVar(&code, "code", 2, "Exit code for --fail=exit")
	flag.IntVar(&spew, "spew", 0, "Extra output lines per step")
	flag.Parse()

	ctx := context.Background()
	client := bridge.NewClientFromEnv()

	var rep *progress.Reporter
	if path := progress.PathFromEnv(""); path != "" {
		rep = progress.NewReporter(progress.NewStore(path))
	}
	report := func(fn func(*progress.Reporter) error) {
		if rep == nil {
			return
		}
		if err := fn(rep); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "progress: %v\n", err)
		}
	}

	report(func(r *progress.Reporter) error { return r.Start(steps) })
	_, _ = fmt.Fprintf(os.Stdout, "[AutoMDF][INFO][%s] fake-worker starting (steps=%d)\n", time.Now().Format("15:04:05"), steps)

	if prompt != "" {
		v, ok, err := client.Prompt(ctx, prompt, bridge.PromptOptions{RequireInput: true, AllowCancel: true})
		if err != nil {
			exitf(1, "prompt: %v", err)
		}
		if !ok {
			_, _ = fmt.Fprintln(os.Stdout, "prompt cancelled")
			report(func(r *progress.Reporter) error { return r.Fail("cancelled by operator") })
			os.Exit(1)
		}
		_, _ = fmt.Fprintf(os.Stdout, "answer: %s\n", v)
	}
	if confirm != "" {
		choice, err := client.Confirm(ctx, confirm, "", []string{"Continuar", "Cancel"})
		if err != nil {
			exitf(1, "confirm: %v", err)
		}
		_, _ = fmt.Fprintf(os.Stdout, "choice: %s\n", choice)
	}

	sched, _ := progress.NewSchedule(nil)
	pct := 0
	for i := 1; i <= steps; i++ {
		if next, ok := sched.Next(pct); ok && i < steps {
			pct = next
		}
		msg := fmt.Sprintf("Etapa %d de %d", i, steps)
		report(func(r *progress.Reporter) error { return r.Checkpoint(pct, msg) })
		_, _ = fmt.Fprintln(os.Stdout, msg)
		for j := 0; j < spew; j++ {
			_, _ = fmt.Fprintf(os.Stdout, "step %d line %d\n", i, j)
		}
		time.Sleep(delay)
	}

	switch fail {
	case "":
	case "exit":
		report(func(r *progress.Reporter) error { return r.Fail("fake failure") })
		exitf(code, "fake-worker: exiting with %d", code)
	case "failsafe":
		_ = client.Signal(bridge.SignalFailsafe, "mouse moved to a corner")
		exitf(1, "pyautogui.FailSafeException: PyAutoGUI fail-safe triggered from mouse moving to a corner of the screen.")
	case "missing-module":
		_, _ = fmt.Fprintln(os.Stderr, "Traceback (most recent call last):")
		exitf(1, "ModuleNotFoundError: No module named 'pyautogui'")
	case "signal":
		_ = client.Signal(bridge.SignalExtractionFailure, "CT-e não encontrado")
		exitf(1, "fake-worker: extraction failed")
	case "hang":
		_, _ = fmt.Fprintln(os.Stdout, "hanging")
		select {}
	default:
		exitf(2, "unknown --fail mode %q", fail)
	}

	report(func(r *progress.Reporter) error { return r.Complete("") })
	_, _ = fmt.Fprintln(os.Stdout, "fake-worker done")
}

func exitf(code int, format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
