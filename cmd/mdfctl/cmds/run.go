package cmds

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/config"
	"github.com/auto-mdf/mdfctl/pkg/deps"
	"github.com/auto-mdf/mdfctl/pkg/events"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/progress"
	"github.com/auto-mdf/mdfctl/pkg/rules"
	"github.com/auto-mdf/mdfctl/pkg/runner"
	"github.com/auto-mdf/mdfctl/pkg/tui"
	"github.com/auto-mdf/mdfctl/pkg/tui/models"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const consoleFlushTimeout = 2 * time.Second

func newRunCmd() *cobra.Command {
	var noTUI bool
	var altScreen bool
	var wrap bool
	var name string
	var target targetFlags

	cmd := &cobra.Command{
		Use:   "run <script> [-- args...]",
		Short: "Run an automation worker and relay its progress and dialogs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}

			settings, settingsPath, err := config.LoadSettings(config.SettingsCandidates(opts.RepoRoot))
			if err != nil {
				return err
			}
			log.Debug().Str("settings", settingsPath).Bool("default_timers", settings.UseDefaultTimers).Msg("automation settings")

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			bus, err := events.NewInMemoryBus()
			if err != nil {
				return err
			}
			if !opts.File.Telemetry.Disabled {
				events.RegisterTelemetrySink(bus, events.NewTelemetry(opts.LogsDir))
			}

			ruleSet, err := rules.LoadSet(ctx, opts.rulesDir(), rules.Options{})
			if err != nil {
				return err
			}

			env := map[string]string{envRepoRoot: opts.RepoRoot}
			for k, v := range opts.File.Env {
				env[k] = v
			}
			for k, v := range settings.Env() {
				env[k] = v
			}

			var dialoger bridge.Dialoger
			var busDialoger *bridge.BusDialoger
			var consoleDone <-chan struct{}
			if noTUI {
				dialoger = bridge.NewTerminalDialoger()
				consoleDone = registerConsole(bus, cmd.OutOrStdout())
			} else {
				busDialoger = bridge.NewBusDialoger(bus.Publisher)
				dialoger = busDialoger
			}

			wrapper := ""
			if wrap || opts.File.Runner.Wrap {
				if wrapper, err = os.Executable(); err != nil {
					return errors.Wrap(err, "resolve mdfctl executable")
				}
			}

			r := runner.New(runner.Options{
				RepoRoot:   opts.RepoRoot,
				LogsDir:    opts.LogsDir,
				Python:     opts.Python,
				StopGrace:  opts.File.Runner.StopGrace,
				WrapperExe: wrapper,
				Proto:      bridgeProtocol(opts.File),
				Dialoger:   dialoger,
				Pub:        bus.Publisher,
				History:    opts.historyStore(),
				Rules:      ruleSet,
				Env:        env,
			})

			installDeps := func(ctx context.Context, modules []string) deps.InstallResult {
				inst := deps.NewInstaller(opts.Python, opts.RepoRoot)
				inst.Checker = deps.NewChecker(opts.Python, opts.RepoRoot, deps.DefaultPackages)
				return inst.Install(ctx, deps.PackagesFor(deps.DefaultPackages, modules))
			}

			var program *tea.Program
			if !noTUI {
				program = tea.NewProgram(models.NewRootModel(tui.RootOptions{
					ScriptName:  name,
					Answer:      busDialoger.Answer,
					InstallDeps: installDeps,
					Stop: func() {
						// Stop blocks until run.finished is delivered to this program
						go func() {
							if h := r.Current(); h != nil {
								_ = h.Stop(context.Background())
							}
						}()
					},
				}), programOptions(cmd, altScreen)...)
				tui.RegisterUIForwarder(bus, program)
			}

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				err := bus.Run(egCtx)
				if stderrors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
			select {
			case <-bus.Running():
			case <-egCtx.Done():
				return eg.Wait()
			}

			h, err := r.Start(egCtx, runner.Spec{
				Script: opts.resolveScript(args[0]),
				Name:   name,
				Args:   args[1:],
				Target: target.resolve(cmd.Flags(), opts.File),
			})
			if err != nil {
				cancel()
				_ = eg.Wait()
				return err
			}

			watcher := &progress.Watcher{
				Store:    progress.NewStore(h.ProgressFile),
				Interval: opts.File.Progress.PollInterval,
				Notify:   opts.File.NotifyEnabled(),
				Pub:      bus.Publisher,
			}
			eg.Go(func() error {
				return watcher.Run(egCtx)
			})

			var rec history.Record
			eg.Go(func() error {
				select {
				case <-h.Done():
				case <-egCtx.Done():
				}
				waitCtx, waitCancel := context.WithTimeout(context.Background(), r.StopGrace()+10*time.Second)
				defer waitCancel()
				var err error
				rec, err = h.Wait(waitCtx)
				if err != nil {
					return errors.Wrap(err, "wait for run")
				}
				if noTUI {
					select {
					case <-consoleDone:
					case <-time.After(consoleFlushTimeout):
					}
					cancel()
				}
				return nil
			})
			if program != nil {
				eg.Go(func() error {
					_, err := program.Run()
					cancel()
					if stderrors.Is(err, context.Canceled) || stderrors.Is(err, tea.ErrProgramKilled) {
						return nil
					}
					return err
				})
			}

			if err := eg.Wait(); err != nil {
				return errors.Wrap(err, "run")
			}
			if program != nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), finishedSummary(runner.FinishedEventFor(rec)))
			} else if rec.FailureKind == history.KindDependencyMissing {
				if _, err := offerInstall(cmd.Context(), dialoger, installDeps, rec.MissingModules, cmd.OutOrStdout()); err != nil {
					log.Warn().Err(err).Msg("dependency install offer")
				}
			}
			if rec.Status != history.StatusCompleted {
				return errors.Errorf("%s finished with status %s", rec.ScriptName, rec.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Print progress to stdout and answer dialogs on the terminal")
	cmd.Flags().BoolVar(&altScreen, "alt-screen", true, "Use the terminal alternate screen buffer")
	cmd.Flags().BoolVar(&wrap, "wrap", false, "Run the worker under __wrap-run so an exit-info file is always written")
	cmd.Flags().StringVar(&name, "name", "", "Display name for the run (defaults to the script name)")
	target.add(cmd.Flags())
	return cmd
}

func programOptions(cmd *cobra.Command, altScreen bool) []tea.ProgramOption {
	out := []tea.ProgramOption{
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	}
	if altScreen {
		out = append(out, tea.WithAltScreen())
	}
	return out
}
