package cmds

import (
	"fmt"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/config"
	"github.com/auto-mdf/mdfctl/pkg/desktop"
	"github.com/auto-mdf/mdfctl/pkg/focus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// focusFailedMessage is matched by the builtin output rules as well.
const focusFailedMessage = "Não foi possível trazer o foco do navegador para a janela do MDF-e"

func newFocusCmd() *cobra.Command {
	var target targetFlags
	var fromEnv bool
	var signal bool
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "focus",
		Short: "Bring the MDF-e browser window to the foreground",
		Long: "Bring the MDF-e browser window to the foreground. Inside a worker, --from-env " +
			"reads the target the host passed and --signal reports a failure over the bridge.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			helper, err := newFocusHelper(opts)
			if err != nil {
				return err
			}

			t := target.resolve(cmd.Flags(), opts.File)
			if fromEnv {
				t = focus.TargetFromEnv()
			}

			ok := helper.Focus(cmd.Context(), t)
			if ok && wait > 0 {
				ok = helper.WaitUntilActive(cmd.Context(), t, wait, 0)
			}
			if !ok {
				if signal && bridge.ActiveFromEnv() {
					if err := workerClient().Signal(bridge.SignalFocusFailure, focusFailedMessage); err != nil {
						log.Warn().Err(err).Msg("send focus failure signal")
					}
				}
				return errors.New(focusFailedMessage)
			}
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "focused")
			return nil
		},
	}

	target.add(cmd.Flags())
	cmd.Flags().BoolVar(&fromEnv, "from-env", false, "Take the target from MDF_BROWSER_* variables")
	cmd.Flags().BoolVar(&signal, "signal", true, "Send a focus_failure bridge signal on failure when the bridge is active")
	cmd.Flags().DurationVar(&wait, "wait", 0, "After focusing, wait this long for the window to report active")
	return cmd
}

func newCapsOffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "caps-off",
		Short: "Turn caps lock off if it is on",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			helper, err := newFocusHelper(opts)
			if err != nil {
				return err
			}
			changed, err := helper.DisableCapsLock(cmd.Context())
			if err != nil {
				return err
			}
			if changed {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "caps lock turned off")
			}
			return nil
		},
	}
}

// newFocusHelper takes retry timing from the automation settings.
func newFocusHelper(opts rootOptions) (*focus.Helper, error) {
	p, err := desktop.NewProvider()
	if err != nil {
		return nil, err
	}
	settings, _, err := config.LoadSettings(config.SettingsCandidates(opts.RepoRoot))
	if err != nil {
		return nil, err
	}
	fo := focus.DefaultOptions()
	fo.Attempts = settings.FocusRetryAttempts
	fo.RetryDelay = settings.FocusRetryDelay()
	return focus.New(p.Windows, p.Keyboard, fo), nil
}
