package cmds

import (
	"fmt"
	"strings"

	"github.com/auto-mdf/mdfctl/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change automation timing settings",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings and where they were read from",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			s, path, err := config.LoadSettings(config.SettingsCandidates(opts.RepoRoot))
			if err != nil {
				return err
			}
			b, err := yaml.Marshal(s)
			if err != nil {
				return errors.Wrap(err, "marshal settings")
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, b)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set key=value...",
		Short: "Change one or more settings and save them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			candidates := config.SettingsCandidates(opts.RepoRoot)
			s, _, err := config.LoadSettings(candidates)
			if err != nil {
				return err
			}
			for _, a := range args {
				k, v, ok := strings.Cut(a, "=")
				if !ok {
					return errors.Errorf("expected key=value, got %q (keys: %s)", a, strings.Join(config.SettingsKeys(), ", "))
				}
				if err := s.Set(strings.TrimSpace(k), strings.TrimSpace(v)); err != nil {
					return err
				}
			}
			path, err := config.SaveSettings(candidates, s)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			path, err := config.SaveSettings(config.SettingsCandidates(opts.RepoRoot), config.DefaultSettings())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}
