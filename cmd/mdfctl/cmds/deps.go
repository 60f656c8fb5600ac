package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/auto-mdf/mdfctl/pkg/deps"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Find, check and install the Python packages workers need",
	}
	cmd.AddCommand(newDepsScanCmd(), newDepsInstallCmd(), newDepsCheckCmd())
	return cmd
}

func newDepsScanCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "scan [run-id]",
		Short: "List modules an import failure complains about (last failed run, a run, a file or - for stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}

			var output string
			switch {
			case file == "-":
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "read stdin")
				}
				output = string(b)
			case file != "":
				b, err := os.ReadFile(file)
				if err != nil {
					return errors.Wrap(err, "read output file")
				}
				output = string(b)
			default:
				rec, err := scanTarget(opts, args)
				if err != nil {
					return err
				}
				output = strings.Join(rec.CapturedOutput, "\n")
			}

			mods := deps.Sorted(deps.Scan(output))
			if len(mods) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no missing modules found")
				return nil
			}
			for _, m := range mods {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Scan this file instead of a run's captured output (- for stdin)")
	return cmd
}

// scanTarget picks the named run, or the most recent run that ended in error.
func scanTarget(opts rootOptions, args []string) (*history.Record, error) {
	store := opts.historyStore()
	if len(args) == 1 {
		return store.Get(args[0])
	}
	recs, err := store.List(history.ListOptions{})
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].Status == history.StatusError {
			return &recs[i], nil
		}
	}
	return nil, errors.New("no failed run in history")
}

func newDepsInstallCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "install [package...]",
		Short: "pip install packages (defaults to the missing ones, --all for every known package)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			checker := deps.NewChecker(opts.Python, opts.RepoRoot, deps.DefaultPackages)

			var pkgs []deps.Package
			switch {
			case len(args) > 0:
				pkgs = deps.PackagesFor(deps.DefaultPackages, args)
			case all:
				pkgs = deps.DefaultPackages
			default:
				rep, err := checker.Check(cmd.Context(), true)
				if err != nil {
					return err
				}
				pkgs = deps.PackagesFor(deps.DefaultPackages, append(rep.MissingRequired, rep.MissingOptional...))
			}

			inst := deps.NewInstaller(opts.Python, opts.RepoRoot)
			inst.Checker = checker
			res := inst.Install(cmd.Context(), pkgs)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if res.Details != "" {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), res.Details)
			}
			if !res.OK {
				return errors.New("installation failed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Install every known package, not only the missing ones")
	return cmd
}

func newDepsCheckCmd() *cobra.Command {
	var optional bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report which known packages the interpreter cannot import",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			rep, err := deps.NewChecker(opts.Python, opts.RepoRoot, deps.DefaultPackages).Check(cmd.Context(), optional)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, rep); err != nil {
				return err
			}
			if !rep.OK() {
				return errors.Errorf("missing required packages: %s", strings.Join(rep.MissingRequired, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&optional, "optional", true, "Also check optional packages")
	return cmd
}
