package cmds

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/auto-mdf/mdfctl/pkg/config"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const defaultRulesDir = ".mdfctl/rules"

// envRepoRoot is exported to workers so `mdfctl worker …` finds the same
// config as the host.
const envRepoRoot = "MDF_REPO_ROOT"

type rootOptions struct {
	RepoRoot string
	Config   string
	Python   string
	LogsDir  string

	File *config.File
}

func AddRootFlags(root *cobra.Command) {
	root.PersistentFlags().String("repo-root", "", "Repository root holding scripts and .mdfctl/ (defaults to current directory)")
	root.PersistentFlags().String("config", "", "Path to config file (defaults to .mdfctl.yaml under repo-root)")
	root.PersistentFlags().String("python", "", "Python interpreter for .py workers (defaults to MDF_PYTHON or python3)")
	root.PersistentFlags().String("logs-dir", "", "Directory for run logs (defaults to logs/ under repo-root)")
}

func getRootOptions(cmd *cobra.Command) (rootOptions, error) {
	pf := cmd.Root().PersistentFlags()

	repoRoot, err := pf.GetString("repo-root")
	if err != nil {
		return rootOptions{}, err
	}
	if repoRoot == "" {
		repoRoot = os.Getenv(envRepoRoot)
	}
	if repoRoot == "" {
		repoRoot, err = os.Getwd()
		if err != nil {
			return rootOptions{}, err
		}
	}
	repoRoot, err = filepath.Abs(repoRoot)
	if err != nil {
		return rootOptions{}, err
	}

	cfgPath, err := pf.GetString("config")
	if err != nil {
		return rootOptions{}, err
	}
	if cfgPath == "" {
		cfgPath = config.DefaultPath(repoRoot)
	} else {
		cfgPath = config.ResolvePath(repoRoot, cfgPath)
	}
	file, err := config.LoadOptional(cfgPath)
	if err != nil {
		return rootOptions{}, err
	}

	python, err := pf.GetString("python")
	if err != nil {
		return rootOptions{}, err
	}
	if python == "" {
		python = file.PythonOrDefault()
	}

	logsDir, err := pf.GetString("logs-dir")
	if err != nil {
		return rootOptions{}, err
	}
	if logsDir == "" {
		logsDir = file.LogsDir
	}
	if logsDir == "" {
		logsDir = history.LogsDir(repoRoot)
	} else {
		logsDir = config.ResolvePath(repoRoot, logsDir)
	}

	return rootOptions{
		RepoRoot: repoRoot,
		Config:   cfgPath,
		Python:   python,
		LogsDir:  logsDir,
		File:     file,
	}, nil
}

func (o rootOptions) rulesDir() string {
	if o.File.RulesDir != "" {
		return config.ResolvePath(o.RepoRoot, o.File.RulesDir)
	}
	return filepath.Join(o.RepoRoot, defaultRulesDir)
}

func (o rootOptions) historyStore() *history.Store {
	return history.NewStore(history.HistoryPath(o.RepoRoot))
}

// resolveScript accepts a path relative to the cwd, the repo root or the
// configured scripts dir, in that order.
func (o rootOptions) resolveScript(arg string) string {
	if filepath.IsAbs(arg) {
		return arg
	}
	candidates := []string{arg, filepath.Join(o.RepoRoot, arg)}
	if o.File.ScriptsDir != "" {
		candidates = append(candidates, filepath.Join(config.ResolvePath(o.RepoRoot, o.File.ScriptsDir), arg))
	}
	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && !fi.IsDir() {
			return c
		}
	}
	return arg
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal json")
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
