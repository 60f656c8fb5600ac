package deps

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

type InstallResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Installer shells out to pip through the configured interpreter.
type Installer struct {
	Python string
	Dir    string
	Run    CommandRunner

	// Checker, when set, has its cache cleared after an install.
	Checker *Checker
}

func NewInstaller(python, dir string) *Installer {
	return &Installer{Python: python, Dir: dir, Run: ExecRunner}
}

// Install upgrades pip tooling, then installs each package on its own so one
// failure does not hide the others. Only required failures make OK false.
func (i *Installer) Install(ctx context.Context, pkgs []Package) InstallResult {
	if len(pkgs) == 0 {
		return InstallResult{OK: true, Message: "nothing to install"}
	}
	run := i.Run
	if run == nil {
		run = ExecRunner
	}

	var logs []string
	appendChunk := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			logs = append(logs, s)
		}
	}

	res, err := run(ctx, i.Dir, i.Python, "-m", "pip", "install", "--upgrade", "pip", "setuptools", "wheel")
	if err != nil {
		appendChunk("pip upgrade failed: " + err.Error())
	} else {
		appendChunk(res.Stdout)
		appendChunk(res.Stderr)
	}

	var requiredFailures, optionalFailures []string
	for _, p := range pkgs {
		log.Info().Str("package", p.Name).Msg("installing")
		res, err := run(ctx, i.Dir, i.Python, "-m", "pip", "install", "--upgrade", p.Name)
		reason := ""
		switch {
		case err != nil:
			reason = err.Error()
		case res.ExitCode != 0:
			reason = strings.TrimSpace(res.Stderr)
			if reason == "" {
				reason = "no error output"
			}
		}
		if err == nil {
			appendChunk(res.Stdout)
			appendChunk(res.Stderr)
		}
		if reason == "" {
			continue
		}
		line := p.Name + ": " + reason
		if p.Required {
			requiredFailures = append(requiredFailures, line)
		} else {
			optionalFailures = append(optionalFailures, line)
		}
	}

	if i.Checker != nil {
		i.Checker.ClearCache()
	}

	combined := strings.Join(logs, "\n")
	details := func(lines []string) string {
		if combined != "" {
			lines = append(lines, combined)
		}
		return strings.TrimSpace(strings.Join(lines, "\n"))
	}

	switch {
	case len(requiredFailures) > 0:
		return InstallResult{
			OK:      false,
			Message: "could not install all required packages",
			Details: details(append(requiredFailures, optionalFailures...)),
		}
	case len(optionalFailures) > 0:
		return InstallResult{
			OK:      true,
			Message: "required packages installed; some optional packages failed",
			Details: details(optionalFailures),
		}
	default:
		return InstallResult{OK: true, Message: "dependencies installed"}
	}
}
