package deps

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

type Package struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required" yaml:"required"`
}

var DefaultPackages = []Package{
	{Name: "pyautogui", Description: "mouse and keyboard automation", Required: true},
	{Name: "pyperclip", Description: "clipboard copy and paste", Required: true},
	{Name: "pygetwindow", Description: "window lookup and focus", Required: false},
}

// pipNames maps import names to the pip distribution that provides them
// when the two differ.
var pipNames = map[string]string{
	"PIL":      "pillow",
	"cv2":      "opencv-python",
	"yaml":     "PyYAML",
	"bs4":      "beautifulsoup4",
	"dateutil": "python-dateutil",
	"win32api": "pywin32",
	"win32con": "pywin32",
	"win32gui": "pywin32",
	"Xlib":     "python-xlib",
	"sklearn":  "scikit-learn",
}

// PipName returns the pip package to install for an import name.
func PipName(module string) string {
	if p, ok := pipNames[module]; ok {
		return p
	}
	return module
}

// Lookup returns the known package for a module or pip name, or a required
// package named after its pip distribution when it is not in the list.
func Lookup(pkgs []Package, name string) Package {
	pip := PipName(name)
	for _, p := range pkgs {
		if p.Name == name || strings.EqualFold(p.Name, pip) {
			return p
		}
	}
	return Package{Name: pip, Required: true}
}

// PackagesFor resolves module names to packages, one per pip distribution.
func PackagesFor(pkgs []Package, modules []string) []Package {
	seen := map[string]bool{}
	var out []Package
	for _, m := range modules {
		p := Lookup(pkgs, m)
		if seen[strings.ToLower(p.Name)] {
			continue
		}
		seen[strings.ToLower(p.Name)] = true
		out = append(out, p)
	}
	return out
}

type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner runs an external command. A non-zero exit is reported in the
// result, not as an error; err is for failures to start.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) (CommandResult, error)

func ExecRunner(ctx context.Context, dir, name string, args ...string) (CommandResult, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			res.ExitCode = ee.ExitCode()
			return res, nil
		}
		return res, errors.Wrapf(err, "run %s", name)
	}
	return res, nil
}
