//go:build linux

// Package x11 drives an X11 session through the xdotool and xset binaries.
package x11

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/auto-mdf/mdfctl/pkg/desktop"
	"github.com/pkg/errors"
)

func init() {
	desktop.NewProviderFunc = func() (*desktop.Provider, error) {
		if os.Getenv("DISPLAY") == "" {
			return nil, errors.Wrap(desktop.ErrUnsupported, "DISPLAY is not set")
		}
		if _, err := exec.LookPath("xdotool"); err != nil {
			return nil, errors.Wrap(err, "xdotool not found")
		}
		b := New()
		return &desktop.Provider{Windows: b, Keyboard: b, Clipboard: desktop.SystemClipboard{}}, nil
	}
}

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

type Backend struct {
	run Runner
}

func New() *Backend {
	return &Backend{run: execRunner}
}

func NewWithRunner(run Runner) *Backend {
	return &Backend{run: run}
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, errors.Wrapf(err, "%s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (b *Backend) ListWindows(ctx context.Context) ([]desktop.Window, error) {
	out, err := b.run(ctx, "xdotool", "search", "--onlyvisible", "--name", ".")
	if err != nil {
		// xdotool exits 1 when nothing matched
		if len(bytes.TrimSpace(out)) == 0 {
			return nil, nil
		}
		return nil, err
	}
	var ret []desktop.Window
	for _, id := range strings.Fields(string(out)) {
		title, err := b.windowName(ctx, id)
		if err != nil || title == "" {
			continue
		}
		ret = append(ret, desktop.Window{ID: id, Title: title})
	}
	return ret, nil
}

func (b *Backend) ActiveWindow(ctx context.Context) (desktop.Window, error) {
	out, err := b.run(ctx, "xdotool", "getactivewindow")
	if err != nil {
		return desktop.Window{}, err
	}
	id := strings.TrimSpace(string(out))
	title, err := b.windowName(ctx, id)
	if err != nil {
		return desktop.Window{}, err
	}
	return desktop.Window{ID: id, Title: title}, nil
}

func (b *Backend) Activate(ctx context.Context, w desktop.Window) error {
	if w.ID == "" {
		return errors.New("missing window id")
	}
	_, err := b.run(ctx, "xdotool", "windowactivate", "--sync", w.ID)
	return err
}

func (b *Backend) KeyCombo(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return errors.New("empty key combo")
	}
	mapped := make([]string, 0, len(keys))
	for _, k := range keys {
		mapped = append(mapped, keysym(k))
	}
	_, err := b.run(ctx, "xdotool", "key", "--clearmodifiers", strings.Join(mapped, "+"))
	return err
}

var capsRe = regexp.MustCompile(`Caps Lock:\s+(on|off)`)

func (b *Backend) CapsLockOn(ctx context.Context) (bool, error) {
	out, err := b.run(ctx, "xset", "q")
	if err != nil {
		return false, err
	}
	m := capsRe.FindSubmatch(out)
	if m == nil {
		return false, errors.New("caps lock state not found in xset output")
	}
	return string(m[1]) == "on", nil
}

func (b *Backend) ToggleCapsLock(ctx context.Context) error {
	_, err := b.run(ctx, "xdotool", "key", "Caps_Lock")
	return err
}

func (b *Backend) windowName(ctx context.Context, id string) (string, error) {
	out, err := b.run(ctx, "xdotool", "getwindowname", id)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func keysym(k string) string {
	switch strings.ToLower(k) {
	case "win", "super", "cmd":
		return "super"
	case "ctrl", "control":
		return "ctrl"
	case "alt":
		return "alt"
	case "shift":
		return "shift"
	case "enter", "return":
		return "Return"
	case "tab":
		return "Tab"
	case "esc", "escape":
		return "Escape"
	case "capslock":
		return "Caps_Lock"
	default:
		return k
	}
}
