package desktop

import (
	"context"
	"fmt"
	"runtime"
)

type Window struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// WindowManager lists and activates top-level windows.
type WindowManager interface {
	ListWindows(ctx context.Context) ([]Window, error)
	ActiveWindow(ctx context.Context) (Window, error)
	Activate(ctx context.Context, w Window) error
}

// Keyboard simulates key presses and reads lock-key state.
type Keyboard interface {
	// KeyCombo presses keys together, e.g. KeyCombo(ctx, "ctrl", "3").
	KeyCombo(ctx context.Context, keys ...string) error
	CapsLockOn(ctx context.Context) (bool, error)
	ToggleCapsLock(ctx context.Context) error
}

type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// Provider bundles the backends for the current OS.
type Provider struct {
	Windows   WindowManager
	Keyboard  Keyboard
	Clipboard Clipboard
}

var ErrUnsupported = fmt.Errorf("desktop control is not supported on %s/%s; supported: linux (X11)", runtime.GOOS, runtime.GOARCH)

// NewProviderFunc is set by backend packages via init().
var NewProviderFunc func() (*Provider, error)

func NewProvider() (*Provider, error) {
	if NewProviderFunc == nil {
		return nil, ErrUnsupported
	}
	p, err := NewProviderFunc()
	if err != nil {
		return nil, err
	}
	if p.Clipboard == nil {
		p.Clipboard = SystemClipboard{}
	}
	return p, nil
}
