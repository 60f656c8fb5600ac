package tui

import (
	"context"
	"strings"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/deps"
)

// InstallDialogID marks the install offer, which the host answers itself
// instead of forwarding to a worker.
const InstallDialogID = "deps-install"

const (
	InstallAccept  = "Instalar"
	InstallDecline = "Agora não"
)

// InstallFunc installs the pip packages behind the given module names.
type InstallFunc func(ctx context.Context, modules []string) deps.InstallResult

// InstallOfferFrame asks whether to install the modules a run was missing.
func InstallOfferFrame(modules []string) bridge.Frame {
	return bridge.Frame{
		Type:    bridge.KindConfirm,
		Title:   "Dependências ausentes",
		Text:    "Instalar módulos ausentes? (" + strings.Join(modules, ", ") + ")",
		Buttons: []string{InstallAccept, InstallDecline},
	}
}

// Accepted reports whether resp picked the install button.
func Accepted(resp bridge.Response) bool {
	return !resp.Cancelled && strings.TrimSpace(resp.Value) == InstallAccept
}
