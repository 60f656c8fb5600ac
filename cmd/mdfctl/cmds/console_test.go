package cmds

import (
	"bytes"
	"context"
	"testing"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/deps"
	"github.com/auto-mdf/mdfctl/pkg/tui"
	"github.com/stretchr/testify/require"
)

type choiceDialoger struct {
	resp   bridge.Response
	frames []bridge.Frame
}

func (d *choiceDialoger) Request(_ context.Context, f bridge.Frame) (bridge.Response, error) {
	d.frames = append(d.frames, f)
	return d.resp, nil
}

func TestOfferInstall_AcceptRunsInstaller(t *testing.T) {
	d := &choiceDialoger{resp: bridge.Response{Value: tui.InstallAccept}}
	var got []string
	install := func(_ context.Context, modules []string) deps.InstallResult {
		got = modules
		return deps.InstallResult{OK: true, Message: "dependências instaladas", Details: "Successfully installed pyautogui"}
	}

	var out bytes.Buffer
	ok, err := offerInstall(context.Background(), d, install, []string{"pyautogui"}, &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"pyautogui"}, got)

	require.Len(t, d.frames, 1)
	require.Equal(t, bridge.KindConfirm, d.frames[0].Type)
	require.Contains(t, d.frames[0].Text, "Instalar módulos ausentes?")
	require.Contains(t, out.String(), "dependências instaladas")
	require.Contains(t, out.String(), "Successfully installed pyautogui")
}

func TestOfferInstall_DeclineSkipsInstaller(t *testing.T) {
	calls := 0
	install := func(context.Context, []string) deps.InstallResult {
		calls++
		return deps.InstallResult{OK: true}
	}

	var out bytes.Buffer
	ok, err := offerInstall(context.Background(), &choiceDialoger{resp: bridge.Response{Value: tui.InstallDecline}}, install, []string{"PIL"}, &out)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, calls)
	require.Contains(t, out.String(), "mdfctl deps install PIL")

	ok, err = offerInstall(context.Background(), &choiceDialoger{resp: bridge.Response{Cancelled: true}}, install, []string{"PIL"}, &out)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, calls)

	d := &choiceDialoger{}
	ok, err = offerInstall(context.Background(), d, install, nil, &out)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, d.frames)
}
