//go:build linux

package x11

import (
	"context"
	"strings"
	"testing"

	"github.com/auto-mdf/mdfctl/pkg/desktop"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

func fakeRunner(calls *[]call, outputs map[string]string) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{name: name, args: args})
		key := name + " " + strings.Join(args, " ")
		out, ok := outputs[key]
		if !ok {
			return nil, errors.Errorf("unexpected command %q", key)
		}
		return []byte(out), nil
	}
}

func TestBackend_ListWindows(t *testing.T) {
	var calls []call
	b := NewWithRunner(fakeRunner(&calls, map[string]string{
		"xdotool search --onlyvisible --name .": "11\n22\n33\n",
		"xdotool getwindowname 11":              "MDF-e - Google Chrome\n",
		"xdotool getwindowname 22":              "\n",
		"xdotool getwindowname 33":              "Terminal\n",
	}))

	ws, err := b.ListWindows(context.Background())
	require.NoError(t, err)
	require.Equal(t, []desktop.Window{{ID: "11", Title: "MDF-e - Google Chrome"}, {ID: "33", Title: "Terminal"}}, ws)
}

func TestBackend_KeyComboMapsNames(t *testing.T) {
	var calls []call
	b := NewWithRunner(fakeRunner(&calls, map[string]string{
		"xdotool key --clearmodifiers super+1": "",
		"xdotool key --clearmodifiers ctrl+3":  "",
	}))
	require.NoError(t, b.KeyCombo(context.Background(), "win", "1"))
	require.NoError(t, b.KeyCombo(context.Background(), "ctrl", "3"))
	require.Error(t, b.KeyCombo(context.Background()))
	require.Len(t, calls, 2)
}

func TestBackend_CapsLock(t *testing.T) {
	var calls []call
	b := NewWithRunner(fakeRunner(&calls, map[string]string{
		"xset q": "Keyboard Control:\n  00: Caps Lock:   on    01: Num Lock:    off\n",
	}))
	on, err := b.CapsLockOn(context.Background())
	require.NoError(t, err)
	require.True(t, on)
}
