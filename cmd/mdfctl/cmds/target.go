package cmds

import (
	"strconv"

	"github.com/auto-mdf/mdfctl/pkg/bridge"
	"github.com/auto-mdf/mdfctl/pkg/config"
	"github.com/auto-mdf/mdfctl/pkg/focus"
	"github.com/spf13/pflag"
)

type targetFlags struct {
	hint string
	slot int
	tab  int
}

func (t *targetFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&t.hint, "hint", "", "Window title hint for the browser running MDF-e")
	fs.IntVar(&t.slot, "slot", focus.DefaultTaskbarSlot, "Taskbar slot (1-9) used to launch the browser")
	fs.IntVar(&t.tab, "tab", 0, "Browser tab (1-9) to switch to; 0 leaves the tab alone")
}

// resolve layers config values under explicitly set flags.
func (t *targetFlags) resolve(fs *pflag.FlagSet, f *config.File) focus.Target {
	out := focus.Target{
		AppHint:     f.Focus.TitleHint,
		TaskbarSlot: f.Focus.TaskbarSlot,
		Tab:         f.Focus.Tab,
	}
	if fs.Changed("hint") {
		out.AppHint = t.hint
	}
	if fs.Changed("slot") || out.TaskbarSlot == 0 {
		out.TaskbarSlot = t.slot
	}
	if fs.Changed("tab") {
		out.Tab = focus.ParseTab(strconv.Itoa(t.tab))
	}
	return out
}

func bridgeProtocol(f *config.File) bridge.Protocol {
	p := bridge.DefaultProtocol()
	if f.Bridge.Prefix != "" {
		p.Prefix = f.Bridge.Prefix
	}
	if f.Bridge.Ack != "" {
		p.Ack = f.Bridge.Ack
	}
	if f.Bridge.Cancel != "" {
		p.Cancel = f.Bridge.Cancel
	}
	return p
}
