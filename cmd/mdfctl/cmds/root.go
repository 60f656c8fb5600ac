package cmds

import (
	"github.com/auto-mdf/mdfctl/cmd/mdfctl/cmds/dev"
	"github.com/spf13/cobra"
)

func AddCommands(root *cobra.Command) error {
	root.AddCommand(dev.NewCmd())

	root.AddCommand(newRunCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newDepsCmd())
	root.AddCommand(newFocusCmd())
	root.AddCommand(newCapsOffCmd())
	root.AddCommand(newSettingsCmd())
	root.AddCommand(newRulesCmd())
	root.AddCommand(newWorkerCmd())
	root.AddCommand(newWrapRunCmd())
	return nil
}
