package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/auto-mdf/mdfctl/cmd/mdfctl/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "mdfctl",
	Short:         "mdfctl runs MDF-e automation workers and relays their progress and dialogs",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitLoggerFromCobra(cmd)
	},
}

func main() {
	cobra.CheckErr(logging.AddLoggingLayerToRootCommand(rootCmd, "mdfctl"))
	cmds.AddRootFlags(rootCmd)
	cobra.CheckErr(cmds.AddCommands(rootCmd))
	if err := rootCmd.Execute(); err != nil {
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) {
			os.Exit(coded.ExitCode())
		}
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
