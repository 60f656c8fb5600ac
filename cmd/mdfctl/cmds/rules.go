package cmds

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/auto-mdf/mdfctl/pkg/rules"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and try the output rules applied to worker lines",
	}
	cmd.AddCommand(newRulesListCmd(), newRulesTestCmd())
	return cmd
}

func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the loaded rule modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			set, err := rules.LoadSet(cmd.Context(), opts.rulesDir(), rules.Options{})
			if err != nil {
				return err
			}
			for _, m := range set.Modules {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", m.Name(), m.Source())
			}
			return nil
		},
	}
}

type ruleEvent struct {
	Line    int64               `json:"line"`
	Matches []rules.Match       `json:"matches,omitempty"`
	Errors  []rules.ErrorRecord `json:"errors,omitempty"`
}

func newRulesTestCmd() *cobra.Command {
	var input string
	var format string
	var hookTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Classify log lines (a file or stdin) and print the matches",
		Long: "Classify log lines (a file or stdin) and print the matches as ndjson. " +
			"Useful to check a rule against the log of a failed run before the next one.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "ndjson" && format != "pretty" {
				return errors.New("--format must be ndjson or pretty")
			}
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			set, err := rules.LoadSet(cmd.Context(), opts.rulesDir(), rules.Options{HookTimeout: hookTimeout})
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return errors.Wrap(err, "open input")
				}
				defer func() { _ = f.Close() }()
				r = f
			}
			return classifyStream(r, cmd.OutOrStdout(), set, format)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Input file (default: stdin)")
	cmd.Flags().StringVar(&format, "format", "ndjson", "Output format: ndjson|pretty")
	cmd.Flags().DurationVar(&hookTimeout, "js-timeout", 0, "Per-hook JS timeout (e.g. 50ms)")
	return cmd
}

func classifyStream(r io.Reader, w io.Writer, set *rules.Set, format string) error {
	bw := bufio.NewWriter(w)
	defer func() { _ = bw.Flush() }()

	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	if format == "pretty" {
		enc.SetIndent("", "  ")
	}

	br := bufio.NewReader(r)
	var lineNumber int64
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if line != "" {
			lineNumber++
			matches, errs := set.Classify(strings.TrimRight(line, "\r\n"))
			if len(matches) > 0 || len(errs) > 0 {
				if err := enc.Encode(ruleEvent{Line: lineNumber, Matches: matches, Errors: errs}); err != nil {
					return err
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}
