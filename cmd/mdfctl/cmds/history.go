package cmds

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/auto-mdf/mdfctl/pkg/history"
	"github.com/auto-mdf/mdfctl/pkg/tui/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var since string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			lo := history.ListOptions{Limit: limit}
			if since != "" {
				t, err := parseSince(since, time.Now())
				if err != nil {
					return err
				}
				lo.Since = t
			}
			recs, err := opts.historyStore().List(lo)
			if err != nil {
				return err
			}

			if asJSON {
				out := make([]recordSummary, 0, len(recs))
				for _, r := range recs {
					out = append(out, summarizeRecord(r))
				}
				return printJSON(cmd, out)
			}
			if len(recs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderHistory(recs))
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only runs started after this date or duration ago (e.g. 2024-05-01, 'yesterday 14:00', 24h)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	cmd.AddCommand(newHistoryShowCmd())
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print one run record, including captured output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			rec, err := opts.historyStore().Get(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
}

// parseSince accepts a Go duration (relative to now) or any date dateparse
// understands, read in local time.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := dateparse.ParseLocal(s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse --since %q", s)
	}
	return t, nil
}

func renderHistory(recs []history.Record) string {
	theme := styles.DefaultTheme()
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprintf("%d", *r.ExitCode)
		}
		rows = append(rows, []string{
			shortID(r.ID),
			r.ScriptName,
			styles.RunStatusIcon(string(r.Status)) + " " + string(r.Status),
			exit,
			string(r.FailureKind),
			r.StartTime.Local().Format("2006-01-02 15:04:05"),
			r.Duration().Round(time.Second).String(),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.Muted)).
		Headers("ID", "SCRIPT", "STATUS", "EXIT", "FAILURE", "STARTED", "DURATION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.Title.Padding(0, 1)
			}
			if col == 2 && row >= 0 && row < len(recs) {
				return theme.StatusStyle(string(recs[row].Status)).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
