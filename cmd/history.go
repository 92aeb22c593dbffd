package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/qw4990/sql_advisor/history"
	"github.com/qw4990/sql_advisor/utils"
)

type historyCmdOpt struct {
	historyDir string
	query      string
	logLevel   string
}

// NewHistoryCmd creates the history command, which lists recorded
// optimization passes.
func NewHistoryCmd() *cobra.Command {
	var opt historyCmdOpt
	cmd := &cobra.Command{
		Use:   "history",
		Short: "list the recorded optimization passes",
		Long:  `list the optimization passes recorded in --history-dir, all of them or those of the query with the same fingerprint as --query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			utils.SetLogLevel(opt.logLevel)
			if opt.historyDir == "" {
				return errors.New("no history directory, set --history-dir")
			}
			store, err := history.OpenBadgerStore(opt.historyDir)
			if err != nil {
				return err
			}
			defer store.Close()

			var entries []history.Entry
			if opt.query != "" {
				entries, err = store.Lookup(utils.Fingerprint(opt.query))
			} else {
				entries, err = store.List()
			}
			if err != nil {
				return err
			}
			fmt.Println(formatHistory(entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&opt.historyDir, "history-dir", "", "the directory of the optimization history")
	cmd.Flags().StringVar(&opt.query, "query", "", "only list the passes of this query")
	cmd.Flags().StringVar(&opt.logLevel, "log-level", "info", "log level, one of 'debug', 'info', 'warning', 'error'")
	return cmd
}

func formatHistory(entries []history.Entry) string {
	if len(entries) == 0 {
		return "no optimization recorded"
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		after, improvement := "-", "-"
		if e.Applied {
			after = e.AfterTime.String()
			improvement = fmt.Sprintf("%.2f%%", e.Improvement*100)
		}
		rows = append(rows, []string{
			e.Timestamp.Format(time.DateTime),
			e.Fingerprint,
			e.BeforeTime.String(),
			after,
			improvement,
			fmt.Sprintf("%v", e.Kept),
			strings.Join(e.CreatedIndexes, ", "),
		})
	}
	return utils.FormatTable([]string{"TIME", "FINGERPRINT", "BEFORE", "AFTER", "IMPROVEMENT", "KEPT", "INDEXES"}, rows)
}
