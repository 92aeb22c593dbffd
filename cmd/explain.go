package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qw4990/sql_advisor/advisor"
)

type explainCmdOpt struct {
	commonOpt
	queryOpt
}

// NewExplainCmd creates the explain command, which reads the plans of the
// specified queries and reports their issues without executing them.
func NewExplainCmd() *cobra.Command {
	var opt explainCmdOpt
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "show the plans of the specified queries and the issues found in them",
		Long:  `run EXPLAIN on the specified queries, detect full table scans, filesorts, temporary tables and impossible conditions, and suggest indexes for them`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opt.loadConfig()
			if err != nil {
				return err
			}
			queries, err := opt.queryOpt.load()
			if err != nil {
				return err
			}
			conn, err := openConnection(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			param := cfg.Parameter()
			for _, q := range queries {
				plan, issues := advisor.AnalyzePlan(cmd.Context(), conn, q.Text)
				suggestions := advisor.SuggestionDDLs(advisor.SynthesizeIndexes(advisor.ExtractColumns(q.Text), param, nil))

				var b strings.Builder
				fmt.Fprintf(&b, "SQL:\n%v\n\n", q.Text)
				if !plan.Empty() {
					fmt.Fprintf(&b, "%v\n%v\n", plan.Mode, plan.Format())
				}
				b.WriteString(advisor.Explain(issues, suggestions))
				fmt.Printf("===================== %v =====================\n", q.Alias)
				fmt.Println(b.String())
			}
			return nil
		},
	}

	opt.commonOpt.addFlags(cmd)
	opt.queryOpt.addFlags(cmd)
	return cmd
}
