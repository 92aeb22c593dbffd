package cmd

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qw4990/sql_advisor/advisor"
	"github.com/qw4990/sql_advisor/utils"
)

type suggestCmdOpt struct {
	queryOpt
	maxSuggestions int
	noComposite    bool
	annotate       bool
	output         string
	logLevel       string
}

// NewSuggestCmd creates the suggest command, which works on the query text
// alone and needs no database.
func NewSuggestCmd() *cobra.Command {
	var opt suggestCmdOpt
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "suggest indexes for the specified queries without a database",
		Long:  `extract the columns referenced by the specified queries and suggest single column and composite indexes for them, no database is touched`,
		RunE: func(cmd *cobra.Command, args []string) error {
			utils.SetLogLevel(opt.logLevel)
			queries, err := opt.load()
			if err != nil {
				return err
			}
			param := advisor.DefaultParameter()
			param.MaxSuggestions = opt.maxSuggestions
			param.AllowComposite = !opt.noComposite

			for _, q := range queries {
				cols := advisor.ExtractColumns(q.Text)
				ddls := advisor.SuggestionDDLs(advisor.SynthesizeIndexes(cols, param, nil))
				content := formatSuggestions(q, cols, ddls, opt.annotate)
				fmt.Printf("===================== %v =====================\n", q.Alias)
				fmt.Println(content)
				if opt.output != "" {
					if err := utils.SaveContentTo(path.Join(opt.output, q.Alias+".sql"), strings.Join(ddls, "\n")+"\n"); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	opt.queryOpt.addFlags(cmd)
	cmd.Flags().IntVar(&opt.maxSuggestions, "max-suggestions", 5, "max number of indexes to suggest for one query, at most 10")
	cmd.Flags().BoolVar(&opt.noComposite, "no-composite", false, "suggest single column indexes only")
	cmd.Flags().BoolVar(&opt.annotate, "annotate", false, "print the query annotated with the suggestions")
	cmd.Flags().StringVar(&opt.output, "output", "", "the directory to save the suggested DDL into, one file per query")
	cmd.Flags().StringVar(&opt.logLevel, "log-level", "info", "log level, one of 'debug', 'info', 'warning', 'error'")
	return cmd
}

func formatSuggestions(q utils.Query, cols advisor.ExtractedColumns, ddls []string, annotate bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SQL:\n%v\n\n", q.Text)
	fmt.Fprintf(&b, "Tables: %v\n", strings.Join(cols.Tables, ", "))
	for _, clause := range []struct {
		name string
		refs utils.Set[advisor.ColumnReference]
	}{
		{"WHERE", cols.Where},
		{"JOIN", cols.Join},
		{"ORDER BY", cols.OrderBy},
		{"GROUP BY", cols.GroupBy},
		{"HAVING", cols.Having},
	} {
		if clause.refs == nil || clause.refs.Size() == 0 {
			continue
		}
		fmt.Fprintf(&b, "%v columns: %v\n", clause.name, strings.Join(clause.refs.ToKeyList(), ", "))
	}
	b.WriteString("\n")
	if len(ddls) == 0 {
		b.WriteString("No index to suggest.\n")
	} else {
		b.WriteString("Suggested indexes:\n")
		for _, ddl := range ddls {
			b.WriteString("  " + ddl + "\n")
		}
	}
	if annotate {
		b.WriteString("\n" + advisor.AnnotateQuery(q.Text, ddls) + ";\n")
	}
	return b.String()
}
