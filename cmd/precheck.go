package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qw4990/sql_advisor/advisor"
	"github.com/qw4990/sql_advisor/database"
	"github.com/qw4990/sql_advisor/utils"
)

type precheckCmdOpt struct {
	commonOpt
	queryOpt
}

// NewPreCheckCmd creates the precheck command, which checks whether the
// database can serve the advisor.
func NewPreCheckCmd() *cobra.Command {
	var opt precheckCmdOpt
	cmd := &cobra.Command{
		Use:   "precheck",
		Short: "check whether the database is suitable for the advisor",
		Long:  `check the connection, the supported EXPLAIN forms and, when queries are specified, whether the tables they reference exist`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opt.loadConfig()
			if err != nil {
				return err
			}
			var queries []utils.Query
			if opt.query != "" || opt.queryPath != "" {
				if queries, err = opt.queryOpt.load(); err != nil {
					return err
				}
			}
			conn, err := openConnection(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			report, problems := precheck(cmd.Context(), conn, queries)
			fmt.Println(report)
			if len(problems) > 0 {
				return errors.New(strings.Join(problems, "; "))
			}
			return nil
		},
	}

	opt.commonOpt.addFlags(cmd)
	opt.queryOpt.addFlags(cmd)
	return cmd
}

// precheck returns a readable report and the problems that prevent the
// advisor from working.
func precheck(ctx context.Context, conn database.Connection, queries []utils.Query) (string, []string) {
	var b strings.Builder
	var problems []string
	dialect := conn.Dialect()
	fmt.Fprintf(&b, "Dialect: %v\n", dialect.Name())

	var supported []string
	for _, prefix := range dialect.ExplainPrefixes() {
		mode := strings.TrimSpace(prefix)
		if _, err := conn.Query(ctx, prefix+"SELECT 1"); err != nil {
			utils.Debugf("%v is not supported: %v", mode, err)
			continue
		}
		supported = append(supported, mode)
	}
	if len(supported) == 0 {
		problems = append(problems, "no EXPLAIN form is supported, plans cannot be analyzed")
	}
	fmt.Fprintf(&b, "EXPLAIN forms: %v\n", strings.Join(supported, ", "))

	tables, err := conn.ListTables(ctx)
	if err != nil {
		problems = append(problems, fmt.Sprintf("cannot list tables: %v", err))
		return b.String(), problems
	}
	fmt.Fprintf(&b, "Tables: %v\n", len(tables))

	existing := utils.NewSet[utils.TableName]()
	for _, t := range tables {
		existing.Add(utils.TableName{TableName: t})
	}
	for _, q := range queries {
		referenced := utils.NewSet[utils.TableName]()
		for _, t := range advisor.ExtractColumns(q.Text).Tables {
			referenced.Add(utils.TableName{TableName: t})
		}
		var missing []string
		for _, t := range utils.DiffSet(referenced, existing).ToList() {
			missing = append(missing, t.TableName)
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("%v references unknown tables %v", q.Alias, strings.Join(missing, ", ")))
			continue
		}
		fmt.Fprintf(&b, "%v: ok\n", q.Alias)
	}
	return b.String(), problems
}
