package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qw4990/sql_advisor/database"
)

const salesQuery = `SELECT * FROM sales WHERE order_date BETWEEN '2022-01-01' AND '2022-12-31' GROUP BY product_id ORDER BY SUM(amount) DESC`

func TestDetectPlanIssuesDedup(t *testing.T) {
	plan := newPlan("EXPLAIN", mysqlPlan(
		[]string{"1", "SIMPLE", "a", "ALL", "", "", "1000", "Using where; Using temporary; Using filesort"},
		[]string{"1", "SIMPLE", "b", "ALL", "", "", "20", "Using where"},
		[]string{"1", "SIMPLE", "c", "all", "", "", "5", "Using filesort"},
	))
	require.Equal(t, []string{IssueFullTableScan, IssueFilesort, IssueTemporaryTable}, DetectPlanIssues(plan))
}

func TestDetectPlanIssuesEmptyPlan(t *testing.T) {
	require.Equal(t, []string{"No EXPLAIN output available"}, DetectPlanIssues(Plan{}))
}

func TestDetectPlanIssuesColumnVariants(t *testing.T) {
	// lower case extra and an access type only in select_type
	rs := database.ResultSet{
		Columns: []string{"select_type", "extra"},
		Rows:    [][]string{{"ALL", "Impossible WHERE noticed after reading const tables"}},
	}
	require.Equal(t, []string{IssueFullTableScan, IssueImpossibleWhere}, DetectPlanIssues(newPlan("EXPLAIN", rs)))

	ok := newPlan("EXPLAIN", mysqlPlan([]string{"1", "SIMPLE", "a", "ref", "idx_a", "idx_a", "3", "Using index"}))
	require.Empty(t, DetectPlanIssues(ok))
}

func TestPlanRow(t *testing.T) {
	r := NewPlanRow([]string{"TYPE", "Extra", "Rows", "table"}, []string{"range", "Using where", "42", "orders"})
	require.Equal(t, "range", r.AccessType())
	require.Equal(t, "Using where", r.ExtraInfo())
	require.Equal(t, "orders", r.Table())
	n, ok := r.EstimatedRows()
	require.True(t, ok)
	require.Equal(t, int64(42), n)

	r = NewPlanRow([]string{"type", "select_type"}, []string{"", "SIMPLE"})
	require.Equal(t, "SIMPLE", r.AccessType())
	_, ok = r.EstimatedRows()
	require.False(t, ok)
}

func TestRunExplainPrefersAnalyze(t *testing.T) {
	conn := newFakeConn()
	conn.results["EXPLAIN ANALYZE "+salesQuery] = mysqlPlan([]string{"1", "SIMPLE", "sales", "ALL", "", "", "1000", "Using temporary; Using filesort"})
	plan, err := RunExplain(context.Background(), conn, salesQuery)
	require.NoError(t, err)
	require.Equal(t, "EXPLAIN ANALYZE", plan.Mode)
	require.Equal(t, []string{"sales"}, plan.FullScanTables())
	require.Equal(t, int64(1000), plan.EstimatedRows())
	require.Contains(t, plan.Format(), "Using filesort")
}

func TestRunExplainFallsBack(t *testing.T) {
	conn := newFakeConn()
	conn.queryErrs["EXPLAIN ANALYZE "+salesQuery] = errors.New("syntax error near ANALYZE")
	conn.results["EXPLAIN "+salesQuery] = mysqlPlan([]string{"1", "SIMPLE", "sales", "ALL", "", "", "1000", "Using where"})
	plan, issues := AnalyzePlan(context.Background(), conn, salesQuery)
	require.Equal(t, "EXPLAIN", plan.Mode)
	require.Len(t, plan.Rows, 1)
	require.Equal(t, []string{IssueFullTableScan}, issues)

	// the tree output of EXPLAIN ANALYZE is not a tabular plan
	conn = newFakeConn()
	conn.results["EXPLAIN ANALYZE "+salesQuery] = database.ResultSet{
		Columns: []string{"EXPLAIN"},
		Rows:    [][]string{{"-> Table scan on sales (cost=10 rows=1000)"}},
	}
	conn.results["EXPLAIN "+salesQuery] = mysqlPlan([]string{"1", "SIMPLE", "sales", "ALL", "", "", "1000", ""})
	plan, err := RunExplain(context.Background(), conn, salesQuery)
	require.NoError(t, err)
	require.Equal(t, "EXPLAIN", plan.Mode)
}

func TestRunExplainUnavailable(t *testing.T) {
	conn := newFakeConn()
	conn.queryErrs["EXPLAIN ANALYZE "+salesQuery] = errors.New("analyze denied")
	conn.queryErrs["EXPLAIN "+salesQuery] = errors.New("explain denied")

	_, err := RunExplain(context.Background(), conn, salesQuery)
	var planErr *PlanUnavailableError
	require.ErrorAs(t, err, &planErr)
	require.Len(t, planErr.Attempts, 2)
	require.Contains(t, err.Error(), "analyze denied")
	require.Contains(t, err.Error(), "explain denied")

	plan, issues := AnalyzePlan(context.Background(), conn, salesQuery)
	require.True(t, plan.Empty())
	require.Len(t, issues, 1)
	require.True(t, strings.HasPrefix(issues[0], "EXPLAIN failed: "))
}
