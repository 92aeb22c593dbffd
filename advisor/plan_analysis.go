package advisor

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/qw4990/sql_advisor/database"
	"github.com/qw4990/sql_advisor/utils"
)

// Issues reported by the plan analyzer.
const (
	IssueFullTableScan   = "Full table scan detected (type=ALL). Consider adding indexes on WHERE/JOIN columns."
	IssueFilesort        = "Filesort detected - ORDER BY may need an index."
	IssueTemporaryTable  = "Temporary table detected - GROUP BY may need optimization."
	IssueImpossibleWhere = "Impossible WHERE condition detected."
	IssueNoPlan          = "No EXPLAIN output available"
)

// PlanRow is one row of EXPLAIN output with case-insensitive field lookup.
type PlanRow struct {
	fields map[string]string
}

// NewPlanRow pairs column names with values.
func NewPlanRow(columns, values []string) PlanRow {
	fields := make(map[string]string, len(columns))
	for i, c := range columns {
		if i < len(values) {
			fields[strings.ToLower(c)] = values[i]
		}
	}
	return PlanRow{fields: fields}
}

// Get returns the named field.
func (r PlanRow) Get(name string) (string, bool) {
	v, ok := r.fields[strings.ToLower(name)]
	return v, ok
}

// AccessType returns the `type` field, or `select_type` when `type` is empty.
func (r PlanRow) AccessType() string {
	if v, _ := r.Get("type"); v != "" {
		return v
	}
	v, _ := r.Get("select_type")
	return v
}

// ExtraInfo returns the `Extra` field.
func (r PlanRow) ExtraInfo() string {
	v, _ := r.Get("extra")
	return v
}

// Table returns the `table` field.
func (r PlanRow) Table() string {
	v, _ := r.Get("table")
	return v
}

// EstimatedRows returns the `rows` estimate and whether the row carries one.
func (r PlanRow) EstimatedRows() (int64, bool) {
	v, _ := r.Get("rows")
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// Plan is the normalized EXPLAIN output of a query.
type Plan struct {
	Mode    string // the EXPLAIN form that produced the plan
	Columns []string
	Rows    []PlanRow
	raw     [][]string
}

func newPlan(mode string, rs database.ResultSet) Plan {
	p := Plan{Mode: mode, Columns: rs.Columns, raw: rs.Rows}
	for _, row := range rs.Rows {
		p.Rows = append(p.Rows, NewPlanRow(rs.Columns, row))
	}
	return p
}

func (p Plan) clone() Plan {
	c := Plan{Mode: p.Mode, Columns: slices.Clone(p.Columns)}
	if p.Rows != nil {
		c.Rows = make([]PlanRow, len(p.Rows))
		for i, r := range p.Rows {
			c.Rows[i] = PlanRow{fields: maps.Clone(r.fields)}
		}
	}
	if p.raw != nil {
		c.raw = make([][]string, len(p.raw))
		for i, row := range p.raw {
			c.raw[i] = slices.Clone(row)
		}
	}
	return c
}

// Empty reports whether the plan has no rows.
func (p Plan) Empty() bool {
	return len(p.Rows) == 0
}

// FullScanTables returns the tables read with a full table scan.
func (p Plan) FullScanTables() []string {
	var tables []string
	for _, r := range p.Rows {
		if strings.EqualFold(r.AccessType(), "ALL") && r.Table() != "" {
			tables = append(tables, r.Table())
		}
	}
	return utils.DedupStrings(tables)
}

// EstimatedRows sums the row estimates of all plan rows.
func (p Plan) EstimatedRows() int64 {
	var total int64
	for _, r := range p.Rows {
		if n, ok := r.EstimatedRows(); ok {
			total += n
		}
	}
	return total
}

// Format renders the plan as a table.
func (p Plan) Format() string {
	return utils.FormatTable(p.Columns, p.raw)
}

// RunExplain tries the EXPLAIN forms of the connection's dialect in order,
// for example `EXPLAIN ANALYZE <query>` then `EXPLAIN <query>`, and returns
// the first plan obtained. When all of them fail it returns a *PlanUnavailableError.
func RunExplain(ctx context.Context, conn database.Connection, query string) (Plan, error) {
	dialect := conn.Dialect()
	planErr := &PlanUnavailableError{Query: query}
	for _, prefix := range dialect.ExplainPrefixes() {
		mode := strings.TrimSpace(prefix)
		rs, err := conn.Query(ctx, prefix+query)
		if err != nil {
			utils.Debugf("%v failed: %v", mode, err)
			planErr.Attempts = append(planErr.Attempts, fmt.Errorf("%v: %w", mode, err))
			continue
		}
		normalized, ok := dialect.NormalizePlan(rs)
		if !ok {
			utils.Debugf("%v returned no tabular plan", mode)
			planErr.Attempts = append(planErr.Attempts, fmt.Errorf("%v: no tabular plan in the output", mode))
			continue
		}
		return newPlan(mode, normalized), nil
	}
	return Plan{}, planErr
}

// DetectPlanIssues scans every plan row for full scans, filesorts, temporary
// tables and impossible conditions. Issues keep the order they were first seen in.
func DetectPlanIssues(plan Plan) []string {
	if plan.Empty() {
		return []string{IssueNoPlan}
	}
	var issues []string
	for _, row := range plan.Rows {
		if strings.EqualFold(strings.TrimSpace(row.AccessType()), "ALL") {
			issues = append(issues, IssueFullTableScan)
		}
		extra := strings.ToUpper(row.ExtraInfo())
		if strings.Contains(extra, "FILESORT") {
			issues = append(issues, IssueFilesort)
		}
		if strings.Contains(extra, "USING TEMPORARY") {
			issues = append(issues, IssueTemporaryTable)
		}
		if strings.Contains(extra, "IMPOSSIBLE WHERE") {
			issues = append(issues, IssueImpossibleWhere)
		}
	}
	return utils.DedupStrings(issues)
}

// AnalyzePlan explains the query and detects plan issues. A failure to
// obtain any plan is reported as the only issue, with an empty plan.
func AnalyzePlan(ctx context.Context, conn database.Connection, query string) (Plan, []string) {
	plan, err := RunExplain(ctx, conn, query)
	if err != nil {
		utils.Warningf("%v", err)
		return Plan{}, []string{err.Error()}
	}
	return plan, DetectPlanIssues(plan)
}
