package database

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// PostgresDialect serves PostgreSQL through lib/pq.
type PostgresDialect struct{}

func (PostgresDialect) Name() string       { return "postgres" }
func (PostgresDialect) DriverName() string { return "postgres" }

func (PostgresDialect) ExplainPrefixes() []string {
	return []string{"EXPLAIN ANALYZE ", "EXPLAIN "}
}

var pgRowsPattern = regexp.MustCompile(`rows=(\d+)`)

// NormalizePlan maps the text lines of the `QUERY PLAN` column onto MySQL
// access types: Seq Scan is ALL, Sort is a filesort, HashAggregate a temporary
// table and a false One-Time Filter an impossible WHERE.
func (PostgresDialect) NormalizePlan(rs ResultSet) (ResultSet, bool) {
	if len(rs.Columns) != 1 || !strings.EqualFold(rs.Columns[0], "QUERY PLAN") {
		return rs, false
	}
	out := ResultSet{Columns: normalizedPlanColumns}
	for i, row := range rs.Rows {
		line := strings.TrimSpace(row[0])
		line = strings.TrimSpace(strings.TrimPrefix(line, "->"))
		table, accessType, extra := parsePostgresLine(line)
		rows := ""
		if m := pgRowsPattern.FindStringSubmatch(line); m != nil {
			if _, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				rows = m[1]
			}
		}
		out.Rows = append(out.Rows, []string{strconv.Itoa(i + 1), table, accessType, rows, extra, line})
	}
	return out, true
}

func parsePostgresLine(line string) (table, accessType, extra string) {
	objectAfter := func(marker string) string {
		i := strings.Index(line, marker)
		if i < 0 {
			return ""
		}
		if f := strings.Fields(line[i+len(marker):]); len(f) > 0 {
			return f[0]
		}
		return ""
	}
	switch {
	case strings.HasPrefix(line, "Seq Scan on "):
		return objectAfter(" on "), "ALL", ""
	case strings.HasPrefix(line, "Index Only Scan"), strings.HasPrefix(line, "Index Scan"):
		return objectAfter(" on "), "ref", ""
	case strings.HasPrefix(line, "Bitmap Heap Scan on "):
		return objectAfter(" on "), "range", ""
	case strings.HasPrefix(line, "Sort "), strings.HasPrefix(line, "Incremental Sort "):
		return "", "", "Using filesort"
	case strings.HasPrefix(line, "HashAggregate "):
		return "", "", "Using temporary"
	case strings.HasPrefix(line, "One-Time Filter: false"):
		return "", "", "Impossible WHERE"
	}
	return "", "", ""
}

func (PostgresDialect) DropIndexStmt(_, indexName string) string {
	return fmt.Sprintf(`DROP INDEX IF EXISTS "%v"`, indexName)
}

func (PostgresDialect) CommitStmt() string { return "" }

func (PostgresDialect) ListTablesStmt() string {
	return "SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = current_schema() ORDER BY tablename"
}

func (PostgresDialect) ListIndexesStmt() string {
	return "SELECT indexname FROM pg_catalog.pg_indexes WHERE schemaname = current_schema() AND tablename = $1 ORDER BY indexname"
}

func (PostgresDialect) ResetCacheStmts() []string {
	return []string{"DISCARD PLANS"}
}

// IsDuplicateIndex matches SQLSTATE 42P07 (duplicate_table), which PostgreSQL
// raises for index names as well.
func (PostgresDialect) IsDuplicateIndex(err error) bool {
	if err == nil {
		return false
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "42P07"
	}
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
