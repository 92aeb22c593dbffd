package database

import (
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteDialect serves SQLite through the pure Go modernc driver.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string       { return "sqlite" }
func (SQLiteDialect) DriverName() string { return "sqlite" }

func (SQLiteDialect) ExplainPrefixes() []string {
	return []string{"EXPLAIN QUERY PLAN "}
}

// NormalizePlan maps the `detail` column of EXPLAIN QUERY PLAN:
//
//	SCAN t                        -> type ALL
//	SCAN t USING INDEX i          -> type index
//	SEARCH t USING INDEX i (a=?)  -> type ref, or range for inequalities
//	USE TEMP B-TREE FOR ORDER BY  -> Extra "Using filesort"
//	USE TEMP B-TREE FOR GROUP BY  -> Extra "Using temporary"
func (SQLiteDialect) NormalizePlan(rs ResultSet) (ResultSet, bool) {
	detailIdx, idIdx := -1, -1
	for i, c := range rs.Columns {
		switch strings.ToLower(c) {
		case "detail":
			detailIdx = i
		case "id":
			idIdx = i
		}
	}
	if detailIdx < 0 {
		return rs, false
	}

	out := ResultSet{Columns: normalizedPlanColumns}
	for _, row := range rs.Rows {
		detail := row[detailIdx]
		id := ""
		if idIdx >= 0 {
			id = row[idIdx]
		}
		table, accessType, extra := parseSQLiteDetail(detail)
		out.Rows = append(out.Rows, []string{id, table, accessType, "", extra, detail})
	}
	return out, true
}

func parseSQLiteDetail(detail string) (table, accessType, extra string) {
	upper := strings.ToUpper(strings.TrimSpace(detail))
	objectAfter := func(prefix string) string {
		rest := strings.TrimSpace(detail[len(prefix):])
		if strings.HasPrefix(strings.ToUpper(rest), "TABLE ") {
			rest = strings.TrimSpace(rest[len("TABLE "):])
		}
		if f := strings.Fields(rest); len(f) > 0 {
			return f[0]
		}
		return ""
	}

	switch {
	case strings.HasPrefix(upper, "SCAN CONSTANT ROW"):
		return "", "const", ""
	case strings.HasPrefix(upper, "SCAN "):
		table = objectAfter("SCAN ")
		if strings.Contains(upper, " USING ") {
			return table, "index", ""
		}
		return table, "ALL", ""
	case strings.HasPrefix(upper, "SEARCH "):
		table = objectAfter("SEARCH ")
		if strings.Contains(upper, ">") || strings.Contains(upper, "<") {
			return table, "range", ""
		}
		return table, "ref", ""
	case strings.Contains(upper, "TEMP B-TREE FOR ORDER BY"),
		strings.Contains(upper, "TEMP B-TREE FOR RIGHT PART OF ORDER BY"),
		strings.Contains(upper, "TEMP B-TREE FOR LAST TERM OF ORDER BY"):
		return "", "", "Using filesort"
	case strings.Contains(upper, "TEMP B-TREE FOR GROUP BY"),
		strings.Contains(upper, "TEMP B-TREE FOR DISTINCT"):
		return "", "", "Using temporary"
	}
	return "", "", ""
}

func (SQLiteDialect) DropIndexStmt(_, indexName string) string {
	return fmt.Sprintf(`DROP INDEX IF EXISTS "%v"`, indexName)
}

func (SQLiteDialect) CommitStmt() string { return "" }

func (SQLiteDialect) ListTablesStmt() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
}

func (SQLiteDialect) ListIndexesStmt() string {
	return "SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ? ORDER BY name"
}

func (SQLiteDialect) ResetCacheStmts() []string { return nil }

func (SQLiteDialect) IsDuplicateIndex(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}
