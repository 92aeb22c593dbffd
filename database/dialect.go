package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Plan columns produced by Dialect.NormalizePlan for engines whose EXPLAIN
// output does not follow the MySQL layout.
var normalizedPlanColumns = []string{"id", "table", "type", "rows", "Extra", "detail"}

// Dialect captures the statements and plan formats that differ between engines.
type Dialect interface {
	// Name is the user facing name of the dialect.
	Name() string
	// DriverName is the database/sql driver the dialect is registered under.
	DriverName() string
	// ExplainPrefixes are tried in order; a prefix is prepended to the query verbatim.
	ExplainPrefixes() []string
	// NormalizePlan converts EXPLAIN output into MySQL shaped rows.
	// It returns false when the output carries no tabular plan.
	NormalizePlan(rs ResultSet) (ResultSet, bool)
	DropIndexStmt(tableName, indexName string) string
	// CommitStmt is empty for engines running DDL in autocommit mode.
	CommitStmt() string
	ListTablesStmt() string
	// ListIndexesStmt takes the table name as its only argument.
	ListIndexesStmt() string
	ResetCacheStmts() []string
	// IsDuplicateIndex reports whether err means the index name is taken.
	IsDuplicateIndex(err error) bool
}

// DialectFor returns the dialect registered under the given driver name.
func DialectFor(driverName string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driverName)) {
	case "mysql", "mariadb", "":
		return MySQLDialect{}, nil
	case "sqlite", "sqlite3":
		return SQLiteDialect{}, nil
	case "postgres", "postgresql", "pg":
		return PostgresDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driverName)
}

// MySQLDialect serves MySQL and MariaDB.
type MySQLDialect struct{}

func (MySQLDialect) Name() string       { return "mysql" }
func (MySQLDialect) DriverName() string { return "mysql" }

func (MySQLDialect) ExplainPrefixes() []string {
	return []string{"EXPLAIN ANALYZE ", "EXPLAIN "}
}

// NormalizePlan keeps the traditional tabular output as is. The tree format
// that MySQL 8 returns for EXPLAIN ANALYZE has a single column and is rejected.
func (MySQLDialect) NormalizePlan(rs ResultSet) (ResultSet, bool) {
	for _, c := range rs.Columns {
		switch strings.ToLower(c) {
		case "type", "select_type", "extra":
			return rs, true
		}
	}
	return rs, false
}

func (MySQLDialect) DropIndexStmt(tableName, indexName string) string {
	return fmt.Sprintf("ALTER TABLE %v DROP INDEX IF EXISTS `%v`", tableName, indexName)
}

func (MySQLDialect) CommitStmt() string { return "COMMIT" }

func (MySQLDialect) ListTablesStmt() string {
	return "SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME"
}

func (MySQLDialect) ListIndexesStmt() string {
	return "SELECT DISTINCT INDEX_NAME FROM information_schema.STATISTICS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY INDEX_NAME"
}

func (MySQLDialect) ResetCacheStmts() []string {
	return []string{"FLUSH TABLES", "RESET QUERY CACHE"}
}

// IsDuplicateIndex matches error 1061 (ER_DUP_KEYNAME).
func (MySQLDialect) IsDuplicateIndex(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1061
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate key name")
}
