package database

import (
	"context"
	"fmt"
	"time"
)

// QueryResult is what executing a query leaves behind once its rows are drained.
type QueryResult struct {
	Columns  []string
	RowCount int64
}

// ResultSet holds a fully fetched result with every value rendered as a string.
// NULL values are rendered as the empty string.
type ResultSet struct {
	Columns []string
	Rows    [][]string
}

// Connection is a single database session owned by one caller at a time.
type Connection interface {
	// ExecuteQuery runs the query and drains its rows.
	ExecuteQuery(ctx context.Context, sql string, args ...any) (QueryResult, error)

	// Query runs the query and fetches all rows.
	Query(ctx context.Context, sql string, args ...any) (ResultSet, error)

	// Execute runs a statement that returns no rows.
	Execute(ctx context.Context, sql string, args ...any) error

	// CreateIndex executes a `CREATE INDEX ...` statement.
	CreateIndex(ctx context.Context, ddl string) error

	// DropIndex drops the index if it exists.
	DropIndex(ctx context.Context, tableName, indexName string) error

	// Commit makes preceding DDL visible to later statements.
	Commit(ctx context.Context) error

	// ListTables returns the user tables of the current schema.
	ListTables(ctx context.Context) ([]string, error)

	// ListIndexes returns the names of the indexes defined on the table.
	ListIndexes(ctx context.Context, tableName string) ([]string, error)

	// ResetCaches asks the server to drop its caches, best effort.
	ResetCaches(ctx context.Context) error

	Dialect() Dialect
	Stats() Stats
	ResetStats()
	Close() error
}

// Stats records the statistics of a connection.
type Stats struct {
	QueryCount   int
	QueryTime    time.Duration
	ExecuteCount int
	ExecuteTime  time.Duration
	DDLCount     int
	DDLTime      time.Duration
}

// Format formats the statistics.
func (s Stats) Format() string {
	return fmt.Sprintf(`Query Count: %v
Query Time: %v
Execute Count: %v
Execute Time: %v
DDL Count: %v
DDL Time: %v`, s.QueryCount, s.QueryTime, s.ExecuteCount, s.ExecuteTime, s.DDLCount, s.DDLTime)
}
