package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) Connection {
	t.Helper()
	conn, err := Open(context.Background(), "sqlite", ":memory:", RetryPolicy{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSQLiteConnection(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	require.NoError(t, conn.Execute(ctx, "CREATE TABLE sales (id INTEGER PRIMARY KEY, product_id INTEGER, amount REAL, order_date TEXT)"))
	for i := 0; i < 10; i++ {
		require.NoError(t, conn.Execute(ctx, "INSERT INTO sales (product_id, amount, order_date) VALUES (?, ?, ?)",
			i%3, float64(i)*1.5, fmt.Sprintf("2022-01-%02d", i+1)))
	}

	res, err := conn.ExecuteQuery(ctx, "SELECT * FROM sales WHERE product_id = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RowCount)
	assert.Equal(t, []string{"id", "product_id", "amount", "order_date"}, res.Columns)

	rs, err := conn.Query(ctx, "SELECT id, order_date FROM sales WHERE id = ?", 2)
	require.NoError(t, err)
	require.Len(t, rs.Rows, 1)
	assert.Equal(t, []string{"2", "2022-01-02"}, rs.Rows[0])

	tables, err := conn.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"sales"}, tables)

	require.NoError(t, conn.CreateIndex(ctx, "CREATE INDEX idx_sales_order_date ON sales (order_date);"))
	require.NoError(t, conn.Commit(ctx))
	indexes, err := conn.ListIndexes(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, []string{"idx_sales_order_date"}, indexes)

	err = conn.CreateIndex(ctx, "CREATE INDEX idx_sales_order_date ON sales (order_date);")
	require.Error(t, err)
	assert.True(t, conn.Dialect().IsDuplicateIndex(err))

	require.NoError(t, conn.DropIndex(ctx, "sales", "idx_sales_order_date"))
	require.NoError(t, conn.DropIndex(ctx, "sales", "idx_sales_order_date"), "dropping a missing index is a no-op")
	indexes, err = conn.ListIndexes(ctx, "sales")
	require.NoError(t, err)
	assert.Empty(t, indexes)

	require.NoError(t, conn.ResetCaches(ctx))

	stats := conn.Stats()
	assert.Equal(t, 4, stats.DDLCount)
	assert.Greater(t, stats.QueryCount, 0)
	assert.Greater(t, stats.ExecuteCount, 0)
	assert.Contains(t, stats.Format(), "DDL Count: 4")
	conn.ResetStats()
	assert.Equal(t, Stats{}, conn.Stats())
}

func TestSQLiteQueryFailure(t *testing.T) {
	conn := openSQLite(t)
	_, err := conn.ExecuteQuery(context.Background(), "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.False(t, IsConnectivityError(err))
}

func TestSQLiteExplain(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	require.NoError(t, conn.Execute(ctx, "CREATE TABLE sales (id INTEGER PRIMARY KEY, product_id INTEGER, amount REAL, order_date TEXT)"))

	dialect := conn.Dialect()
	rs, err := conn.Query(ctx, dialect.ExplainPrefixes()[0]+"SELECT * FROM sales WHERE order_date = '2022-01-01' ORDER BY amount")
	require.NoError(t, err)
	plan, ok := dialect.NormalizePlan(rs)
	require.True(t, ok)
	require.NotEmpty(t, plan.Rows)
	assert.Equal(t, "sales", plan.Rows[0][1])
	assert.Equal(t, "ALL", plan.Rows[0][2])

	foundSort := false
	for _, row := range plan.Rows {
		if row[4] == "Using filesort" {
			foundSort = true
		}
	}
	assert.True(t, foundSort, "plan: %v", plan.Rows)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "", RetryPolicy{})
	require.Error(t, err)
	var ce *ConnectivityError
	assert.False(t, errors.As(err, &ce))
}

func TestOpenRetriesThenFails(t *testing.T) {
	// lib/pq rejects the connection string before dialing
	start := time.Now()
	_, err := Open(context.Background(), "postgres", "not a valid dsn ://", RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond})
	require.Error(t, err)
	var ce *ConnectivityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 3, ce.Attempts)
	assert.Equal(t, "postgres", ce.Driver)
	assert.True(t, IsConnectivityError(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestOpenWithoutBackoff(t *testing.T) {
	_, err := Open(context.Background(), "postgres", "not a valid dsn ://", RetryPolicy{MaxRetries: 1})
	var ce *ConnectivityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.Attempts)

	_, err = Open(context.Background(), "postgres", "not a valid dsn ://", RetryPolicy{MaxRetries: -1})
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Attempts)
	assert.NotErrorIs(t, err, context.Canceled)
}

func TestOpenHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, "postgres", "not a valid dsn ://", RetryPolicy{MaxRetries: 3, InitialBackoff: time.Hour})
	require.Error(t, err)
	var ce *ConnectivityError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsConnectivityError(t *testing.T) {
	assert.False(t, IsConnectivityError(nil))
	assert.True(t, IsConnectivityError(driver.ErrBadConn))
	assert.True(t, IsConnectivityError(fmt.Errorf("query: %w", mysql.ErrInvalidConn)))
	assert.False(t, IsConnectivityError(errors.New("syntax error")))
}

func TestDialectFor(t *testing.T) {
	cases := map[string]string{
		"mysql":      "mysql",
		"MariaDB":    "mysql",
		"sqlite3":    "sqlite",
		"postgresql": "postgres",
	}
	for in, name := range cases {
		d, err := DialectFor(in)
		require.NoError(t, err, in)
		assert.Equal(t, name, d.Name(), in)
	}
}

func TestMySQLDialect(t *testing.T) {
	d := MySQLDialect{}
	assert.Equal(t, []string{"EXPLAIN ANALYZE ", "EXPLAIN "}, d.ExplainPrefixes())
	assert.Equal(t, "ALTER TABLE sales DROP INDEX IF EXISTS `idx_sales_order_date`", d.DropIndexStmt("sales", "idx_sales_order_date"))
	assert.Equal(t, "COMMIT", d.CommitStmt())

	assert.True(t, d.IsDuplicateIndex(&mysql.MySQLError{Number: 1061, Message: "Duplicate key name 'idx'"}))
	assert.False(t, d.IsDuplicateIndex(&mysql.MySQLError{Number: 1072, Message: "Key column 'x' doesn't exist in table"}))
	assert.True(t, d.IsDuplicateIndex(errors.New("Error 1061: Duplicate key name 'idx'")))
	assert.False(t, d.IsDuplicateIndex(nil))

	tree := ResultSet{Columns: []string{"EXPLAIN"}, Rows: [][]string{{"-> Table scan on sales"}}}
	_, ok := d.NormalizePlan(tree)
	assert.False(t, ok)
	tabular := ResultSet{Columns: []string{"id", "select_type", "table", "type", "rows", "Extra"}}
	_, ok = d.NormalizePlan(tabular)
	assert.True(t, ok)
}

func TestParseSQLiteDetail(t *testing.T) {
	cases := []struct {
		detail, table, accessType, extra string
	}{
		{"SCAN sales", "sales", "ALL", ""},
		{"SCAN TABLE sales", "sales", "ALL", ""},
		{"SCAN sales USING COVERING INDEX idx_sales_order_date", "sales", "index", ""},
		{"SEARCH sales USING INDEX idx_sales_order_date (order_date=?)", "sales", "ref", ""},
		{"SEARCH sales USING INDEX idx_sales_order_date (order_date>? AND order_date<?)", "sales", "range", ""},
		{"USE TEMP B-TREE FOR ORDER BY", "", "", "Using filesort"},
		{"USE TEMP B-TREE FOR GROUP BY", "", "", "Using temporary"},
		{"SCAN CONSTANT ROW", "", "const", ""},
		{"CORRELATED SCALAR SUBQUERY 1", "", "", ""},
	}
	for _, c := range cases {
		table, accessType, extra := parseSQLiteDetail(c.detail)
		assert.Equal(t, c.table, table, c.detail)
		assert.Equal(t, c.accessType, accessType, c.detail)
		assert.Equal(t, c.extra, extra, c.detail)
	}
}

func TestPostgresDialect(t *testing.T) {
	d := PostgresDialect{}
	rs := ResultSet{Columns: []string{"QUERY PLAN"}, Rows: [][]string{
		{"Sort  (cost=10.00..10.50 rows=200 width=40)"},
		{"  Sort Key: amount"},
		{"  ->  Seq Scan on sales  (cost=0.00..5.00 rows=200 width=40)"},
		{"        Filter: (order_date = '2022-01-01'::date)"},
		{"Result  (cost=0.00..0.00 rows=0 width=0)"},
		{"  One-Time Filter: false"},
	}}
	plan, ok := d.NormalizePlan(rs)
	require.True(t, ok)
	require.Len(t, plan.Rows, 6)
	assert.Equal(t, []string{"1", "", "", "200", "Using filesort", "Sort  (cost=10.00..10.50 rows=200 width=40)"}, plan.Rows[0])
	assert.Equal(t, "sales", plan.Rows[2][1])
	assert.Equal(t, "ALL", plan.Rows[2][2])
	assert.Equal(t, "Impossible WHERE", plan.Rows[5][4])

	_, ok = d.NormalizePlan(ResultSet{Columns: []string{"id", "detail"}})
	assert.False(t, ok)

	assert.True(t, d.IsDuplicateIndex(&pq.Error{Code: "42P07"}))
	assert.False(t, d.IsDuplicateIndex(&pq.Error{Code: "42703"}))
	assert.Equal(t, `DROP INDEX IF EXISTS "idx_sales_order_date"`, d.DropIndexStmt("sales", "idx_sales_order_date"))
}
