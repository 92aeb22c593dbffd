package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/qw4990/sql_advisor/utils"
)

// RetryPolicy bounds the attempts made by Open.
// The wait before retry n is InitialBackoff * 2^(n-1).
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultRetryPolicy retries 3 times, waiting 1s, 2s and 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialBackoff: time.Second}
}

// Open connects to the database and pins one session for the returned Connection.
// Failed attempts are retried with exponential backoff; when all of them fail,
// or ctx ends first, a *ConnectivityError is returned.
func Open(ctx context.Context, driverName, dsn string, policy RetryPolicy) (Connection, error) {
	dialect, err := DialectFor(driverName)
	if err != nil {
		return nil, err
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = time.Millisecond
	}

	var (
		conn     *sqlConnection
		lastErr  error
		attempts int
	)
	backoff := retry.WithMaxRetries(uint64(policy.MaxRetries), retry.NewExponential(policy.InitialBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		c, err := openSession(ctx, dialect, dsn)
		if err != nil {
			lastErr = err
			if attempts <= policy.MaxRetries {
				utils.Warningf("connect to %v failed (%v), retry %d/%d", dialect.Name(), err, attempts, policy.MaxRetries)
			}
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		if lastErr != nil && !errors.Is(err, lastErr) {
			// the context ended while waiting for the next attempt
			err = errors.Join(lastErr, err)
		}
		return nil, &ConnectivityError{Driver: dialect.Name(), Attempts: attempts, Err: err}
	}
	return conn, nil
}

func openSession(ctx context.Context, dialect Dialect, dsn string) (*sqlConnection, error) {
	utils.Debugf("connecting to %v database", dialect.Name())
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, err
	}
	return &sqlConnection{db: db, conn: conn, dialect: dialect}, nil
}

// sqlConnection implements Connection on a dedicated database/sql session,
// so session state such as the current schema survives between calls.
type sqlConnection struct {
	db      *sql.DB
	conn    *sql.Conn
	dialect Dialect
	stats   Stats
}

func (c *sqlConnection) recordStats(startTime time.Time, dur *time.Duration, counter *int) {
	*dur = *dur + time.Since(startTime)
	*counter = *counter + 1
}

// ExecuteQuery runs the query and drains its rows.
func (c *sqlConnection) ExecuteQuery(ctx context.Context, query string, args ...any) (QueryResult, error) {
	defer c.recordStats(time.Now(), &c.stats.QueryTime, &c.stats.QueryCount)
	utils.Debugf("execute query: %v", query)
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return QueryResult{}, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return QueryResult{}, err
	}
	var n int64
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, err
	}
	return QueryResult{Columns: cols, RowCount: n}, nil
}

// Query runs the query and fetches all rows as strings.
func (c *sqlConnection) Query(ctx context.Context, query string, args ...any) (ResultSet, error) {
	defer c.recordStats(time.Now(), &c.stats.QueryTime, &c.stats.QueryCount)
	utils.Debugf("query: %v", query)
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return ResultSet{}, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return ResultSet{}, err
	}
	rs := ResultSet{Columns: cols}
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return ResultSet{}, err
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = v.String
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, err
	}
	return rs, nil
}

// Execute runs a statement that returns no rows.
func (c *sqlConnection) Execute(ctx context.Context, stmt string, args ...any) error {
	defer c.recordStats(time.Now(), &c.stats.ExecuteTime, &c.stats.ExecuteCount)
	utils.Debugf("execute: %v", stmt)
	_, err := c.conn.ExecContext(ctx, stmt, args...)
	return err
}

// CreateIndex executes the given `CREATE INDEX` statement.
func (c *sqlConnection) CreateIndex(ctx context.Context, ddl string) error {
	defer c.recordStats(time.Now(), &c.stats.DDLTime, &c.stats.DDLCount)
	utils.Debugf("create index: %v", ddl)
	_, err := c.conn.ExecContext(ctx, ddl)
	return err
}

// DropIndex drops the index if it exists.
func (c *sqlConnection) DropIndex(ctx context.Context, tableName, indexName string) error {
	defer c.recordStats(time.Now(), &c.stats.DDLTime, &c.stats.DDLCount)
	stmt := c.dialect.DropIndexStmt(tableName, indexName)
	utils.Debugf("drop index: %v", stmt)
	_, err := c.conn.ExecContext(ctx, stmt)
	return err
}

// Commit issues the dialect's commit statement, if it has one.
func (c *sqlConnection) Commit(ctx context.Context) error {
	stmt := c.dialect.CommitStmt()
	if stmt == "" {
		return nil
	}
	return c.Execute(ctx, stmt)
}

// ListTables returns the user tables of the current schema.
func (c *sqlConnection) ListTables(ctx context.Context) ([]string, error) {
	rs, err := c.Query(ctx, c.dialect.ListTablesStmt())
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return firstColumn(rs), nil
}

// ListIndexes returns the names of the indexes defined on the table.
func (c *sqlConnection) ListIndexes(ctx context.Context, tableName string) ([]string, error) {
	rs, err := c.Query(ctx, c.dialect.ListIndexesStmt(), tableName)
	if err != nil {
		return nil, fmt.Errorf("list indexes of %v: %w", tableName, err)
	}
	return firstColumn(rs), nil
}

// ResetCaches runs the dialect's cache reset statements. Every statement is
// attempted; the failures are joined.
func (c *sqlConnection) ResetCaches(ctx context.Context) error {
	var errs []error
	for _, stmt := range c.dialect.ResetCacheStmts() {
		if err := c.Execute(ctx, stmt); err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", stmt, err))
		}
	}
	return errors.Join(errs...)
}

func (c *sqlConnection) Dialect() Dialect {
	return c.dialect
}

// Stats returns the statistics.
func (c *sqlConnection) Stats() Stats {
	return c.stats
}

// ResetStats resets the statistics.
func (c *sqlConnection) ResetStats() {
	c.stats = Stats{}
}

// Close releases the session and the underlying pool.
func (c *sqlConnection) Close() error {
	return errors.Join(c.conn.Close(), c.db.Close())
}

func firstColumn(rs ResultSet) []string {
	out := make([]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		if len(row) > 0 {
			out = append(out, row[0])
		}
	}
	return out
}
