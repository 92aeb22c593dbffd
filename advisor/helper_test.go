package advisor

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/qw4990/sql_advisor/database"
)

// fakeConn is a scripted database.Connection.
type fakeConn struct {
	dialect database.Dialect

	rowCount   int64
	execErr    error
	results    map[string]database.ResultSet // by statement text
	queryErrs  map[string]error
	createErrs map[string]error // by DDL
	dropErr    error
	tables     []string

	executed []string
	indexes  []string // names of indexes currently defined
	commits  int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		dialect:    database.MySQLDialect{},
		rowCount:   1,
		results:    make(map[string]database.ResultSet),
		queryErrs:  make(map[string]error),
		createErrs: make(map[string]error),
	}
}

func (c *fakeConn) ExecuteQuery(_ context.Context, sql string, _ ...any) (database.QueryResult, error) {
	c.executed = append(c.executed, sql)
	if c.execErr != nil {
		return database.QueryResult{}, c.execErr
	}
	return database.QueryResult{Columns: []string{"c"}, RowCount: c.rowCount}, nil
}

func (c *fakeConn) Query(_ context.Context, sql string, _ ...any) (database.ResultSet, error) {
	if err, ok := c.queryErrs[sql]; ok {
		return database.ResultSet{}, err
	}
	if rs, ok := c.results[sql]; ok {
		return rs, nil
	}
	return database.ResultSet{}, errors.New("unexpected query: " + sql)
}

func (c *fakeConn) Execute(_ context.Context, sql string, _ ...any) error {
	c.executed = append(c.executed, sql)
	return nil
}

func (c *fakeConn) CreateIndex(_ context.Context, ddl string) error {
	if err, ok := c.createErrs[ddl]; ok {
		return err
	}
	// CREATE INDEX <name> ON ...
	fields := strings.Fields(ddl)
	c.indexes = append(c.indexes, fields[2])
	return nil
}

func (c *fakeConn) DropIndex(_ context.Context, _, indexName string) error {
	if c.dropErr != nil {
		return c.dropErr
	}
	c.indexes = slices.DeleteFunc(c.indexes, func(n string) bool { return n == indexName })
	return nil
}

func (c *fakeConn) Commit(context.Context) error {
	c.commits++
	return nil
}

func (c *fakeConn) ListTables(context.Context) ([]string, error) {
	return c.tables, nil
}

func (c *fakeConn) ListIndexes(context.Context, string) ([]string, error) {
	return slices.Clone(c.indexes), nil
}

func (c *fakeConn) ResetCaches(context.Context) error {
	return nil
}

func (c *fakeConn) Dialect() database.Dialect {
	return c.dialect
}

func (c *fakeConn) Stats() database.Stats {
	return database.Stats{}
}

func (c *fakeConn) ResetStats() {}

func (c *fakeConn) Close() error {
	return nil
}

// mysqlPlan builds a traditional MySQL EXPLAIN result.
func mysqlPlan(rows ...[]string) database.ResultSet {
	return database.ResultSet{
		Columns: []string{"id", "select_type", "table", "type", "possible_keys", "key", "rows", "Extra"},
		Rows:    rows,
	}
}

// scriptedClock makes every measured run last the next scripted duration.
// measure reads the clock twice per run; later reads just return the current time.
type scriptedClock struct {
	t       time.Time
	elapsed []time.Duration
	calls   int
}

func newScriptedClock(elapsed ...time.Duration) *scriptedClock {
	return &scriptedClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), elapsed: elapsed}
}

func (c *scriptedClock) now() time.Time {
	if c.calls%2 == 1 && len(c.elapsed) > 0 {
		c.t = c.t.Add(c.elapsed[0])
		c.elapsed = c.elapsed[1:]
	}
	c.calls++
	return c.t
}

// mapCache is a ResultCache backed by a map.
type mapCache struct {
	m       map[string]*OptimizationResult
	cleared int
}

func newMapCache() *mapCache {
	return &mapCache{m: make(map[string]*OptimizationResult)}
}

func (c *mapCache) Get(k string) (*OptimizationResult, bool) {
	r, ok := c.m[k]
	return r, ok
}

func (c *mapCache) Set(k string, r *OptimizationResult) bool {
	c.m[k] = r
	return true
}

func (c *mapCache) Clear() {
	c.m = make(map[string]*OptimizationResult)
	c.cleared++
}
