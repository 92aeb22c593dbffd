package utils

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pingcap/parser"
	"github.com/pingcap/parser/ast"
	_ "github.com/pingcap/tidb/types/parser_driver"
)

type StmtType int

const (
	StmtSelect StmtType = iota
	StmtCreateIndex
	StmtDropIndex
	StmtCreateTable
	StmtUseDB
	StmtUnknown
)

func (t StmtType) String() string {
	switch t {
	case StmtSelect:
		return "select"
	case StmtCreateIndex:
		return "create-index"
	case StmtDropIndex:
		return "drop-index"
	case StmtCreateTable:
		return "create-table"
	case StmtUseDB:
		return "use"
	}
	return "unknown"
}

// GetStmtType returns the type of the given statement.
// Statements the parser rejects are classified by their leading keywords.
func GetStmtType(stmt string) StmtType {
	if node, err := ParseOneSQL(stmt); err == nil {
		switch node.(type) {
		case *ast.CreateIndexStmt:
			return StmtCreateIndex
		case *ast.DropIndexStmt:
			return StmtDropIndex
		case *ast.CreateTableStmt:
			return StmtCreateTable
		case *ast.UseStmt:
			return StmtUseDB
		}
		if _, ok := node.(ast.ResultSetNode); ok {
			return StmtSelect
		}
		return StmtUnknown
	}

	fields := strings.Fields(strings.ToLower(stmt))
	hasPrefix := func(words ...string) bool {
		if len(fields) < len(words) {
			return false
		}
		for i, w := range words {
			if fields[i] != w {
				return false
			}
		}
		return true
	}
	switch {
	case hasPrefix("select"), hasPrefix("with"):
		return StmtSelect
	case hasPrefix("create", "index"), hasPrefix("create", "unique", "index"):
		return StmtCreateIndex
	case hasPrefix("drop", "index"):
		return StmtDropIndex
	case hasPrefix("create", "table"):
		return StmtCreateTable
	case hasPrefix("use"):
		return StmtUseDB
	}
	return StmtUnknown
}

// ParseOneSQL parses the given Query text and returns the AST.
func ParseOneSQL(sqlText string) (ast.StmtNode, error) {
	p := parser.New()
	return p.ParseOneStmt(sqlText, "", "")
}

// NormalizeQuery replaces literals with placeholders and canonicalizes
// whitespace and keyword case. It works on text the parser cannot parse.
func NormalizeQuery(sqlText string) string {
	return parser.Normalize(sqlText)
}

// Fingerprint returns a stable identifier of the normalized query text.
// Queries that differ only in literal values share a fingerprint.
func Fingerprint(sqlText string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(NormalizeQuery(sqlText)))
}

// ParseCreateIndexStmt parses a `CREATE INDEX` statement into an Index.
// Expression index parts are rejected.
func ParseCreateIndexStmt(ddl string) (Index, error) {
	node, err := ParseOneSQL(ddl)
	if err != nil {
		return Index{}, err
	}
	stmt, ok := node.(*ast.CreateIndexStmt)
	if !ok {
		return Index{}, fmt.Errorf("not a CREATE INDEX statement: %v", ddl)
	}
	var cols []string
	for _, part := range stmt.IndexPartSpecifications {
		if part.Column == nil {
			return Index{}, fmt.Errorf("expression index parts are not supported: %v", ddl)
		}
		cols = append(cols, part.Column.Name.O)
	}
	return NewIndex(stmt.Table.Name.O, stmt.IndexName, cols...), nil
}

type tableNameCollector struct {
	defaultSchemaName string
	tableNames        Set[TableName]
	cteNames          Set[TableName]
}

func (c *tableNameCollector) Enter(n ast.Node) (out ast.Node, skipChildren bool) {
	switch x := n.(type) {
	case *ast.WithClause:
		for _, cte := range x.CTEs {
			c.cteNames.Add(TableName{SchemaName: c.defaultSchemaName, TableName: cte.Name.String()})
		}
	case *ast.TableName:
		var t TableName
		if x.Schema.L == "" {
			t = TableName{SchemaName: c.defaultSchemaName, TableName: x.Name.String()}
		} else {
			t = TableName{SchemaName: x.Schema.O, TableName: x.Name.String()}
		}
		if !c.cteNames.Contains(t) {
			c.tableNames.Add(t)
		}
	}
	return n, false
}

func (c *tableNameCollector) Leave(n ast.Node) (out ast.Node, ok bool) {
	return n, true
}

// CollectTableNamesFromSQL returns all referenced table names in the given Query text.
// CTE names are excluded.
func CollectTableNamesFromSQL(defaultSchemaName, sqlText string) (Set[TableName], error) {
	node, err := ParseOneSQL(sqlText)
	if err != nil {
		return nil, err
	}
	c := &tableNameCollector{
		defaultSchemaName: defaultSchemaName,
		tableNames:        NewSet[TableName](),
		cteNames:          NewSet[TableName]()}
	node.Accept(c)
	return c.tableNames, nil
}

// IsSystemTableName returns whether the given table lives in a system schema
// of MySQL, MariaDB, PostgreSQL or SQLite.
func IsSystemTableName(t TableName) bool {
	schemaName := strings.ToLower(t.SchemaName)
	switch schemaName {
	case "information_schema", "performance_schema", "mysql", "sys", "pg_catalog":
		return true
	}
	return strings.HasPrefix(strings.ToLower(t.TableName), "sqlite_")
}
