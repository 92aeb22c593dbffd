package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// MaxIdentifierLength is the longest index name accepted by MySQL and MariaDB.
const MaxIdentifierLength = 64

// Query represents a Query statement.
type Query struct {
	Alias      string
	SchemaName string
	Text       string
	Frequency  int
}

// Key returns the key of the Query.
func (q Query) Key() string {
	return q.Text
}

// TableName returns a table name.
type TableName struct {
	SchemaName string
	TableName  string
}

// Key returns the key of the table name.
func (t TableName) Key() string {
	if t.SchemaName == "" {
		return strings.ToLower(t.TableName)
	}
	return strings.ToLower(fmt.Sprintf("%v.%v", t.SchemaName, t.TableName))
}

// Column represents a column of a table.
type Column struct {
	TableName  string
	ColumnName string
}

// NewColumn creates a new column.
func NewColumn(tableName, columnName string) Column {
	return Column{TableName: strings.ToLower(tableName), ColumnName: strings.ToLower(columnName)}
}

// Key returns the key of the column.
func (c Column) Key() string {
	return fmt.Sprintf("%v.%v", c.TableName, c.ColumnName)
}

// String returns the string representation of the column.
func (c Column) String() string {
	return c.Key()
}

// Index represents an index.
type Index struct {
	TableName string
	IndexName string
	Columns   []string
}

// NewIndex creates a new index.
func NewIndex(tableName, indexName string, columns ...string) Index {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = strings.ToLower(c)
	}
	return Index{TableName: strings.ToLower(tableName), IndexName: strings.ToLower(indexName), Columns: cols}
}

// DDL returns the DDL of the index.
func (i Index) DDL() string {
	return fmt.Sprintf("CREATE INDEX %v ON %v (%v);", i.IndexName, i.TableName, strings.Join(i.Columns, ", "))
}

// Key returns the key of the index.
func (i Index) Key() string {
	return fmt.Sprintf("%v(%v)", i.TableName, strings.Join(i.Columns, ","))
}

// PrefixContain returns whether j is a prefix of i.
func (i Index) PrefixContain(j Index) bool {
	if i.TableName != j.TableName || len(i.Columns) < len(j.Columns) {
		return false
	}
	for k := range j.Columns {
		if i.Columns[k] != j.Columns[k] {
			return false
		}
	}
	return true
}

// IndexName returns the deterministic name idx_<table>_<suffix>.
// Names longer than MaxIdentifierLength characters are cut on a character
// boundary and end with a hash of the full name.
func IndexName(tableName, suffix string) string {
	name := strings.ToLower(fmt.Sprintf("idx_%v_%v", tableName, suffix))
	if utf8.RuneCountInString(name) <= MaxIdentifierLength {
		return name
	}
	h := fmt.Sprintf("%016x", xxhash.Sum64String(name))
	runes := []rune(name)
	return string(runes[:MaxIdentifierLength-len(h)-1]) + "_" + h
}

// FormatTable renders rows as left-aligned columns.
func FormatTable(header []string, rows [][]string) string {
	all := make([][]string, 0, len(rows)+1)
	if len(header) > 0 {
		all = append(all, header)
	}
	all = append(all, rows...)
	if len(all) == 0 {
		return ""
	}
	nCols := 0
	for _, r := range all {
		nCols = max(nCols, len(r))
	}
	blank := strings.Repeat(" ", 4)
	lines := make([]string, len(all))
	for c := 0; c < nCols; c++ {
		maxLen := 0
		for r := range all {
			cell := ""
			if c < len(all[r]) {
				cell = all[r][c]
			}
			lines[r] += cell + blank
			maxLen = max(maxLen, utf8.RuneCountInString(lines[r]))
		}
		for r := range all {
			lines[r] += strings.Repeat(" ", maxLen-utf8.RuneCountInString(lines[r]))
		}
	}
	for r := range lines {
		lines[r] = strings.TrimRight(lines[r], " ")
	}
	return strings.Join(lines, "\n")
}
