package advisor

import (
	"strings"
	"unicode"

	"github.com/qw4990/sql_advisor/utils"
)

// IndexSuggestion is a candidate index derived from a query.
type IndexSuggestion struct {
	Index     utils.Index
	Composite bool
	Clause    Clause // clause of the column a single column index was derived from
}

// DDL returns the `CREATE INDEX` statement of the suggestion.
func (s IndexSuggestion) DDL() string {
	return s.Index.DDL()
}

// Key returns the index name, unique within one suggestion pass.
func (s IndexSuggestion) Key() string {
	return s.Index.IndexName
}

// SuggestIndexes returns at most 5 `CREATE INDEX` statements for the query.
// The output is a deterministic function of the query text.
func SuggestIndexes(query string) []string {
	return SuggestionDDLs(SynthesizeIndexes(ExtractColumns(query), DefaultParameter(), nil))
}

// SuggestionDDLs returns the DDL statements of the suggestions, in order.
func SuggestionDDLs(suggestions []IndexSuggestion) []string {
	ddls := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		ddls = append(ddls, s.DDL())
	}
	return ddls
}

// SynthesizeIndexes turns extracted columns into index suggestions.
//
// Single column indexes come first, for WHERE, JOIN, ORDER BY, GROUP BY and
// HAVING columns in that order. They are followed by one composite index made
// of up to 2 WHERE columns and the first ORDER BY column, when the query has
// both on the same table. The result is cut to param.MaxSuggestions.
//
// knownTables, when not empty, lists the tables that exist in the database
// and validates single letter table names.
func SynthesizeIndexes(cols ExtractedColumns, param Parameter, knownTables []string) []IndexSuggestion {
	param = validateParameter(param)
	validated := make(map[string]bool)
	if len(knownTables) > 0 {
		for _, t := range knownTables {
			validated[strings.ToLower(t)] = true
		}
	} else {
		for _, t := range cols.Tables {
			validated[t] = true
		}
	}
	keep := func(c ColumnReference) bool {
		if !isIndexableColumnName(c.ColumnName) {
			utils.Debugf("skip column %v: not an indexable column name", c)
			return false
		}
		if isSuspiciousTable(c.TableName, validated) {
			utils.Debugf("skip column %v: %v looks like an alias rather than a table", c, c.TableName)
			return false
		}
		return true
	}

	suggestions := utils.NewSet[IndexSuggestion]()
	for _, group := range []struct {
		clause Clause
		cols   utils.Set[ColumnReference]
	}{
		{ClauseWhere, cols.Where},
		{ClauseJoinOn, cols.Join},
		{ClauseOrderBy, cols.OrderBy},
		{ClauseGroupBy, cols.GroupBy},
		{ClauseHaving, cols.Having},
	} {
		if group.cols == nil {
			continue
		}
		for _, c := range group.cols.ToList() {
			if !keep(c) {
				continue
			}
			name := utils.IndexName(c.TableName, c.ColumnName)
			suggestions.Add(IndexSuggestion{
				Index:  utils.NewIndex(c.TableName, name, c.ColumnName),
				Clause: group.clause,
			})
		}
	}

	if param.AllowComposite {
		if composite, ok := compositeSuggestion(cols, keep); ok {
			if suggestions.Contains(composite) {
				// a column named "composite" already took the name
				idx := composite.Index
				name := utils.IndexName(idx.TableName, "composite_"+strings.Join(idx.Columns, "_"))
				utils.Debugf("index name %v is taken, name the composite index %v", idx.IndexName, name)
				composite.Index.IndexName = name
			}
			suggestions.Add(composite)
		}
	}

	list := suggestions.ToList()
	if len(list) > param.MaxSuggestions {
		utils.Debugf("keep %d of %d index suggestions", param.MaxSuggestions, len(list))
		list = list[:param.MaxSuggestions]
	}
	return list
}

// compositeSuggestion combines up to 2 WHERE columns with the first ORDER BY
// column, all on the table of that ORDER BY column.
func compositeSuggestion(cols ExtractedColumns, keep func(ColumnReference) bool) (IndexSuggestion, bool) {
	if cols.Where == nil || cols.OrderBy == nil {
		return IndexSuggestion{}, false
	}
	var orderCol *ColumnReference
	for _, c := range cols.OrderBy.ToList() {
		if keep(c) {
			c := c
			orderCol = &c
			break
		}
	}
	if orderCol == nil {
		return IndexSuggestion{}, false
	}

	var columns []string
	for _, c := range cols.Where.ToList() {
		if len(columns) == 2 {
			break
		}
		if c.TableName != orderCol.TableName || c.ColumnName == orderCol.ColumnName || !keep(c) {
			continue
		}
		columns = append(columns, c.ColumnName)
	}
	if len(columns) == 0 {
		return IndexSuggestion{}, false
	}
	columns = append(columns, orderCol.ColumnName)
	name := utils.IndexName(orderCol.TableName, "composite")
	return IndexSuggestion{
		Index:     utils.NewIndex(orderCol.TableName, name, columns...),
		Composite: true,
	}, true
}

// isIndexableColumnName rejects numbers, expressions and literal keywords.
func isIndexableColumnName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == "*" || strings.ContainsAny(name, "()") {
		return false
	}
	switch strings.ToLower(name) {
	case "null", "true", "false":
		return false
	}
	numeric := true
	for _, r := range name {
		if !unicode.IsDigit(r) && r != '.' {
			numeric = false
			break
		}
	}
	return !numeric
}

// isSuspiciousTable reports single letter table names that were not validated,
// which are more likely correlation aliases than real tables.
func isSuspiciousTable(table string, validated map[string]bool) bool {
	if table == PlaceholderTable {
		return false
	}
	return len([]rune(table)) == 1 && !validated[table]
}
