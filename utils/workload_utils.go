package utils

import (
	"fmt"
	"strings"
)

// FilterBySQLAlias filters Queries by their alias.
func FilterBySQLAlias(sqls Set[Query], alias []string) Set[Query] {
	aliasMap := make(map[string]struct{})
	for _, a := range alias {
		aliasMap[strings.TrimSpace(a)] = struct{}{}
	}

	filtered := NewSet[Query]()
	for _, sql := range sqls.ToList() {
		if _, ok := aliasMap[sql.Alias]; ok {
			filtered.Add(sql)
		}
	}
	return filtered
}

// FilterSelectQueries keeps the queries that read data: SELECT statements and
// WITH queries. Anything else is dropped with a warning.
func FilterSelectQueries(sqls Set[Query]) Set[Query] {
	filtered := NewSet[Query]()
	for _, sql := range sqls.ToList() {
		if tp := GetStmtType(sql.Text); tp != StmtSelect {
			Warningf("skip query %v: %v statements are not analyzed", sql.Alias, tp)
			continue
		}
		filtered.Add(sql)
	}
	return filtered
}

// FilterSystemQueries drops queries that access system tables.
// Queries the parser cannot handle are kept.
func FilterSystemQueries(sqls Set[Query]) Set[Query] {
	filtered := NewSet[Query]()
	for _, sql := range sqls.ToList() {
		tables, err := CollectTableNamesFromSQL(sql.SchemaName, sql.Text)
		if err != nil {
			filtered.Add(sql)
			continue
		}
		system := false
		for _, t := range tables.ToList() {
			if IsSystemTableName(t) {
				system = true
				break
			}
		}
		if system {
			Debugf("skip query %v accessing system tables", sql.Alias)
			continue
		}
		filtered.Add(sql)
	}
	return filtered
}

// CompressQueries merges queries sharing a fingerprint into one entry whose
// frequency is the sum of the merged frequencies. The first query of each
// fingerprint is kept as the representative.
func CompressQueries(sqls Set[Query]) Set[Query] {
	type group struct {
		q    Query
		freq int
	}
	var order []string
	groups := make(map[string]*group)
	for _, sql := range sqls.ToList() {
		fp := Fingerprint(sql.Text)
		freq := sql.Frequency
		if freq <= 0 {
			freq = 1
		}
		if g, ok := groups[fp]; ok {
			g.freq += freq
			continue
		}
		groups[fp] = &group{q: sql, freq: freq}
		order = append(order, fp)
	}
	compressed := NewSet[Query]()
	for _, fp := range order {
		g := groups[fp]
		g.q.Frequency = g.freq
		compressed.Add(g.q)
	}
	if compressed.Size() < sqls.Size() {
		Infof("compress %d queries into %d by fingerprint", sqls.Size(), compressed.Size())
	}
	return compressed
}

// LoadQueries loads queries from the given path, which is either a directory
// holding one query per *.sql file or a single file of ';'-separated queries.
func LoadQueries(schemaName, queryPath string) (Set[Query], error) {
	queries := NewSet[Query]()
	exist, isDir := FileExists(queryPath)
	switch {
	case exist && isDir:
		rawSQLs, names, err := ParseRawSQLsFromDir(queryPath)
		if err != nil {
			return nil, err
		}
		for i, rawSQL := range rawSQLs {
			queries.Add(Query{
				Alias:      strings.Split(names[i], ".")[0], // q1.sql, 2a.sql, etc.
				SchemaName: schemaName,
				Text:       rawSQL,
				Frequency:  1,
			})
		}
		Infof("load %d queries from dir %s", len(rawSQLs), queryPath)
	case exist:
		rawSQLs, err := ParseRawSQLsFromFile(queryPath)
		if err != nil {
			return nil, err
		}
		for i, rawSQL := range rawSQLs {
			queries.Add(Query{
				Alias:      fmt.Sprintf("q%v", i+1),
				SchemaName: schemaName,
				Text:       rawSQL,
				Frequency:  1,
			})
		}
		Infof("load %d queries from %s", len(rawSQLs), queryPath)
	default:
		return nil, fmt.Errorf("can not find queries directory or file %s", queryPath)
	}
	return queries, nil
}

// NewQueries wraps raw query texts into a query set with aliases q1, q2, ...
func NewQueries(schemaName string, rawSQLs ...string) Set[Query] {
	queries := NewSet[Query]()
	for i, rawSQL := range rawSQLs {
		queries.Add(Query{
			Alias:      fmt.Sprintf("q%v", i+1),
			SchemaName: schemaName,
			Text:       strings.TrimSuffix(strings.TrimSpace(rawSQL), ";"),
			Frequency:  1,
		})
	}
	return queries
}
