package advisor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/qw4990/sql_advisor/database"
	"github.com/qw4990/sql_advisor/utils"
)

// QueryKind is a coarse classification of a query.
type QueryKind string

const (
	QueryJoin        QueryKind = "join"
	QueryAggregation QueryKind = "aggregation"
	QueryFilter      QueryKind = "filter"
	QuerySimple      QueryKind = "simple"
)

// DetectQueryKind classifies the query by its first matching construct:
// a JOIN, then a GROUP BY, then a WHERE. Keywords in strings and comments are ignored.
func DetectQueryKind(query string) QueryKind {
	var hasJoin, hasGroupBy, hasWhere bool
	toks := tokenize(query)
	for i, t := range toks {
		switch {
		case t.isWord("join"):
			hasJoin = true
		case t.isWord("group") && i+1 < len(toks) && toks[i+1].isWord("by"):
			hasGroupBy = true
		case t.isWord("where"):
			hasWhere = true
		}
	}
	switch {
	case hasJoin:
		return QueryJoin
	case hasGroupBy:
		return QueryAggregation
	case hasWhere:
		return QueryFilter
	}
	return QuerySimple
}

// TableSize is a coarse classification of a table by row count.
type TableSize string

const (
	TableSmall   TableSize = "small"
	TableMedium  TableSize = "medium"
	TableLarge   TableSize = "large"
	TableUnknown TableSize = "unknown"
)

// Row count bounds of the table sizes.
const (
	SmallTableRows  = 100_000
	MediumTableRows = 1_000_000
)

// ClassifyTableSize maps a row count to a TableSize.
func ClassifyTableSize(rows int64) TableSize {
	switch {
	case rows < SmallTableRows:
		return TableSmall
	case rows < MediumTableRows:
		return TableMedium
	}
	return TableLarge
}

// DetectTableSize counts the rows of the table.
func DetectTableSize(ctx context.Context, conn database.Connection, table string) (TableSize, int64, error) {
	rs, err := conn.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %v", table))
	if err != nil {
		return TableUnknown, 0, fmt.Errorf("count rows of %v: %w", table, err)
	}
	if len(rs.Rows) == 0 || len(rs.Rows[0]) == 0 {
		return TableUnknown, 0, fmt.Errorf("count rows of %v: empty result", table)
	}
	rows, err := strconv.ParseInt(strings.TrimSpace(rs.Rows[0][0]), 10, 64)
	if err != nil {
		return TableUnknown, 0, fmt.Errorf("count rows of %v: %w", table, err)
	}
	return ClassifyTableSize(rows), rows, nil
}

// StrategyMode decides how far an automatic pass goes.
type StrategyMode string

const (
	AnalyzeOnly  StrategyMode = "analyze_only"  // report only, never touch the schema
	LightIndexes StrategyMode = "light_indexes" // apply single column indexes
	FullOptimize StrategyMode = "full_optimize" // apply every suggestion, composite included
)

// Strategy is the automatic choice for one query.
type Strategy struct {
	Mode      StrategyMode
	Kind      QueryKind
	Size      TableSize
	Table     string // the largest table of the query
	TableRows int64
}

// ApplyChanges reports whether the strategy creates indexes.
func (s Strategy) ApplyChanges() bool {
	return s.Mode != AnalyzeOnly
}

// Apply adjusts the parameters to the strategy.
func (s Strategy) Apply(p Parameter) Parameter {
	if s.Mode == LightIndexes {
		p.AllowComposite = false
	}
	return p
}

func (s Strategy) String() string {
	return fmt.Sprintf("%v (query kind: %v, table %v: %v rows, %v)", s.Mode, s.Kind, s.Table, s.TableRows, s.Size)
}

// ChooseStrategy picks the strategy from the size of the largest table of the
// query and the query kind. Small tables are only analyzed. Medium tables get
// light indexes for filters and aggregations. Large tables and joins get the
// full treatment. Anything else falls back to light indexes.
func ChooseStrategy(ctx context.Context, conn database.Connection, query string) Strategy {
	s := Strategy{Kind: DetectQueryKind(query), Size: TableUnknown}
	for _, table := range ExtractColumns(query).Tables {
		size, rows, err := DetectTableSize(ctx, conn, table)
		if err != nil {
			utils.Warningf("cannot detect table size: %v", err)
			continue
		}
		if s.Size == TableUnknown || rows > s.TableRows {
			s.Table, s.Size, s.TableRows = table, size, rows
		}
	}

	switch {
	case s.Size == TableSmall:
		s.Mode = AnalyzeOnly
	case s.Size == TableMedium && (s.Kind == QueryFilter || s.Kind == QueryAggregation):
		s.Mode = LightIndexes
	case s.Size == TableLarge || s.Kind == QueryJoin:
		s.Mode = FullOptimize
	default:
		s.Mode = LightIndexes
	}
	utils.Debugf("strategy: %v", s)
	return s
}
