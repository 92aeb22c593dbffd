package advisor

import (
	"strings"

	"github.com/qw4990/sql_advisor/utils"
)

// Clause is the part of a SELECT statement a column is referenced in.
type Clause int

const (
	ClauseNone Clause = iota
	ClauseSelect
	ClauseFrom
	ClauseJoinOn
	ClauseWhere
	ClauseGroupBy
	ClauseHaving
	ClauseOrderBy
	ClauseLimit
)

func (c Clause) String() string {
	switch c {
	case ClauseSelect:
		return "SELECT"
	case ClauseFrom:
		return "FROM"
	case ClauseJoinOn:
		return "JOIN ON"
	case ClauseWhere:
		return "WHERE"
	case ClauseGroupBy:
		return "GROUP BY"
	case ClauseHaving:
		return "HAVING"
	case ClauseOrderBy:
		return "ORDER BY"
	case ClauseLimit:
		return "LIMIT"
	}
	return "NONE"
}

// PlaceholderTable stands in for the table of an unqualified column when the
// query reads from more than one table.
const PlaceholderTable = "<table>"

// ColumnReference is a (table, column) pair found in a query.
type ColumnReference = utils.Column

// ExtractedColumns holds the indexable column references of one query,
// grouped by the clause they were found in. Each set keeps first-seen order.
type ExtractedColumns struct {
	Where   utils.Set[ColumnReference]
	Join    utils.Set[ColumnReference]
	GroupBy utils.Set[ColumnReference]
	OrderBy utils.Set[ColumnReference]
	Having  utils.Set[ColumnReference]

	// Tables are the base tables named in FROM and JOIN, in declaration order.
	Tables []string
	// Aliases maps every alias, and every table name, to its base table.
	Aliases map[string]string
}

// All returns the union of all clauses: WHERE, JOIN, ORDER BY, GROUP BY, then HAVING.
func (e ExtractedColumns) All() utils.Set[ColumnReference] {
	return utils.UnionSet(e.Where, e.Join, e.OrderBy, e.GroupBy, e.Having)
}

// ExtractColumns finds the columns referenced in the WHERE, JOIN ... ON,
// GROUP BY, HAVING and ORDER BY clauses of a SELECT query and resolves their
// table aliases. References that cannot be resolved are dropped. It never fails.
func ExtractColumns(query string) ExtractedColumns {
	return ExtractColumnsWithTables(query, nil)
}

// ExtractColumnsWithTables works like ExtractColumns. When knownTables is not
// empty, references resolving to a table outside of it are dropped as well.
func ExtractColumnsWithTables(query string, knownTables []string) ExtractedColumns {
	w := newColumnWalker(tokenize(query))
	w.walk()
	return w.resolve(knownTables)
}

type parenKind int

const (
	parenGroup parenKind = iota
	parenFunc
	parenSubquery
	parenDerived
)

// scope is one SELECT block: the top-level query or a parenthesized subquery.
type scope struct {
	clause      Clause
	tables      []string
	expectTable bool
	parenBase   int // depth of the paren stack inside this scope's own paren
	funcDepth   int
	transparent int // parens around table factors, as in FROM (a JOIN b)
}

type rawRef struct {
	qualifier string
	column    string
	clause    Clause
	scope     *scope
}

type columnWalker struct {
	toks          []token
	scopes        []*scope
	parens        []parenKind
	aliases       map[string]string
	ambiguous     map[string]bool
	tables        utils.Set[utils.StringKey]
	selectAliases map[string]struct{}
	refs          []rawRef
}

func newColumnWalker(toks []token) *columnWalker {
	return &columnWalker{
		toks:          toks,
		scopes:        []*scope{{}},
		aliases:       make(map[string]string),
		ambiguous:     make(map[string]bool),
		tables:        utils.NewSet[utils.StringKey](),
		selectAliases: make(map[string]struct{}),
	}
}

func (w *columnWalker) tok(i int) token {
	if i < 0 || i >= len(w.toks) {
		return token{kind: tokOther}
	}
	return w.toks[i]
}

func (w *columnWalker) current() *scope {
	return w.scopes[len(w.scopes)-1]
}

func (w *columnWalker) walk() {
	for i := 0; i < len(w.toks); i++ {
		i = w.step(i)
	}
}

// step consumes the token at i, and possibly some following ones, and
// returns the index of the last consumed token.
func (w *columnWalker) step(i int) int {
	t := w.toks[i]
	s := w.current()
	atScopeLevel := len(w.parens) == s.parenBase

	switch t.kind {
	case tokLParen:
		w.openParen(i)
		return i
	case tokRParen:
		return w.closeParen(i)
	case tokComma:
		if atScopeLevel && (s.clause == ClauseFrom || s.clause == ClauseJoinOn) {
			s.clause = ClauseFrom
			s.expectTable = true
		}
		return i
	case tokSemicolon:
		s.clause = ClauseNone
		return i
	}

	if atScopeLevel && t.kind == tokWord {
		if next, ok := w.clauseKeyword(i, s); ok {
			return next
		}
	}

	if s.expectTable {
		if t.isName() {
			return w.declareTable(i, s)
		}
		return i
	}

	if s.clause == ClauseSelect {
		if atScopeLevel {
			return w.selectAlias(i)
		}
		return i
	}

	if t.isName() {
		return w.columnRef(i, s)
	}
	return i
}

// clauseKeyword moves the clause state machine. It reports false when the
// token at i is not a clause keyword.
func (w *columnWalker) clauseKeyword(i int, s *scope) (int, bool) {
	switch w.toks[i].lower {
	case "select":
		s.clause, s.expectTable = ClauseSelect, false
	case "from":
		s.clause, s.expectTable = ClauseFrom, true
	case "join", "straight_join":
		s.clause, s.expectTable = ClauseFrom, true
	case "on":
		if s.clause != ClauseFrom {
			return i, false
		}
		s.clause = ClauseJoinOn
	case "where":
		s.clause, s.expectTable = ClauseWhere, false
	case "group", "order":
		if !w.tok(i + 1).isWord("by") {
			return i, false
		}
		if w.toks[i].lower == "group" {
			s.clause = ClauseGroupBy
		} else {
			s.clause = ClauseOrderBy
		}
		s.expectTable = false
		return i + 1, true
	case "having":
		s.clause, s.expectTable = ClauseHaving, false
	case "limit", "offset", "for", "lock", "into", "window", "procedure":
		s.clause, s.expectTable = ClauseLimit, false
	case "union", "intersect", "except":
		s.clause, s.expectTable = ClauseNone, false
	default:
		return i, false
	}
	return i, true
}

// declareTable reads `[schema.]table [[AS] alias]` starting at i.
func (w *columnWalker) declareTable(i int, s *scope) int {
	j := i
	name := w.toks[i].text
	for w.tok(j+1).is(tokDot) && (w.tok(j+2).is(tokWord) || w.tok(j+2).is(tokQuotedIdent)) {
		j += 2
		name = w.toks[j].text
	}
	table := strings.ToLower(name)
	s.tables = append(s.tables, table)
	s.expectTable = false
	w.tables.Add(utils.StringKey(table))
	w.bindAlias(table, table)

	k := j + 1
	if w.tok(k).isWord("as") {
		k++
	}
	if alias := w.tok(k); alias.isName() {
		w.bindAlias(alias.lower, table)
		return k
	}
	return k - 1
}

// bindAlias maps alias to table. An alias bound to two different tables
// within one query is ambiguous and resolves to nothing.
func (w *columnWalker) bindAlias(alias, table string) {
	if old, ok := w.aliases[alias]; ok && old != table {
		w.ambiguous[alias] = true
		return
	}
	w.aliases[alias] = table
}

func (w *columnWalker) openParen(i int) {
	s := w.current()
	next := w.tok(i + 1)
	if next.isWord("select") || next.isWord("with") {
		kind := parenSubquery
		if s.expectTable {
			kind = parenDerived
			s.expectTable = false
		}
		w.parens = append(w.parens, kind)
		w.scopes = append(w.scopes, &scope{parenBase: len(w.parens)})
		return
	}
	if s.expectTable && len(w.parens) == s.parenBase {
		s.transparent++
		return
	}

	kind := parenGroup
	if prev := w.tok(i - 1); prev.kind == tokWord && (!isReservedWord(prev.lower) || funcLikeKeywords[prev.lower]) {
		kind = parenFunc
		s.funcDepth++
	}
	w.parens = append(w.parens, kind)
}

// funcLikeKeywords are reserved words that are also function names.
var funcLikeKeywords = map[string]bool{
	"left": true, "right": true, "mod": true, "over": true, "values": true, "if": true, "binary": true,
}

func (w *columnWalker) closeParen(i int) int {
	s := w.current()
	if len(w.parens) == s.parenBase {
		if s.transparent > 0 {
			s.transparent--
			return i
		}
		if len(w.scopes) == 1 {
			return i // unbalanced
		}
		w.scopes = w.scopes[:len(w.scopes)-1]
		kind := w.parens[len(w.parens)-1]
		w.parens = w.parens[:len(w.parens)-1]
		if kind == parenDerived {
			return w.derivedAlias(i)
		}
		return i
	}
	kind := w.parens[len(w.parens)-1]
	w.parens = w.parens[:len(w.parens)-1]
	if kind == parenFunc {
		s.funcDepth--
	}
	return i
}

// derivedAlias binds the alias of a derived table to nothing, so that
// references through it are dropped rather than guessed.
func (w *columnWalker) derivedAlias(i int) int {
	k := i + 1
	if w.tok(k).isWord("as") {
		k++
	}
	if alias := w.tok(k); alias.isName() {
		w.bindAlias(alias.lower, "")
		return k
	}
	return i
}

// selectAlias records output column aliases, `expr AS name` or `expr name`.
func (w *columnWalker) selectAlias(i int) int {
	t := w.toks[i]
	if t.isWord("as") {
		if next := w.tok(i + 1); next.isName() || next.is(tokString) {
			w.selectAliases[next.lower] = struct{}{}
			return i + 1
		}
		return i
	}
	if !t.isName() {
		return i
	}
	prev, next := w.tok(i-1), w.tok(i+1)
	prevEndsExpr := prev.is(tokRParen) || prev.is(tokNumber) || prev.is(tokString) || prev.isName() || prev.isWord("end")
	nextEndsItem := next.is(tokComma) || next.isWord("from") || i+1 >= len(w.toks)
	if prevEndsExpr && nextEndsItem {
		w.selectAliases[t.lower] = struct{}{}
	}
	return i
}

// columnRef reads `col`, `qualifier.col` or `schema.qualifier.col` at i.
func (w *columnWalker) columnRef(i int, s *scope) int {
	start, end := i, i
	qualifier, column := "", w.toks[i].text
	if w.tok(i + 1).is(tokDot) {
		second := w.tok(i + 2)
		switch {
		case second.is(tokStar):
			return i + 2
		case second.is(tokWord) || second.is(tokQuotedIdent):
			qualifier, column, end = w.toks[i].text, second.text, i+2
			if third := w.tok(i + 4); w.tok(i+3).is(tokDot) && (third.is(tokWord) || third.is(tokQuotedIdent)) {
				qualifier, column, end = second.text, third.text, i+4
			}
		default:
			return i + 1
		}
	}
	next := w.tok(end + 1)
	if next.is(tokLParen) || (qualifier == "" && next.is(tokString)) {
		return end // function call or typed literal such as DATE '2022-01-01'
	}
	if s.funcDepth > 0 {
		return end // argument of a function, not indexable as is
	}

	eligible := false
	switch s.clause {
	case ClauseWhere, ClauseHaving, ClauseJoinOn:
		eligible = w.isPredicateOperand(start, end)
	case ClauseGroupBy, ClauseOrderBy:
		eligible = w.isBareItem(start, end)
	}
	if eligible {
		w.refs = append(w.refs, rawRef{qualifier: qualifier, column: column, clause: s.clause, scope: s})
	}
	return end
}

var comparisonOperators = map[string]bool{
	"=": true, "<": true, ">": true, "<=": true, ">=": true, "<>": true, "!=": true, "<=>": true,
}

var predicateKeywords = map[string]bool{
	"between": true, "in": true, "like": true, "is": true, "not": true, "regexp": true, "rlike": true,
}

func isArithmetic(t token) bool {
	if t.is(tokStar) {
		return true
	}
	if !t.is(tokOperator) {
		return false
	}
	switch t.text {
	case "+", "-", "/", "%", "^", "|", "&", "||", "->", "->>":
		return true
	}
	return false
}

// isPredicateOperand reports whether the reference spanning start..end is a
// direct operand of a comparison, as in `t.c = ?`, `? < t.c` or `t.c IN (...)`.
func (w *columnWalker) isPredicateOperand(start, end int) bool {
	prev, next := w.tok(start-1), w.tok(end+1)
	if isArithmetic(prev) || isArithmetic(next) {
		return false
	}
	if next.is(tokOperator) && comparisonOperators[next.text] {
		return true
	}
	if next.kind == tokWord && predicateKeywords[next.lower] {
		return true
	}
	if prev.is(tokOperator) && comparisonOperators[prev.text] {
		return true
	}
	return prev.isWord("between")
}

var itemTerminators = map[string]bool{
	"asc": true, "desc": true, "nulls": true, "with": true, "limit": true, "having": true, "order": true,
	"union": true, "intersect": true, "except": true, "window": true, "for": true, "into": true,
	"lock": true, "offset": true, "collate": true,
}

// isBareItem reports whether the reference is a whole GROUP BY / ORDER BY item.
func (w *columnWalker) isBareItem(start, end int) bool {
	prev, next := w.tok(start-1), w.tok(end+1)
	if !(prev.isWord("by") || prev.is(tokComma)) {
		return false
	}
	if end+1 >= len(w.toks) || next.is(tokComma) || next.is(tokSemicolon) || next.is(tokRParen) {
		return true
	}
	return next.kind == tokWord && itemTerminators[next.lower]
}

func (w *columnWalker) resolve(knownTables []string) ExtractedColumns {
	result := ExtractedColumns{
		Where:   utils.NewSet[ColumnReference](),
		Join:    utils.NewSet[ColumnReference](),
		GroupBy: utils.NewSet[ColumnReference](),
		OrderBy: utils.NewSet[ColumnReference](),
		Having:  utils.NewSet[ColumnReference](),
		Tables:  w.tables.ToKeyList(),
		Aliases: make(map[string]string),
	}
	for alias, table := range w.aliases {
		if table != "" && !w.ambiguous[alias] {
			result.Aliases[alias] = table
		}
	}
	known := make(map[string]bool, len(knownTables))
	for _, t := range knownTables {
		known[strings.ToLower(t)] = true
	}

	for _, r := range w.refs {
		column := strings.ToLower(r.column)
		var table string
		if r.qualifier != "" {
			q := strings.ToLower(r.qualifier)
			t, ok := result.Aliases[q]
			if !ok {
				utils.Debugf("drop %v.%v: %v is not a table of this query", r.qualifier, r.column, r.qualifier)
				continue
			}
			table = t
		} else {
			if _, ok := w.selectAliases[column]; ok {
				continue // output alias such as COUNT(*) AS total
			}
			table = PlaceholderTable
			if len(r.scope.tables) == 1 {
				table = r.scope.tables[0]
			}
		}
		if len(known) > 0 && table != PlaceholderTable && !known[table] {
			utils.Debugf("drop %v.%v: table %v does not exist", table, column, table)
			continue
		}

		ref := utils.NewColumn(table, column)
		switch r.clause {
		case ClauseWhere:
			result.Where.Add(ref)
		case ClauseJoinOn:
			result.Join.Add(ref)
		case ClauseGroupBy:
			result.GroupBy.Add(ref)
		case ClauseOrderBy:
			result.OrderBy.Add(ref)
		case ClauseHaving:
			result.Having.Add(ref)
		}
	}
	return result
}
