package advisor

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokWord        tokenKind = iota // keyword or bare identifier
	tokQuotedIdent                  // `ident`, or "ident" in name position
	tokString                       // 'text' or "text"
	tokNumber
	tokOperator
	tokLParen
	tokRParen
	tokComma
	tokDot
	tokStar
	tokSemicolon
	tokOther
)

type token struct {
	kind  tokenKind
	text  string // original text, without quotes for quoted identifiers and strings
	lower string

	doubleQuoted bool
}

func (t token) is(kind tokenKind) bool {
	return t.kind == kind
}

// isWord reports whether t is the bare word w, compared case-insensitively.
func (t token) isWord(w string) bool {
	return t.kind == tokWord && t.lower == w
}

// isName reports whether t can name a table, an alias or a column.
func (t token) isName() bool {
	return t.kind == tokQuotedIdent || (t.kind == tokWord && !isReservedWord(t.lower))
}

var multiCharOperators = []string{"<=>", "<=", ">=", "<>", "!=", "||", "&&", ":=", "::", "->>", "->"}

// tokenize splits a SQL text into tokens. Comments are dropped.
// It never fails: unterminated quotes and comments run to the end of the input.
func tokenize(sql string) []token {
	rs := []rune(sql)
	n := len(rs)
	var toks []token
	emit := func(kind tokenKind, text string) {
		toks = append(toks, token{kind: kind, text: text, lower: strings.ToLower(text)})
	}

	for i := 0; i < n; {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '-' && i+1 < n && rs[i+1] == '-', c == '#':
			for i < n && rs[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && rs[i+1] == '*':
			i += 2
			for i < n && !(rs[i] == '*' && i+1 < n && rs[i+1] == '/') {
				i++
			}
			i = min(i+2, n)
		case c == '\'':
			text, next := scanQuoted(rs, i, c, true)
			emit(tokString, text)
			i = next
		case c == '"':
			text, next := scanQuoted(rs, i, c, true)
			emit(tokString, text)
			toks[len(toks)-1].doubleQuoted = true
			i = next
		case c == '`':
			text, next := scanQuoted(rs, i, c, false)
			emit(tokQuotedIdent, text)
			i = next
		case unicode.IsDigit(c) || (c == '.' && i+1 < n && unicode.IsDigit(rs[i+1]) && !prevIsName(toks)):
			j := i
			for j < n && (isWordRune(rs[j]) || rs[j] == '.' ||
				((rs[j] == '+' || rs[j] == '-') && j > i && (rs[j-1] == 'e' || rs[j-1] == 'E'))) {
				j++
			}
			emit(tokNumber, string(rs[i:j]))
			i = j
		case isWordRune(c):
			j := i
			for j < n && isWordRune(rs[j]) {
				j++
			}
			emit(tokWord, string(rs[i:j]))
			i = j
		case c == '@':
			j := i + 1
			for j < n && (isWordRune(rs[j]) || rs[j] == '@' || rs[j] == '.') {
				j++
			}
			emit(tokOther, string(rs[i:j]))
			i = j
		case c == '(':
			emit(tokLParen, "(")
			i++
		case c == ')':
			emit(tokRParen, ")")
			i++
		case c == ',':
			emit(tokComma, ",")
			i++
		case c == '.':
			emit(tokDot, ".")
			i++
		case c == '*':
			emit(tokStar, "*")
			i++
		case c == ';':
			emit(tokSemicolon, ";")
			i++
		case strings.ContainsRune("=<>!|&:+-/%^~", c):
			op := string(c)
			for _, m := range multiCharOperators {
				if i+len(m) <= n && string(rs[i:i+len(m)]) == m {
					op = m
					break
				}
			}
			emit(tokOperator, op)
			i += len([]rune(op))
		default:
			emit(tokOther, string(c))
			i++
		}
	}
	resolveDoubleQuoted(toks)
	return toks
}

// resolveDoubleQuoted turns "text" into an identifier where only a name can
// stand: next to a dot, after FROM, JOIN, AS or BY, and as the left operand
// of a predicate. Anywhere else it stays a string literal.
func resolveDoubleQuoted(toks []token) {
	for i := range toks {
		if !toks[i].doubleQuoted {
			continue
		}
		var prev, next token
		if i > 0 {
			prev = toks[i-1]
		}
		if i+1 < len(toks) {
			next = toks[i+1]
		}
		if isDoubleQuotedName(prev, next) {
			toks[i].kind = tokQuotedIdent
		}
	}
}

func isDoubleQuotedName(prev, next token) bool {
	if prev.is(tokDot) || next.is(tokDot) {
		return true
	}
	if prev.kind != tokWord {
		return false
	}
	switch prev.lower {
	case "from", "join", "as", "by", "update", "into":
		return true
	case "where", "and", "or", "not", "on", "having":
		if next.is(tokOperator) && comparisonOperators[next.text] {
			return true
		}
		return next.kind == tokWord && predicateKeywords[next.lower]
	}
	return false
}

// scanQuoted reads a quoted section starting at rs[start] == quote.
// A doubled quote is an escaped quote; backslash escapes apply to strings only.
func scanQuoted(rs []rune, start int, quote rune, backslash bool) (string, int) {
	var sb strings.Builder
	i := start + 1
	for i < len(rs) {
		c := rs[i]
		if backslash && c == '\\' && i+1 < len(rs) {
			sb.WriteRune(rs[i+1])
			i += 2
			continue
		}
		if c == quote {
			if i+1 < len(rs) && rs[i+1] == quote {
				sb.WriteRune(quote)
				i += 2
				continue
			}
			return sb.String(), i + 1
		}
		sb.WriteRune(c)
		i++
	}
	return sb.String(), i
}

func isWordRune(c rune) bool {
	return c == '_' || c == '$' || unicode.IsLetter(c) || unicode.IsDigit(c)
}

func prevIsName(toks []token) bool {
	if len(toks) == 0 {
		return false
	}
	k := toks[len(toks)-1].kind
	return k == tokWord || k == tokQuotedIdent || k == tokRParen
}

// reservedWords never name a column or a table alias.
var reservedWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		select from where and or not in is null true false like between exists
		group by order having limit offset join inner left right full outer cross natural
		straight_join on using as asc desc distinct distinctrow all any some case when then else end
		union intersect except interval escape regexp rlike div mod xor with rollup recursive
		nulls for update lock window over partition into values set
		use force ignore index sql_no_cache sql_cache sql_calc_found_rows high_priority
		binary collate unknown current_date current_time current_timestamp localtime localtimestamp
		current_user utc_date utc_time utc_timestamp`) {
		reservedWords[w] = struct{}{}
	}
}

func isReservedWord(lower string) bool {
	_, ok := reservedWords[lower]
	return ok
}
