package sqltree

import (
	"bytes"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// statementVerbs are the words MySQL accepts at the head of a statement.
// They are tagged DMLKeyword wherever they appear unquoted.
var statementVerbs = setOf(
	"ALTER", "ANALYZE", "BEGIN", "BINLOG", "CACHE", "CALL", "CHANGE", "CHECK",
	"CHECKSUM", "CLONE", "COMMIT", "CREATE", "DEALLOCATE", "DELETE", "DESC",
	"DESCRIBE", "DO", "DROP", "EXECUTE", "EXPLAIN", "FLUSH", "GRANT", "HANDLER",
	"HELP", "IMPORT", "INSERT", "INSTALL", "KILL", "LOAD", "LOCK", "OPTIMIZE",
	"PREPARE", "PURGE", "RELEASE", "RENAME", "REPAIR", "REPLACE", "RESET",
	"RESTART", "REVOKE", "ROLLBACK", "SAVEPOINT", "SELECT", "SET", "SHOW",
	"SHUTDOWN", "START", "STOP", "TABLE", "TRUNCATE", "UNINSTALL", "UNLOCK",
	"UPDATE", "USE", "VALUES", "WITH", "XA",
)

// extraKeywords are structural words the tokenizer may report as plain
// identifiers.
var extraKeywords = setOf(
	"RECURSIVE", "OUTFILE", "DUMPFILE", "INDEX", "KEY", "JOIN", "FROM", "INTO",
	"WHERE", "UNION", "AS", "ON", "USING", "GROUP", "ORDER", "HAVING", "LIMIT",
)

// callableVerbs double as built-in functions. Followed by "(" they are
// tagged Identifier.
var callableVerbs = setOf("CHECK", "INSERT", "REPLACE", "VALUES")

var operatorText = map[int]string{
	sqlparser.LE:              "<=",
	sqlparser.GE:              ">=",
	sqlparser.NE:              "!=",
	sqlparser.NULL_SAFE_EQUAL: "<=>",
	sqlparser.SHIFT_LEFT:      "<<",
	sqlparser.SHIFT_RIGHT:     ">>",
}

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// lex returns the flat leaf tokens of sql, including "(", ")" and ";".
func lex(sql string) ([]*Token, error) {
	tkn := sqlparser.NewStringTokenizer(sql)
	var leaves []*Token

	// Every Scan consumes at least one byte, so a well-behaved tokenizer
	// finishes well inside this bound.
	limit := 2*len(sql) + 16
	for i := 0; ; i++ {
		if i > limit {
			return nil, &ParseError{Offset: tkn.Position, Msg: "tokenizer made no progress"}
		}
		typ, val := tkn.Scan()
		if typ == 0 {
			break
		}
		if typ == sqlparser.LEX_ERROR {
			return nil, &ParseError{Offset: tkn.Position, Msg: "invalid token " + quoteForError(val)}
		}
		if typ == sqlparser.COMMENT {
			if msg := foreignComment(val); msg != "" {
				return nil, &ParseError{Offset: tkn.Position, Msg: msg}
			}
		}
		leaves = append(leaves, leaf(typ, val, tkn.Position))
	}

	markFunctionCalls(leaves)
	return leaves, nil
}

// foreignComment reports comments the tokenizer accepts but MySQL reads as
// operators. MySQL has no "//" comment, and "--" starts one only when a space
// or control character follows it; "1 --1" is 1 - -1.
func foreignComment(val []byte) string {
	switch {
	case bytes.HasPrefix(val, []byte("//")):
		return "comment form MySQL does not recognise: \"//\""
	case bytes.HasPrefix(val, []byte("--")) && (len(val) < 3 || (val[2] > ' ' && val[2] != 0x7f)):
		return "comment form MySQL does not recognise: \"--\" must be followed by whitespace"
	}
	return ""
}

func leaf(typ int, val []byte, offset int) *Token {
	switch {
	case typ == sqlparser.COMMENT:
		return &Token{Kind: Comment, Text: string(val), Offset: offset}
	case typ == sqlparser.STRING:
		return &Token{Kind: Literal, Text: "'" + strings.ReplaceAll(string(val), "'", "''") + "'", Offset: offset}
	case typ < 256:
		return &Token{Kind: Punctuation, Text: string(rune(typ)), Offset: offset}
	case len(val) == 0:
		// Operators and keyword aliases such as && come back without text.
		if kw := sqlparser.KeywordString(typ); kw != "" {
			return &Token{Kind: Keyword, Text: strings.ToUpper(kw), Offset: offset}
		}
		return &Token{Kind: Punctuation, Text: operatorText[typ], Offset: offset}
	case isWordStart(val[0]):
		return &Token{Kind: wordKind(typ, string(val)), Text: string(val), Offset: offset}
	default:
		// Numbers, hex and bit values, bind variables.
		return &Token{Kind: Literal, Text: string(val), Offset: offset}
	}
}

func wordKind(typ int, text string) Kind {
	upper := strings.ToUpper(text)
	switch {
	case statementVerbs[upper]:
		if typ == sqlparser.ID && lexesAsKeyword(text) {
			// The tokenizer only reports a keyword as ID when it was quoted.
			return Identifier
		}
		return DMLKeyword
	case typ != sqlparser.ID, extraKeywords[upper]:
		return Keyword
	default:
		return Identifier
	}
}

// lexesAsKeyword reports whether the bare word is a tokenizer keyword.
func lexesAsKeyword(word string) bool {
	typ, _ := sqlparser.NewStringTokenizer(word).Scan()
	return typ != sqlparser.ID && typ != sqlparser.LEX_ERROR && typ != 0
}

func isWordStart(b byte) bool {
	return b == '_' || b == '@' || b == '$' || b >= 0x80 ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// markFunctionCalls retags callable verbs used as functions, as in
// REPLACE(name, 'a', 'b').
func markFunctionCalls(leaves []*Token) {
	var prev *Token
	for _, tok := range leaves {
		if tok.IsTrivia() {
			continue
		}
		if prev != nil && prev.Kind == DMLKeyword && tok.IsPunct("(") && callableVerbs[prev.Upper()] {
			prev.Kind = Identifier
		}
		prev = tok
	}
}

func quoteForError(val []byte) string {
	const max = 32
	s := string(val)
	if len(s) > max {
		s = s[:max] + "..."
	}
	return "\"" + s + "\""
}
