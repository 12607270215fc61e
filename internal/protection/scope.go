package protection

import (
	"fmt"
	"strings"

	"github.com/rickchristie/mysql-mcp/internal/sqltree"
)

// tableRefKeywords introduce a table reference that may be database-qualified.
var tableRefKeywords = map[string]bool{
	"FROM": true, "JOIN": true, "STRAIGHT_JOIN": true, "INTO": true, "UPDATE": true, "TABLE": true,
}

// tableListKeywords open a comma-separated list of table references.
var tableListKeywords = map[string]bool{
	"FROM": true, "JOIN": true, "STRAIGHT_JOIN": true, "UPDATE": true,
}

// fromFunctions take FROM inside their argument list, as in
// EXTRACT(YEAR FROM t.created_at). That FROM is not a table reference.
var fromFunctions = map[string]bool{
	"EXTRACT": true, "TRIM": true, "SUBSTRING": true, "SUBSTR": true, "POSITION": true,
}

// tableFirstShows name a table in their first FROM/IN clause and a database
// in the second, as in SHOW COLUMNS FROM users FROM shop.
var tableFirstShows = map[string]bool{
	"COLUMNS": true, "FIELDS": true, "INDEX": true, "INDEXES": true, "KEYS": true,
}

// scopeList is one token list to scan: the statement itself or the children
// of a parenthesised group.
type scopeList struct {
	tokens []*sqltree.Token
	// tableList is set for groups in table-reference position, as in
	// FROM (db.t) or JOIN (a, db.b).
	tableList  bool
	inFunction bool
}

// scanScope returns a reason if stmt switches databases or names a database
// other than database.
func scanScope(stmt *sqltree.Statement, database string) (string, bool) {
	if r := scanStatementHead(stmt.Significant(), database); r != "" {
		return r, true
	}
	stack := []scopeList{{tokens: stmt.Tokens}}
	for len(stack) > 0 {
		l := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		reason, nested := scanScopeList(l, database)
		if reason != "" {
			return reason, true
		}
		for i := len(nested) - 1; i >= 0; i-- {
			stack = append(stack, nested[i])
		}
	}
	return "", false
}

// scanStatementHead checks the names that metadata commands take without a
// table-reference keyword: DESCRIBE db.t, EXPLAIN db.t and the database
// clauses of SHOW.
func scanStatementHead(sig []*sqltree.Token, database string) string {
	head := at(sig, 0)
	if head == nil {
		return ""
	}
	switch {
	case head.Is("DESCRIBE"), head.Is("DESC"), head.Is("EXPLAIN"):
		return checkQualifier(sig, 1, database)
	case head.Is("SHOW"):
		return scanShow(sig, database)
	}
	return ""
}

func scanShow(sig []*sqltree.Token, database string) string {
	tableFirst := false
	for _, tok := range sig[1:] {
		if tok.Is("FROM") || tok.Is("IN") {
			break
		}
		if tok.IsWord() && tableFirstShows[tok.Upper()] {
			tableFirst = true
		}
	}

	for i, tok := range sig {
		switch {
		case tok.Is("DATABASE"), tok.Is("SCHEMA"):
			next := i + 1
			if t := at(sig, next); t != nil && t.Is("IF") {
				next += 2 // IF NOT EXISTS
			}
			if r := checkDatabaseName(sig, next, database); r != "" {
				return r
			}
		case tok.Is("FROM"), tok.Is("IN"):
			if tableFirst {
				tableFirst = false
				if r := checkQualifier(sig, i+1, database); r != "" {
					return r
				}
				continue
			}
			if r := checkDatabaseName(sig, i+1, database); r != "" {
				return r
			}
		}
	}
	return ""
}

// checkDatabaseName reports a violation if sig[i] is a bare database name
// other than database. A qualified name is checked by its qualifier.
func checkDatabaseName(sig []*sqltree.Token, i int, database string) string {
	name := at(sig, i)
	if name == nil || !name.IsWord() {
		return ""
	}
	if dot := at(sig, i+1); dot != nil && dot.IsPunct(".") {
		return checkQualifier(sig, i, database)
	}
	if strings.EqualFold(name.Text, database) {
		return ""
	}
	return outOfScope(name.Text, database)
}

// scanScopeList scans one list and returns the groups nested in it.
func scanScopeList(l scopeList, database string) (string, []scopeList) {
	sig := significantOf(l.tokens)
	inTableList := l.tableList
	if l.tableList {
		if r := checkQualifier(sig, 0, database); r != "" {
			return r, nil
		}
	}

	var nested []scopeList
	for i, tok := range sig {
		upper := tok.Upper()
		prev := at(sig, i-1)

		if tok.Kind == sqltree.Composite {
			tableRef := (i == 0 && l.tableList) ||
				(prev != nil && prev.IsPunct(",") && inTableList) ||
				(prev != nil && prev.IsKeyword() && tableRefKeywords[prev.Upper()] &&
					!selectOption(sig, i-1) && !(prev.Is("FROM") && l.inFunction))
			nested = append(nested, scopeList{
				tokens:     tok.Children,
				tableList:  tableRef,
				inFunction: prev != nil && prev.IsWord() && fromFunctions[prev.Upper()],
			})
			continue
		}

		if tok.Is("USE") {
			if next := at(sig, i+1); next == nil || !(next.Is("INDEX") || next.Is("KEY")) {
				return fmt.Sprintf("database switching is not allowed: only database '%s' may be used", database), nil
			}
		}

		switch {
		case tok.IsKeyword() && tableRefKeywords[upper] && !selectOption(sig, i):
			if upper == "FROM" && l.inFunction {
				inTableList = false
				continue
			}
			inTableList = tableListKeywords[upper]
			if r := checkQualifier(sig, i+1, database); r != "" {
				return r, nil
			}
			continue
		case tok.IsPunct(","):
			if inTableList {
				if r := checkQualifier(sig, i+1, database); r != "" {
					return r, nil
				}
			}
			continue
		case tok.IsKeyword() && upper != "AS":
			inTableList = false
		}

		if r := checkThreePart(sig, i, database); r != "" {
			return r, nil
		}
	}
	return "", nested
}

// selectOption reports whether sig[i] is STRAIGHT_JOIN used as a SELECT
// option, as in SELECT STRAIGHT_JOIN t.id FROM t. A join follows a table name
// or alias, never a keyword.
func selectOption(sig []*sqltree.Token, i int) bool {
	prev := at(sig, i-1)
	return sig[i].Is("STRAIGHT_JOIN") && prev != nil && prev.IsKeyword()
}

func significantOf(tokens []*sqltree.Token) []*sqltree.Token {
	out := make([]*sqltree.Token, 0, len(tokens))
	for _, tok := range tokens {
		if !tok.IsTrivia() {
			out = append(out, tok)
		}
	}
	return out
}

// checkQualifier reports a violation if sig[i:] starts with "<db> ." and db is
// not database.
func checkQualifier(sig []*sqltree.Token, i int, database string) string {
	name, dot := at(sig, i), at(sig, i+1)
	if name == nil || dot == nil || !name.IsWord() || !dot.IsPunct(".") {
		return ""
	}
	if strings.EqualFold(name.Text, database) {
		return ""
	}
	return outOfScope(name.Text, database)
}

// checkThreePart reports a violation if sig[i:] starts a "<db>.<table>.<column>"
// chain whose first part is not database.
func checkThreePart(sig []*sqltree.Token, i int, database string) string {
	if prev := at(sig, i-1); prev != nil && prev.IsPunct(".") {
		return ""
	}
	for k := 0; k < 5; k++ {
		tok := at(sig, i+k)
		if tok == nil {
			return ""
		}
		if k%2 == 0 && !tok.IsWord() && !tok.IsPunct("*") {
			return ""
		}
		if k%2 == 1 && !tok.IsPunct(".") {
			return ""
		}
	}
	if !sig[i].IsWord() || strings.EqualFold(sig[i].Text, database) {
		return ""
	}
	return outOfScope(sig[i].Text, database)
}

func outOfScope(name, database string) string {
	return fmt.Sprintf("access to database '%s' is not allowed: only database '%s' may be used", name, database)
}

func at(sig []*sqltree.Token, i int) *sqltree.Token {
	if i < 0 || i >= len(sig) {
		return nil
	}
	return sig[i]
}
