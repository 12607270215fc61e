package protection

import (
	"errors"

	"github.com/rickchristie/mysql-mcp/internal/sqltree"
)

// ErrEmptyStatement is returned by CommandOf when a statement has no leading
// command keyword.
var ErrEmptyStatement = errors.New("empty statement: no command keyword found")

// CommandOf returns the upper-cased leading command of stmt. Comments and
// whitespace are skipped, and a leading parenthesised group is searched
// through its first significant child, so "(SELECT 1) UNION ..." is a SELECT.
// A leading WITH resolves to the statement verb after the CTE list.
func CommandOf(stmt *sqltree.Statement) (string, error) {
	sig := stmt.Significant()
	if len(sig) == 0 {
		return "", ErrEmptyStatement
	}

	tok := sig[0]
	for tok.Kind == sqltree.Composite {
		children := sqltree.SignificantChildren(tok)
		if len(children) == 0 {
			return "", ErrEmptyStatement
		}
		tok = children[0]
	}
	if !tok.IsKeyword() {
		return "", ErrEmptyStatement
	}

	cmd := tok.Upper()
	if cmd == "WITH" && tok == sig[0] {
		return mainVerbAfterWith(sig[1:])
	}
	return cmd, nil
}

// mainVerbAfterWith skips "[RECURSIVE] name [(cols)] AS (body), ..." and
// returns the first top-level statement verb that follows.
func mainVerbAfterWith(rest []*sqltree.Token) (string, error) {
	for _, tok := range rest {
		if tok.Kind == sqltree.DMLKeyword {
			return tok.Upper(), nil
		}
	}
	return "", ErrEmptyStatement
}
