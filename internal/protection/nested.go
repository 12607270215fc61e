package protection

import "github.com/rickchristie/mysql-mcp/internal/sqltree"

// scanNested walks every token of stmt, composites included, and returns the
// first statement verb found in dangerous.
func scanNested(stmt *sqltree.Statement, dangerous map[string]bool) (string, bool) {
	var found string
	stmt.Walk(func(tok *sqltree.Token, _ int) bool {
		if tok.Kind == sqltree.DMLKeyword && dangerous[tok.Upper()] {
			found = tok.Upper()
			return false
		}
		return true
	})
	return found, found != ""
}
