package protection

import "regexp"

// Construct is a text pattern that marks a dangerous capability inside an
// otherwise read-only statement.
type Construct struct {
	// Pattern is a Go regexp matched against the upper-cased, comment-free,
	// single-spaced statement text.
	Pattern     string
	Description string
}

// DefaultConstructs are checked in order; the first match wins.
var DefaultConstructs = []Construct{
	{
		Pattern:     `\bINTO\s+OUTFILE\b`,
		Description: "INTO OUTFILE is not allowed: writes query results to a file on the database server",
	},
	{
		Pattern:     `\bINTO\s+DUMPFILE\b`,
		Description: "INTO DUMPFILE is not allowed: writes raw row data to a file on the database server",
	},
	{
		Pattern:     `\bLOAD_FILE\s*\(`,
		Description: "LOAD_FILE() is not allowed: reads arbitrary files from the database server",
	},
	{
		Pattern:     `@@`,
		Description: "system variable access (@@) is not allowed: exposes server configuration",
	},
	{
		Pattern:     `\bUNION\b`,
		Description: "UNION is not allowed: UNION can combine rows from unrelated tables",
	},
}

type compiledConstruct struct {
	re          *regexp.Regexp
	description string
}

// scanConstructs returns the description of the first construct matching
// text.
func scanConstructs(text string, constructs []compiledConstruct) (string, bool) {
	for _, c := range constructs {
		if c.re.MatchString(text) {
			return c.description, true
		}
	}
	return "", false
}
