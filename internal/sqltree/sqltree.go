// Package sqltree turns MySQL text into a sequence of statements, each a tree
// of tagged tokens. Parenthesised groups become Composite tokens so that
// subqueries, CTE bodies and function arguments can be visited as nested
// token lists.
//
// Lexing is delegated to the MySQL tokenizer of github.com/xwb1989/sqlparser.
// The grammar itself is not applied: any input the tokenizer accepts and whose
// parentheses balance produces a tree, which lets callers inspect statements
// that MySQL would reject or that the grammar does not cover.
package sqltree

import (
	"fmt"
	"strings"
)

// MaxDepth caps parenthesis nesting. Deeper input is reported as a parse error.
const MaxDepth = 256

// Kind tags a token.
type Kind int

const (
	// Whitespace is never produced by Parse (the tokenizer drops blanks) but
	// is accepted in hand-built trees and treated as trivia.
	Whitespace Kind = iota
	Comment
	Keyword
	// DMLKeyword marks MySQL statement verbs (SELECT, INSERT, DROP, SET, ...).
	DMLKeyword
	Identifier
	Literal
	Punctuation
	Composite
)

var kindNames = [...]string{
	Whitespace:  "whitespace",
	Comment:     "comment",
	Keyword:     "keyword",
	DMLKeyword:  "dml_keyword",
	Identifier:  "identifier",
	Literal:     "literal",
	Punctuation: "punctuation",
	Composite:   "composite",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Token is a node of a statement tree. Leaves carry Text; Composite tokens
// carry the tokens found between a pair of parentheses in Children.
type Token struct {
	Kind     Kind
	Text     string
	Children []*Token
	// Offset is the byte offset just past the token in the parsed input.
	Offset int
}

// IsTrivia reports whether the token is whitespace or a comment.
func (t *Token) IsTrivia() bool {
	return t.Kind == Whitespace || t.Kind == Comment
}

// IsWord reports whether the token is a bare or quoted word.
func (t *Token) IsWord() bool {
	return t.Kind == Keyword || t.Kind == DMLKeyword || t.Kind == Identifier
}

// IsKeyword reports whether the token is a keyword or a statement verb.
func (t *Token) IsKeyword() bool {
	return t.Kind == Keyword || t.Kind == DMLKeyword
}

// Is reports whether the token is a keyword equal to word (case-insensitive).
func (t *Token) Is(word string) bool {
	return t.IsKeyword() && strings.EqualFold(t.Text, word)
}

// IsPunct reports whether the token is the punctuation p.
func (t *Token) IsPunct(p string) bool {
	return t.Kind == Punctuation && t.Text == p
}

// Upper returns the upper-cased token text.
func (t *Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// Statement is one semicolon-delimited statement.
type Statement struct {
	Tokens []*Token
}

// Significant returns the top-level tokens that are not trivia.
func (s *Statement) Significant() []*Token {
	return significant(s.Tokens)
}

// SignificantChildren returns the children of t that are not trivia.
func SignificantChildren(t *Token) []*Token {
	return significant(t.Children)
}

func significant(tokens []*Token) []*Token {
	out := make([]*Token, 0, len(tokens))
	for _, tok := range tokens {
		if !tok.IsTrivia() {
			out = append(out, tok)
		}
	}
	return out
}

// Walk visits every token of the statement depth-first, in source order,
// including the children of every Composite. depth is 0 for top-level tokens.
// Returning false from fn stops the walk. Walk uses an explicit stack.
func (s *Statement) Walk(fn func(tok *Token, depth int) bool) {
	type frame struct {
		tokens []*Token
		next   int
	}
	stack := []frame{{tokens: s.Tokens}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.tokens) {
			stack = stack[:len(stack)-1]
			continue
		}
		tok := top.tokens[top.next]
		top.next++
		if !fn(tok, len(stack)-1) {
			return
		}
		if tok.Kind == Composite && len(tok.Children) > 0 {
			stack = append(stack, frame{tokens: tok.Children})
		}
	}
}

// String renders the statement without comments, with single spaces between
// tokens and parentheses around composites.
func (s *Statement) String() string {
	type frame struct {
		tokens []*Token
		next   int
	}
	var sb strings.Builder
	write := func(text string) {
		if sb.Len() > 0 && text != ")" && !strings.HasSuffix(sb.String(), "(") {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}
	stack := []frame{{tokens: s.Tokens}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.tokens) {
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				sb.WriteByte(')')
			}
			continue
		}
		tok := top.tokens[top.next]
		top.next++
		switch {
		case tok.IsTrivia():
		case tok.Kind == Composite:
			write("(")
			stack = append(stack, frame{tokens: tok.Children})
		case tok.Text != "":
			write(tok.Text)
		}
	}
	return sb.String()
}

// Normalized returns String() upper-cased.
func (s *Statement) Normalized() string {
	return strings.ToUpper(s.String())
}

// ParseError reports input the parser could not turn into statements.
type ParseError struct {
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sqltree: %s at offset %d", e.Msg, e.Offset)
}

// Parse splits sql into statements and builds a token tree for each.
// Statements that contain only comments are dropped, so "SELECT 1;" yields one
// statement and ";" yields none.
func Parse(sql string) ([]*Statement, error) {
	leaves, err := lex(sql)
	if err != nil {
		return nil, err
	}

	var stmts []*Statement
	root := &Token{Kind: Composite}
	stack := []*Token{root}

	flush := func() {
		if len(significant(root.Children)) > 0 {
			stmts = append(stmts, &Statement{Tokens: root.Children})
		}
		root = &Token{Kind: Composite}
		stack[0] = root
	}

	for _, leaf := range leaves {
		top := stack[len(stack)-1]
		switch {
		case leaf.IsPunct("("):
			if len(stack) > MaxDepth {
				return nil, &ParseError{Offset: leaf.Offset, Msg: fmt.Sprintf("parentheses nested deeper than %d", MaxDepth)}
			}
			group := &Token{Kind: Composite, Offset: leaf.Offset}
			top.Children = append(top.Children, group)
			stack = append(stack, group)
		case leaf.IsPunct(")"):
			if len(stack) == 1 {
				return nil, &ParseError{Offset: leaf.Offset, Msg: "unbalanced closing parenthesis"}
			}
			top.Offset = leaf.Offset
			stack = stack[:len(stack)-1]
		case leaf.IsPunct(";"):
			if len(stack) > 1 {
				return nil, &ParseError{Offset: leaf.Offset, Msg: "statement separator inside parentheses"}
			}
			flush()
		default:
			top.Children = append(top.Children, leaf)
		}
	}
	if len(stack) > 1 {
		return nil, &ParseError{Offset: len(sql), Msg: "unclosed parenthesis"}
	}
	flush()
	return stmts, nil
}
