// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package compiler turns cell source into compiled units. The statement
// layer (declarations, assignments, if blocks, imports) is parsed here; the
// expression grammar is delegated to govaluate, compiled once per statement
// against the session's current function table.
package compiler

import (
	"regexp"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/cloudwego/cellrepl/cell"
)

type StmtKind int

const (
	StmtExpr StmtKind = iota
	StmtVal
	StmtVar
	StmtAssign
	StmtFun
	StmtIf
	StmtImport
)

// Stmt is one compiled statement. Expr holds the statement's single
// expression: the RHS for declarations and assignments, the condition for
// if, the body for functions, or the expression itself.
type Stmt struct {
	Kind     StmtKind
	Line     int
	Name     string // binding/function name, or namespace for imports
	Params   []string
	Expr     *govaluate.EvaluableExpression
	ExprText string
	Then     []Stmt
	Else     []Stmt
}

// Unit is the compiled bundle for one code unit, owned by the pipeline until
// handed to the evaluator.
type Unit struct {
	ID    cell.LineID
	Stmts []Stmt
}

// FuncSource supplies the function table visible to expressions. Functions
// returns everything callable right now; Dispatch returns a late-bound
// callable for a name that will exist by evaluation time (functions declared
// earlier in the same cell, including recursive ones).
type FuncSource interface {
	Functions() map[string]govaluate.ExpressionFunction
	Dispatch(name string) govaluate.ExpressionFunction
}

// Compiler is stateless apart from its configuration; one instance serves
// the whole session under the pipeline's guard.
type Compiler struct{}

func New() *Compiler { return &Compiler{} }

var (
	reVal    = regexp.MustCompile(`(?s)^val\s+([A-Za-z_]\w*)\s*=\s*(.+)$`)
	reVar    = regexp.MustCompile(`(?s)^var\s+([A-Za-z_]\w*)\s*=\s*(.+)$`)
	reFun    = regexp.MustCompile(`(?s)^fun\s+([A-Za-z_]\w*)\s*\(([^)]*)\)\s*=\s*(.+)$`)
	reImport = regexp.MustCompile(`^import\s+([A-Za-z_]\w*)(\.\*)?$`)
	reAssign = regexp.MustCompile(`(?s)^([A-Za-z_]\w*)\s*=\s*([^=].*)$`)
	reIdent  = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

// Compile parses and compiles a full code unit. It performs no ledger or
// scope mutation; failures are IncompleteError or CompileError.
func (c *Compiler) Compile(unit cell.CodeUnit, src FuncSource) (*Unit, error) {
	raw, err := Split(unit.Source)
	if err != nil {
		return nil, err
	}
	funcs := make(map[string]govaluate.ExpressionFunction, len(src.Functions()))
	for k, v := range src.Functions() {
		funcs[k] = v
	}
	stmts, err := c.compileStmts(raw, funcs, src)
	if err != nil {
		return nil, err
	}
	return &Unit{ID: unit.ID(), Stmts: stmts}, nil
}

func (c *Compiler) compileStmts(raw []RawStmt, funcs map[string]govaluate.ExpressionFunction, src FuncSource) ([]Stmt, error) {
	var out []Stmt
	for _, rs := range raw {
		st, err := c.compileStmt(rs, funcs, src)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (c *Compiler) compileStmt(rs RawStmt, funcs map[string]govaluate.ExpressionFunction, src FuncSource) (Stmt, error) {
	text := rs.Text
	switch {
	case strings.HasPrefix(text, "if") && (len(text) == 2 || !isIdentRune(rune(text[2]))):
		return c.compileIf(rs, funcs, src)
	case reImport.MatchString(text):
		m := reImport.FindStringSubmatch(text)
		return Stmt{Kind: StmtImport, Line: rs.Line, Name: m[1]}, nil
	case strings.HasPrefix(text, "val "):
		m := reVal.FindStringSubmatch(text)
		if m == nil {
			return Stmt{}, compileErr("malformed val declaration", rs.Line)
		}
		return c.exprStmt(StmtVal, m[1], m[2], rs.Line, funcs)
	case strings.HasPrefix(text, "var "):
		m := reVar.FindStringSubmatch(text)
		if m == nil {
			return Stmt{}, compileErr("malformed var declaration", rs.Line)
		}
		return c.exprStmt(StmtVar, m[1], m[2], rs.Line, funcs)
	case strings.HasPrefix(text, "fun "):
		return c.compileFun(rs, funcs, src)
	default:
		if m := reAssign.FindStringSubmatch(text); m != nil {
			return c.exprStmt(StmtAssign, m[1], m[2], rs.Line, funcs)
		}
		return c.exprStmt(StmtExpr, "", text, rs.Line, funcs)
	}
}

func (c *Compiler) exprStmt(kind StmtKind, name, exprText string, line int, funcs map[string]govaluate.ExpressionFunction) (Stmt, error) {
	expr, err := govaluate.NewEvaluableExpressionWithFunctions(exprText, funcs)
	if err != nil {
		return Stmt{}, &cell.CompileError{
			Message:  err.Error(),
			Location: cell.Location{Line: line, Col: 1},
			Cause:    err,
		}
	}
	return Stmt{Kind: kind, Line: line, Name: name, Expr: expr, ExprText: strings.TrimSpace(exprText)}, nil
}

func (c *Compiler) compileFun(rs RawStmt, funcs map[string]govaluate.ExpressionFunction, src FuncSource) (Stmt, error) {
	m := reFun.FindStringSubmatch(rs.Text)
	if m == nil {
		return Stmt{}, compileErr("malformed fun declaration", rs.Line)
	}
	name := m[1]
	var params []string
	if p := strings.TrimSpace(m[2]); p != "" {
		for _, raw := range strings.Split(p, ",") {
			param := strings.TrimSpace(raw)
			if !reIdent.MatchString(param) {
				return Stmt{}, compileErr("malformed parameter name '"+param+"'", rs.Line)
			}
			params = append(params, param)
		}
	}
	// The function is visible to the rest of the cell (and to its own body)
	// through a late-bound dispatch entry; the callable itself is installed
	// only when the declaration executes.
	funcs[name] = src.Dispatch(name)
	st, err := c.exprStmt(StmtFun, name, m[3], rs.Line, funcs)
	if err != nil {
		return Stmt{}, err
	}
	st.Params = params
	return st, nil
}

func (c *Compiler) compileIf(rs RawStmt, funcs map[string]govaluate.ExpressionFunction, src FuncSource) (Stmt, error) {
	text := rs.Text
	open := strings.Index(text, "(")
	if open < 0 {
		return Stmt{}, compileErr("expected '(' after if", rs.Line)
	}
	condEnd, err := matchDelim(text, open, '(', ')')
	if err != nil {
		return Stmt{}, compileErr(err.Error(), rs.Line)
	}
	cond := text[open+1 : condEnd]

	rest := strings.TrimSpace(text[condEnd+1:])
	if !strings.HasPrefix(rest, "{") {
		return Stmt{}, compileErr("expected '{' after if condition", rs.Line)
	}
	thenEnd, err := matchDelim(rest, 0, '{', '}')
	if err != nil {
		return Stmt{}, compileErr(err.Error(), rs.Line)
	}
	thenBody := rest[1:thenEnd]

	st, err := c.exprStmt(StmtIf, "", cond, rs.Line, funcs)
	if err != nil {
		return Stmt{}, err
	}
	thenRaw, err := Split(thenBody)
	if err != nil {
		return Stmt{}, err
	}
	if st.Then, err = c.compileStmts(offsetLines(thenRaw, rs.Line), funcs, src); err != nil {
		return Stmt{}, err
	}

	tail := strings.TrimSpace(rest[thenEnd+1:])
	if tail == "" {
		return st, nil
	}
	if !strings.HasPrefix(tail, "else") {
		return Stmt{}, compileErr("unexpected input after if block: "+tail, rs.Line)
	}
	tail = strings.TrimSpace(tail[len("else"):])
	switch {
	case strings.HasPrefix(tail, "if"):
		nested, err := c.compileIf(RawStmt{Text: tail, Line: rs.Line}, funcs, src)
		if err != nil {
			return Stmt{}, err
		}
		st.Else = []Stmt{nested}
	case strings.HasPrefix(tail, "{"):
		elseEnd, err := matchDelim(tail, 0, '{', '}')
		if err != nil {
			return Stmt{}, compileErr(err.Error(), rs.Line)
		}
		if rem := strings.TrimSpace(tail[elseEnd+1:]); rem != "" {
			return Stmt{}, compileErr("unexpected input after else block: "+rem, rs.Line)
		}
		elseRaw, err := Split(tail[1:elseEnd])
		if err != nil {
			return Stmt{}, err
		}
		if st.Else, err = c.compileStmts(offsetLines(elseRaw, rs.Line), funcs, src); err != nil {
			return Stmt{}, err
		}
	default:
		return Stmt{}, compileErr("expected '{' or 'if' after else", rs.Line)
	}
	return st, nil
}

// matchDelim returns the index of the closer matching the opener at start,
// skipping string literals.
func matchDelim(s string, start int, open, close byte) (int, error) {
	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			if c == '\\' {
				i++
			} else if c == '"' {
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, &cell.IncompleteError{Hint: string(rune(open))}
}

// offsetLines rebases statement line numbers of a nested block onto the
// enclosing statement's start line.
func offsetLines(raw []RawStmt, base int) []RawStmt {
	for i := range raw {
		raw[i].Line += base - 1
	}
	return raw
}

func compileErr(msg string, line int) *cell.CompileError {
	return &cell.CompileError{Message: msg, Location: cell.Location{Line: line, Col: 1}}
}
