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

package compiler

import (
	"regexp"
	"strings"

	"github.com/cloudwego/cellrepl/cell"
)

// Annotation is one file-level directive extracted from a cell, e.g.
// @file:DependsOn("com.example:lib:1.2.0").
type Annotation struct {
	Name string
	Args []string
	Line int
}

// Built-in annotation names consumed by the dependency resolver.
const (
	AnnotationDependsOn  = "DependsOn"
	AnnotationRepository = "Repository"
)

var (
	reAnnotation = regexp.MustCompile(`^@file:([A-Za-z][A-Za-z0-9]*)\((.*)\)\s*$`)
	reAnnArg     = regexp.MustCompile(`"([^"]*)"`)
)

// ScanAnnotations extracts @file: annotations and returns the remaining
// source with annotation lines blanked out, so statement line numbers stay
// stable. Malformed annotation lines are a compile error, not a statement.
func ScanAnnotations(src string) ([]Annotation, string, error) {
	var anns []Annotation
	lines := strings.Split(src, "\n")
	for i, ln := range lines {
		trimmed := strings.TrimSpace(ln)
		if !strings.HasPrefix(trimmed, "@file:") {
			continue
		}
		m := reAnnotation.FindStringSubmatch(trimmed)
		if m == nil {
			return nil, "", &cell.CompileError{
				Message:  "malformed file annotation: " + trimmed,
				Location: cell.Location{Line: i + 1, Col: 1},
			}
		}
		var args []string
		for _, am := range reAnnArg.FindAllStringSubmatch(m[2], -1) {
			args = append(args, am[1])
		}
		anns = append(anns, Annotation{Name: m[1], Args: args, Line: i + 1})
		lines[i] = ""
	}
	return anns, strings.Join(lines, "\n"), nil
}

// RawStmt is one statement's text before parsing, with its 1-based start line.
type RawStmt struct {
	Text string
	Line int
}

// continuation operators: a statement whose buffered text ends with one of
// these continues on the next line.
var continuations = []string{
	"&&", "||", "==", "!=", "<=", ">=",
	"+", "-", "*", "/", "%", "<", ">", "=", ",", "?", ":", "!",
}

func endsWithContinuation(s string) bool {
	s = strings.TrimRight(s, " \t\n")
	if s == "" {
		return false
	}
	for _, op := range continuations {
		if strings.HasSuffix(s, op) {
			return true
		}
	}
	if strings.HasSuffix(s, "else") &&
		(len(s) == 4 || !isIdentRune(rune(s[len(s)-5]))) {
		return true
	}
	return false
}

// Split breaks a cell into raw statements. Statements end at a newline or
// semicolon at zero paren/brace depth, unless the text so far ends with a
// continuation operator or the next line starts with "else".
//
// An unclosed string, paren or brace — or a trailing continuation — is
// IncompleteError, not a compile failure: the snippet is a valid prefix of a
// larger statement and the caller should accumulate more input. A surplus
// closer is definitively invalid.
func Split(src string) ([]RawStmt, error) {
	var (
		stmts      []RawStmt
		buf        strings.Builder
		line       = 1
		start      = 1
		parenDepth = 0
		braceDepth = 0
		inStr      = false
	)
	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text != "" {
			stmts = append(stmts, RawStmt{Text: text, Line: start})
		}
		start = line
	}
	rs := []rune(src)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		if inStr {
			buf.WriteRune(c)
			switch c {
			case '\\':
				if i+1 < len(rs) {
					i++
					buf.WriteRune(rs[i])
				}
			case '"':
				inStr = false
			case '\n':
				return nil, &cell.IncompleteError{Hint: `"`}
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '/':
			if i+1 < len(rs) && rs[i+1] == '/' {
				for i < len(rs) && rs[i] != '\n' {
					i++
				}
				i-- // let the newline be handled below
				continue
			}
		case '(':
			parenDepth++
		case ')':
			parenDepth--
			if parenDepth < 0 {
				return nil, &cell.CompileError{
					Message:  "unbalanced ')'",
					Location: cell.Location{Line: line, Col: 1},
				}
			}
		case '{':
			braceDepth++
		case '}':
			braceDepth--
			if braceDepth < 0 {
				return nil, &cell.CompileError{
					Message:  "unbalanced '}'",
					Location: cell.Location{Line: line, Col: 1},
				}
			}
		case ';':
			if parenDepth == 0 && braceDepth == 0 {
				flush()
				continue
			}
		case '\n':
			line++
			if parenDepth == 0 && braceDepth == 0 &&
				!endsWithContinuation(buf.String()) && !nextIsElse(rs[i+1:]) {
				flush()
			} else {
				buf.WriteRune('\n')
			}
			continue
		}
		buf.WriteRune(c)
	}
	if inStr {
		return nil, &cell.IncompleteError{Hint: `"`}
	}
	if parenDepth > 0 {
		return nil, &cell.IncompleteError{Hint: "("}
	}
	if braceDepth > 0 {
		return nil, &cell.IncompleteError{Hint: "{"}
	}
	if endsWithContinuation(buf.String()) {
		return nil, &cell.IncompleteError{}
	}
	line++
	flush()
	return stmts, nil
}

func nextIsElse(rest []rune) bool {
	s := strings.TrimLeft(string(rest), " \t\n")
	return strings.HasPrefix(s, "else") &&
		(len(s) == 4 || !isIdentRune(rune(s[4])))
}

func isIdentRune(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
