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

// Package evaluator executes compiled units against the session scope.
// Partial-failure semantics are intentional: bindings established before a
// runtime error remain part of the scope for subsequent units.
package evaluator

import (
	"github.com/cloudwego/cellrepl/cell"
	"github.com/cloudwego/cellrepl/compiler"
)

type Evaluator struct {
	scope *Scope
}

func New(scope *Scope) *Evaluator {
	return &Evaluator{scope: scope}
}

func (e *Evaluator) Scope() *Scope { return e.scope }

// Execute runs all statements of a compiled unit in order and returns the
// last statement's value. isUnit is true when the last statement produced no
// value (declaration, assignment, import, valueless if).
func (e *Evaluator) Execute(u *compiler.Unit) (value interface{}, isUnit bool, err error) {
	isUnit = true
	for i := range u.Stmts {
		value, isUnit, err = e.execStmt(&u.Stmts[i], u.ID)
		if err != nil {
			return nil, true, err
		}
	}
	return value, isUnit, nil
}

func (e *Evaluator) execStmt(st *compiler.Stmt, id cell.LineID) (interface{}, bool, error) {
	switch st.Kind {
	case compiler.StmtExpr:
		v, err := st.Expr.Evaluate(e.scope.Parameters())
		if err != nil {
			return nil, true, runtimeErr(err, st.Line)
		}
		return v, false, nil

	case compiler.StmtVal, compiler.StmtVar:
		v, err := st.Expr.Evaluate(e.scope.Parameters())
		if err != nil {
			return nil, true, runtimeErr(err, st.Line)
		}
		e.scope.Declare(cell.Binding{
			Name:     st.Name,
			TypeName: TypeNameOf(v),
			Value:    v,
			Mutable:  st.Kind == compiler.StmtVar,
			LineID:   id,
		})
		return nil, true, nil

	case compiler.StmtAssign:
		v, err := st.Expr.Evaluate(e.scope.Parameters())
		if err != nil {
			return nil, true, runtimeErr(err, st.Line)
		}
		if err := e.scope.Assign(st.Name, v, id); err != nil {
			return nil, true, runtimeErr(err, st.Line)
		}
		return nil, true, nil

	case compiler.StmtFun:
		e.scope.DeclareFunction(&Function{
			Name:   st.Name,
			Params: st.Params,
			Expr:   st.Expr,
			Body:   st.ExprText,
		})
		return nil, true, nil

	case compiler.StmtImport:
		if err := e.scope.Import(st.Name); err != nil {
			return nil, true, runtimeErr(err, st.Line)
		}
		return nil, true, nil

	case compiler.StmtIf:
		cond, err := st.Expr.Evaluate(e.scope.Parameters())
		if err != nil {
			return nil, true, runtimeErr(err, st.Line)
		}
		b, ok := cond.(bool)
		if !ok {
			return nil, true, &cell.RuntimeError{
				Message:  "if condition is not a boolean",
				Location: cell.Location{Line: st.Line, Col: 1},
			}
		}
		branch := st.Then
		if !b {
			branch = st.Else
		}
		var (
			value  interface{}
			isUnit = true
		)
		for i := range branch {
			value, isUnit, err = e.execStmt(&branch[i], id)
			if err != nil {
				return nil, true, err
			}
		}
		return value, isUnit, nil
	}
	return nil, true, &cell.RuntimeError{
		Message:  "unknown statement kind",
		Location: cell.Location{Line: st.Line, Col: 1},
	}
}

func runtimeErr(err error, line int) *cell.RuntimeError {
	return &cell.RuntimeError{
		Message:  err.Error(),
		Location: cell.Location{Line: line, Col: 1},
		Cause:    err,
	}
}
