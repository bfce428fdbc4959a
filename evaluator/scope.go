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

package evaluator

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/cloudwego/cellrepl/cell"
)

// Function is a user-declared single-expression function installed into the
// session scope by a fun declaration.
type Function struct {
	Name   string
	Params []string
	Expr   *govaluate.EvaluableExpression
	Body   string
}

// Namespace is an importable bundle of functions and constants, either a
// builtin (math, strings) or one contributed by a library definition.
type Namespace struct {
	Funcs  map[string]govaluate.ExpressionFunction
	Consts map[string]interface{}
}

// Scope holds all cross-cell state: variable bindings in declaration order,
// user functions, imported functions/constants and registered resources.
// It is not safe for concurrent use; the pipeline's guard serializes access.
type Scope struct {
	order      []string
	vars       map[string]*cell.Binding
	funcs      map[string]*Function
	imported   map[string]govaluate.ExpressionFunction
	consts     map[string]interface{}
	namespaces map[string]Namespace
	resources  map[string]string
}

func NewScope() *Scope {
	s := &Scope{
		vars:       make(map[string]*cell.Binding),
		funcs:      make(map[string]*Function),
		imported:   make(map[string]govaluate.ExpressionFunction),
		consts:     make(map[string]interface{}),
		namespaces: builtinNamespaces(),
		resources:  make(map[string]string),
	}
	s.imported["resource"] = s.resourceFunc
	return s
}

// Declare installs or replaces a binding. Re-declaration in a later cell is
// always allowed (it shadows the previous one); only assignment is gated on
// mutability.
func (s *Scope) Declare(b cell.Binding) {
	if _, ok := s.vars[b.Name]; !ok {
		s.order = append(s.order, b.Name)
	}
	bb := b
	s.vars[b.Name] = &bb
}

// Assign updates an existing mutable binding.
func (s *Scope) Assign(name string, value interface{}, id cell.LineID) error {
	b, ok := s.vars[name]
	if !ok {
		return fmt.Errorf("unresolved reference '%s'", name)
	}
	if !b.Mutable {
		return fmt.Errorf("'%s' is immutable (declared with val)", name)
	}
	b.Value = value
	b.TypeName = TypeNameOf(value)
	b.LineID = id
	return nil
}

func (s *Scope) Lookup(name string) (interface{}, bool) {
	if b, ok := s.vars[name]; ok {
		return b.Value, true
	}
	return nil, false
}

// Bindings returns a defensive copy of all bindings in declaration order.
func (s *Scope) Bindings() []cell.Binding {
	out := make([]cell.Binding, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.vars[name])
	}
	return out
}

// SetBinding overwrites a binding's value in place, keeping metadata.
// Used by value converters after cell execution.
func (s *Scope) SetBinding(name string, value interface{}) {
	if b, ok := s.vars[name]; ok {
		b.Value = value
		b.TypeName = TypeNameOf(value)
	}
}

// DeclareFunction installs or replaces a user function.
func (s *Scope) DeclareFunction(f *Function) {
	s.funcs[f.Name] = f
}

// AddNamespace registers an importable namespace.
func (s *Scope) AddNamespace(name string, ns Namespace) {
	s.namespaces[name] = ns
}

// Import merges a namespace's functions and constants into the visible set.
func (s *Scope) Import(name string) error {
	ns, ok := s.namespaces[name]
	if !ok {
		return fmt.Errorf("unknown namespace '%s'", name)
	}
	for k, fn := range ns.Funcs {
		s.imported[k] = fn
	}
	for k, v := range ns.Consts {
		s.consts[k] = v
	}
	return nil
}

// SetResource registers a named resource; cells read it via resource(name).
func (s *Scope) SetResource(name, path string) {
	s.resources[name] = path
}

func (s *Scope) resourceFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("resource expects 1 argument, got %d", len(args))
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("resource expects a string name")
	}
	path, ok := s.resources[name]
	if !ok {
		return nil, fmt.Errorf("unknown resource '%s'", name)
	}
	return path, nil
}

// Parameters builds the parameter map for expression evaluation: imported
// constants first, variable bindings shadowing them.
func (s *Scope) Parameters() map[string]interface{} {
	params := make(map[string]interface{}, len(s.consts)+len(s.order))
	for k, v := range s.consts {
		params[k] = v
	}
	for _, name := range s.order {
		params[name] = s.vars[name].Value
	}
	return params
}

// Functions returns the table handed to the compiler: imported functions
// directly, user functions through late-bound dispatch so redefinitions in
// later cells take effect for previously compiled callers.
func (s *Scope) Functions() map[string]govaluate.ExpressionFunction {
	out := make(map[string]govaluate.ExpressionFunction, len(s.imported)+len(s.funcs))
	for k, fn := range s.imported {
		out[k] = fn
	}
	for name := range s.funcs {
		out[name] = s.Dispatch(name)
	}
	return out
}

// Dispatch returns a callable that resolves name at call time.
func (s *Scope) Dispatch(name string) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		return s.Call(name, args...)
	}
}

// Call invokes a user function (preferred) or an imported one.
func (s *Scope) Call(name string, args ...interface{}) (interface{}, error) {
	if f, ok := s.funcs[name]; ok {
		if len(args) != len(f.Params) {
			return nil, fmt.Errorf("%s expects %d arguments, got %d", name, len(f.Params), len(args))
		}
		params := s.Parameters()
		for i, p := range f.Params {
			params[p] = args[i]
		}
		return f.Expr.Evaluate(params)
	}
	if fn, ok := s.imported[name]; ok {
		return fn(args...)
	}
	return nil, fmt.Errorf("unresolved function '%s'", name)
}

// TypeNameOf names a runtime value's type for binding metadata and renderer
// matching.
func TypeNameOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return "Unit"
	case float64, float32, int, int64:
		return "Number"
	case string:
		return "String"
	case bool:
		return "Boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
