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
	"math"
	"strings"

	"github.com/Knetic/govaluate"
)

func argNum(name string, args []interface{}, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%s: missing argument %d", name, i+1)
	}
	switch v := args[i].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s: argument %d is not a number", name, i+1)
	}
}

func argStr(name string, args []interface{}, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%s: missing argument %d", name, i+1)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %d is not a string", name, i+1)
	}
	return s, nil
}

func numFn1(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		x, err := argNum(name, args, 0)
		if err != nil {
			return nil, err
		}
		return f(x), nil
	}
}

func numFn2(name string, f func(float64, float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		x, err := argNum(name, args, 0)
		if err != nil {
			return nil, err
		}
		y, err := argNum(name, args, 1)
		if err != nil {
			return nil, err
		}
		return f(x, y), nil
	}
}

func strFn1(name string, f func(string) interface{}) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		s, err := argStr(name, args, 0)
		if err != nil {
			return nil, err
		}
		return f(s), nil
	}
}

func strFn2(name string, f func(string, string) interface{}) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		a, err := argStr(name, args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argStr(name, args, 1)
		if err != nil {
			return nil, err
		}
		return f(a, b), nil
	}
}

// builtinNamespaces are the importable function bundles available to every
// session before any library contributes its own.
func builtinNamespaces() map[string]Namespace {
	return map[string]Namespace{
		"math": {
			Funcs: map[string]govaluate.ExpressionFunction{
				"sqrt":  numFn1("sqrt", math.Sqrt),
				"abs":   numFn1("abs", math.Abs),
				"floor": numFn1("floor", math.Floor),
				"ceil":  numFn1("ceil", math.Ceil),
				"round": numFn1("round", math.Round),
				"log":   numFn1("log", math.Log),
				"exp":   numFn1("exp", math.Exp),
				"pow":   numFn2("pow", math.Pow),
				"min":   numFn2("min", math.Min),
				"max":   numFn2("max", math.Max),
			},
			Consts: map[string]interface{}{
				"PI": math.Pi,
				"E":  math.E,
			},
		},
		"strings": {
			Funcs: map[string]govaluate.ExpressionFunction{
				"upper": strFn1("upper", func(s string) interface{} { return strings.ToUpper(s) }),
				"lower": strFn1("lower", func(s string) interface{} { return strings.ToLower(s) }),
				"trim":  strFn1("trim", func(s string) interface{} { return strings.TrimSpace(s) }),
				"len":   strFn1("len", func(s string) interface{} { return float64(len(s)) }),
				"contains": strFn2("contains", func(a, b string) interface{} {
					return strings.Contains(a, b)
				}),
				"startsWith": strFn2("startsWith", func(a, b string) interface{} {
					return strings.HasPrefix(a, b)
				}),
				"endsWith": strFn2("endsWith", func(a, b string) interface{} {
					return strings.HasSuffix(a, b)
				}),
				"indexOf": strFn2("indexOf", func(a, b string) interface{} {
					return float64(strings.Index(a, b))
				}),
				"replace": func(args ...interface{}) (interface{}, error) {
					s, err := argStr("replace", args, 0)
					if err != nil {
						return nil, err
					}
					old, err := argStr("replace", args, 1)
					if err != nil {
						return nil, err
					}
					nu, err := argStr("replace", args, 2)
					if err != nil {
						return nil, err
					}
					return strings.ReplaceAll(s, old, nu), nil
				},
			},
		},
	}
}
