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

package repl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"

	"github.com/cloudwego/cellrepl/cell"
	"github.com/cloudwego/cellrepl/evaluator"
	"github.com/cloudwego/cellrepl/internal/log"
)

// evalWith evaluates a library-supplied display/conversion expression with
// `it` bound.
func (k *Kernel) evalWith(expr string, it interface{}) (interface{}, error) {
	e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, k.scope.Functions())
	if err != nil {
		return nil, err
	}
	params := k.scope.Parameters()
	params["it"] = it
	return e.Evaluate(params)
}

// Render formats a result value for display, consulting library renderers
// before falling back to the default formatting. Rendering is a caller-side
// concern; the pipeline itself never renders.
func (k *Kernel) Render(value interface{}) string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	typeName := evaluator.TypeNameOf(value)
	for _, r := range k.defs.Renderers {
		if r.TypeName != typeName {
			continue
		}
		out, err := k.evalWith(r.Expr, value)
		if err != nil {
			log.Warn("renderer for %s failed: %v", typeName, err)
			continue
		}
		return FormatValue(out)
	}
	return FormatValue(value)
}

// RenderThrowable formats a runtime failure, consulting library throwable
// renderers by message substring.
func (k *Kernel) RenderThrowable(rerr *cell.RuntimeError) string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, tr := range k.defs.ThrowableRenderers {
		if tr.Match != "" && !strings.Contains(rerr.Message, tr.Match) {
			continue
		}
		out, err := k.evalWith(tr.Expr, rerr.Message)
		if err != nil {
			log.Warn("throwable renderer failed: %v", err)
			continue
		}
		return FormatValue(out)
	}
	return rerr.Error()
}

// applyConverters rewrites the values of bindings declared by the given
// unit, per the aggregated converter list. Converter failures are logged and
// leave the binding untouched.
func (k *Kernel) applyConverters(id cell.LineID) {
	if len(k.defs.Converters) == 0 {
		return
	}
	for _, b := range k.scope.Bindings() {
		if b.LineID != id {
			continue
		}
		for _, c := range k.defs.Converters {
			if c.NamePrefix != "" && !strings.HasPrefix(b.Name, c.NamePrefix) {
				continue
			}
			out, err := k.evalWith(c.Expr, b.Value)
			if err != nil {
				log.Warn("converter for %s failed: %v", b.Name, err)
				continue
			}
			k.scope.SetBinding(b.Name, out)
		}
	}
}

// FormatValue is the default display formatting: integral floats print
// without a decimal point, everything else prints naturally.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "Unit"
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
