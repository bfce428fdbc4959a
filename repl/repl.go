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

// Package repl is the compile-eval pipeline: the state machine that accepts
// numbered source cells, compiles them, evaluates them against the shared
// session scope, and records both phases in one transactional history.
package repl

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/cloudwego/cellrepl/cell"
	"github.com/cloudwego/cellrepl/compiler"
	"github.com/cloudwego/cellrepl/evaluator"
	"github.com/cloudwego/cellrepl/internal/log"
	"github.com/cloudwego/cellrepl/library"
	"github.com/cloudwego/cellrepl/resolver"
)

type preprocessor struct {
	re      *regexp.Regexp
	replace string
}

// Kernel is one evaluation session. A single RWMutex guards the ledger and
// the whole compile+evaluate transition: Eval holds it exclusively for the
// full sequence of one unit, Check holds it shared. There is no cancellation
// once Eval has begun; the context only bounds resolver I/O.
type Kernel struct {
	mu sync.RWMutex

	comp  *compiler.Compiler
	scope *evaluator.Scope
	eval  *evaluator.Evaluator
	res   *resolver.Resolver
	reg   *library.Registry

	defs       library.Definition // everything merged so far
	classifier *library.Classifier

	classpath []string
	repos     []resolver.Repository
	preps     []preprocessor

	applied map[string]bool // definition names already applied (hot reload)

	ledger  ledger
	corrupt bool
	closed  bool
}

// New builds a session: definitions are aggregated in submission order,
// their repositories/imports/resources/markers applied, their dependencies
// resolved, and their init snippets executed, before the first cell runs.
func New(opts Options) (*Kernel, error) {
	k := &Kernel{
		comp:       compiler.New(),
		scope:      evaluator.NewScope(),
		res:        resolver.New(opts.cacheDir()),
		classifier: &library.Classifier{},
		classpath:  append([]string(nil), opts.Classpath...),
		applied:    make(map[string]bool),
	}
	k.eval = evaluator.New(k.scope)
	for _, r := range opts.Repositories {
		k.repos = append(k.repos, resolver.Repository{URL: r})
	}

	defs := opts.Definitions
	if opts.LibraryDir != "" {
		reg, err := library.NewRegistry(opts.LibraryDir)
		if err != nil {
			return nil, err
		}
		k.reg = reg
		defs = append(defs, reg.Definitions()...)
	}
	for _, def := range defs {
		if err := k.applyDefinition(context.Background(), def); err != nil {
			if k.reg != nil {
				k.reg.Close()
			}
			return nil, errors.Wrapf(err, "library %q", def.Name)
		}
		if def.Name != "" {
			k.applied[def.Name] = true
		}
	}
	return k, nil
}

// Check probes compile-readiness without mutating any state. An incomplete
// snippet is a non-complete result, not an error; definitively invalid
// source is a CompileError.
func (k *Kernel) Check(ctx context.Context, executionNumber int, code string) (cell.CheckResult, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	id := cell.LineID{ExecutionNumber: executionNumber}
	res := cell.CheckResult{LineID: id}

	src := k.preprocess(code)
	_, stripped, err := compiler.ScanAnnotations(src)
	if err != nil {
		return res, err
	}
	unit := cell.CodeUnit{ExecutionNumber: executionNumber, Source: stripped}
	if _, err := k.comp.Compile(unit, k.scope); err != nil {
		if cell.IsIncomplete(err) {
			return res, nil
		}
		return res, err
	}
	res.Complete = true
	return res, nil
}

// Eval runs the full Submitted -> Compiled -> Evaluated transition for one
// unit. Compile failures abort before any ledger mutation. Once compilation
// succeeded both ledger sides advance, even if evaluation then fails: the
// declarations a failing unit established stay in scope, and both histories
// stay aligned.
func (k *Kernel) Eval(ctx context.Context, executionNumber int, code string) (cell.EvalResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	id := cell.LineID{ExecutionNumber: executionNumber}
	res := cell.EvalResult{LineID: id, IsUnit: true}

	if k.closed {
		return res, errors.New("kernel is closed")
	}
	if k.corrupt || !k.ledger.synced() {
		k.corrupt = true
		return res, &cell.HistoryMismatch{Expected: k.ledger.next(), Got: id}
	}
	if last := k.ledger.lastExecution(); executionNumber <= last {
		return res, &cell.HistoryMismatch{Expected: k.ledger.next(), Got: id}
	}

	k.syncLibraries(ctx)

	src := k.preprocess(code)
	anns, stripped, err := compiler.ScanAnnotations(src)
	if err != nil {
		return res, err
	}
	handlerSnippets, err := k.processAnnotations(ctx, anns)
	if err != nil {
		return res, err
	}
	for _, snippet := range handlerSnippets {
		if err := k.runSnippet(snippet); err != nil {
			return res, &cell.CompileError{
				Message: "annotation handler failed: " + err.Error(),
				Cause:   err,
			}
		}
	}

	unit := cell.CodeUnit{ExecutionNumber: executionNumber, Source: stripped}
	cu, err := k.comp.Compile(unit, k.scope)
	if err != nil {
		return res, err
	}

	// Point of no return: the compiler side advances now, and the evaluator
	// side must advance before this call returns, whatever evaluation does.
	k.ledger.appendCompiled(id)

	k.runCallbacks(k.defs.InitCell, "initCell")

	value, isUnit, evalErr := k.eval.Execute(cu)

	if err := k.ledger.appendEvaluated(id); err != nil {
		k.corrupt = true
		log.Error("ledger desynchronized at %s: %v", id, err)
		return res, err
	}

	if evalErr != nil {
		return res, evalErr
	}

	k.applyConverters(id)
	k.runCallbacks(k.defs.AfterCellExecution, "afterCellExecution")

	res.Value = value
	res.IsUnit = isUnit
	return res, nil
}

// Close runs shutdown snippets and stops the library watcher. The kernel
// rejects Eval afterwards.
func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	k.runCallbacks(k.defs.Shutdown, "shutdown")
	if k.reg != nil {
		k.reg.Close()
	}
	return nil
}

// processAnnotations splits recognized directives: DependsOn/Repository feed
// the resolver; names registered by library definitions return their handler
// snippets; anything else is a compile error.
func (k *Kernel) processAnnotations(ctx context.Context, anns []compiler.Annotation) ([]string, error) {
	var (
		deps      []resolver.Coordinate
		cellRepos []resolver.Repository
		snippets  []string
	)
	for _, a := range anns {
		switch a.Name {
		case compiler.AnnotationDependsOn:
			for _, arg := range a.Args {
				c, err := resolver.ParseCoordinate(arg)
				if err != nil {
					return nil, &cell.CompileError{
						Message:  err.Error(),
						Location: cell.Location{Line: a.Line, Col: 1},
					}
				}
				deps = append(deps, c)
			}
		case compiler.AnnotationRepository:
			for _, arg := range a.Args {
				cellRepos = append(cellRepos, resolver.Repository{URL: arg})
			}
		default:
			snippet, ok := k.fileAnnotationHandler(a.Name)
			if !ok {
				return nil, &cell.CompileError{
					Message:  "unknown file annotation @file:" + a.Name,
					Location: cell.Location{Line: a.Line, Col: 1},
				}
			}
			snippets = append(snippets, snippet)
		}
	}

	// Cell-scoped repositories extend the session for this and later cells,
	// mirroring how resolved classpath entries persist.
	k.repos = append(k.repos, cellRepos...)

	if len(deps) > 0 {
		if err := k.resolveInto(ctx, deps); err != nil {
			return nil, err
		}
	}
	return snippets, nil
}

// resolveInto resolves coordinates and makes the result visible to the unit
// currently being compiled: classpath entries are appended and sidecar
// library descriptors are applied immediately.
func (k *Kernel) resolveInto(ctx context.Context, deps []resolver.Coordinate) error {
	resolved, err := k.res.Resolve(ctx, deps, k.repos)
	if err != nil {
		var re *cell.ResolutionError
		if errors.As(err, &re) {
			return cell.WrapResolution(re)
		}
		return &cell.CompileError{Message: err.Error(), Cause: err}
	}
	k.classpath = append(k.classpath, resolved.Classpath...)
	for _, data := range resolved.Descriptors {
		def, err := library.Load(data)
		if err != nil {
			return &cell.CompileError{
				Message: "resolved library descriptor rejected: " + err.Error(),
				Cause:   err,
			}
		}
		if err := k.applyDefinition(ctx, def); err != nil {
			return &cell.CompileError{
				Message: "resolved library failed to initialize: " + err.Error(),
				Cause:   err,
			}
		}
	}
	return nil
}

// applyDefinition wires one definition into the session: repositories,
// imports, resources, markers and preprocessors become active, its
// dependencies are resolved, and its init snippets run. The definition is
// then merged into the aggregated session configuration.
func (k *Kernel) applyDefinition(ctx context.Context, def library.Definition) error {
	for _, r := range def.Repositories {
		k.repos = append(k.repos, resolver.Repository{URL: r})
	}
	for _, imp := range def.Imports {
		ns := strings.TrimSuffix(imp, ".*")
		if err := k.scope.Import(ns); err != nil {
			return err
		}
	}
	for _, r := range def.Resources {
		k.scope.SetResource(r.Name, r.Path)
	}
	k.classifier.Register(library.MarkersOf(def)...)
	for _, p := range def.CodePreprocessors {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			log.Warn("library %q: bad preprocessor pattern %q: %v", def.Name, p.Pattern, err)
			continue
		}
		k.preps = append(k.preps, preprocessor{re: re, replace: p.Replace})
	}

	if len(def.Dependencies) > 0 {
		var coords []resolver.Coordinate
		for _, d := range def.Dependencies {
			c, err := resolver.ParseCoordinate(d)
			if err != nil {
				return err
			}
			coords = append(coords, c)
		}
		if err := k.resolveInto(ctx, coords); err != nil {
			return err
		}
	}

	k.defs = library.Merge(k.defs, def)

	for _, snippet := range def.Init {
		if err := k.runSnippet(snippet); err != nil {
			return errors.Wrap(err, "init snippet")
		}
	}
	return nil
}

// syncLibraries applies descriptor files added to the watched directory
// since the last cell. A failing new library is logged and skipped; it must
// not fail the user's cell.
func (k *Kernel) syncLibraries(ctx context.Context) {
	if k.reg == nil {
		return
	}
	k.reg.Aggregate() // triggers reload if the watcher saw changes
	for _, def := range k.reg.Definitions() {
		if def.Name == "" || k.applied[def.Name] {
			continue
		}
		k.applied[def.Name] = true
		if err := k.applyDefinition(ctx, def); err != nil {
			log.Error("library %q failed to initialize: %v", def.Name, err)
		} else {
			log.Info("library %q loaded", def.Name)
		}
	}
}

// runSnippet compiles and evaluates kernel-internal code (library callbacks,
// annotation handlers) against the session scope, outside the ledger.
func (k *Kernel) runSnippet(src string) error {
	unit := cell.CodeUnit{Source: src}
	cu, err := k.comp.Compile(unit, k.scope)
	if err != nil {
		return err
	}
	_, _, err = k.eval.Execute(cu)
	return err
}

// runCallbacks runs library lifecycle snippets; their failures are reported
// but never fail the user's cell.
func (k *Kernel) runCallbacks(snippets []string, kind string) {
	for _, s := range snippets {
		if err := k.runSnippet(s); err != nil {
			log.Warn("%s callback failed: %v", kind, err)
		}
	}
}

func (k *Kernel) preprocess(src string) string {
	for _, p := range k.preps {
		src = p.re.ReplaceAllString(src, p.replace)
	}
	return src
}

func (k *Kernel) fileAnnotationHandler(name string) (string, bool) {
	for _, h := range k.defs.FileAnnotations {
		if h.Name == name {
			return h.Snippet, true
		}
	}
	return "", false
}

// Classpath returns a copy of the current resolution path.
func (k *Kernel) Classpath() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return append([]string(nil), k.classpath...)
}

// Bindings returns all session bindings in declaration order.
func (k *Kernel) Bindings() []cell.Binding {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.scope.Bindings()
}

// UserBindings returns the bindings not claimed internal by any marker.
func (k *Kernel) UserBindings() []cell.Binding {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var out []cell.Binding
	for _, b := range k.scope.Bindings() {
		if !k.classifier.IsInternal(b) {
			out = append(out, b)
		}
	}
	return out
}

// IsInternal consults the composed internal-variable markers.
func (k *Kernel) IsInternal(b cell.Binding) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.classifier.IsInternal(b)
}

// HistoryLengths exposes both ledger sides' lengths for inspection.
func (k *Kernel) HistoryLengths() (compiled, evaluated int) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.ledger.compiledLen(), k.ledger.evaluatedLen()
}

