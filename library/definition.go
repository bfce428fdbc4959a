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

// Package library defines the declarative extension descriptor consumed by
// the kernel. A Definition is a plain data aggregate: every field defaults
// to empty, a descriptor specifies only what it changes, and definitions
// combine by pure additive merge.
package library

// Renderer maps values of one type name to a display expression. Expr is a
// cell-language expression evaluated with the value bound to `it`.
type Renderer struct {
	TypeName string `yaml:"type"`
	Expr     string `yaml:"expression"`
}

// ThrowableRenderer maps runtime failures whose message contains Match to a
// display expression; `it` is bound to the failure message.
type ThrowableRenderer struct {
	Match string `yaml:"match"`
	Expr  string `yaml:"expression"`
}

// Converter rewrites the value of freshly declared bindings whose name
// matches the prefix. Expr is evaluated with the old value bound to `it`.
type Converter struct {
	NamePrefix string `yaml:"namePrefix"`
	Expr       string `yaml:"expression"`
}

// AnnotationHandler runs a snippet whenever a matching @file: annotation is
// found in a compiled cell. The annotation's arguments are not interpolated;
// handlers typically toggle library state.
type AnnotationHandler struct {
	Name    string `yaml:"name"`
	Snippet string `yaml:"snippet"`
}

// Resource is a named file or URL made available to cells via resource(name).
type Resource struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Preprocessor is a regex rewrite applied to cell source before compilation.
type Preprocessor struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// Definition is one library's contribution to the kernel configuration.
// All fields are optional; the zero value contributes nothing.
type Definition struct {
	// Name identifies the library in logs; not used for merging.
	Name string `yaml:"name"`

	Dependencies []string `yaml:"dependencies"` // group:artifact:version coordinates
	Repositories []string `yaml:"repositories"` // resolution sources (dir or URL)
	Imports      []string `yaml:"imports"`      // namespaces, e.g. "math.*"

	Init               []string `yaml:"init"`               // snippets run once at session start
	InitCell           []string `yaml:"initCell"`           // snippets run before every cell
	AfterCellExecution []string `yaml:"afterCellExecution"` // snippets run after every successful cell
	Shutdown           []string `yaml:"shutdown"`           // snippets run at Close

	Renderers          []Renderer          `yaml:"renderers"`
	ThrowableRenderers []ThrowableRenderer `yaml:"throwableRenderers"`
	Converters         []Converter         `yaml:"converters"`
	ClassAnnotations   []AnnotationHandler `yaml:"classAnnotations"`
	FileAnnotations    []AnnotationHandler `yaml:"fileAnnotations"`
	Resources          []Resource          `yaml:"resources"`
	CodePreprocessors  []Preprocessor      `yaml:"codePreprocessors"`

	MinKernelVersion string `yaml:"minKernelVersion"`

	// InternalVariablesMarkers are binding-name prefixes marking a binding
	// as internal; IntegrationTypeNameRules are regular expressions over
	// binding type names with the same effect.
	InternalVariablesMarkers []string `yaml:"internalVariablesMarkers"`
	IntegrationTypeNameRules []string `yaml:"integrationTypeNameRules"`

	// OriginalDescriptorText preserves the descriptor source this definition
	// was loaded from; empty for programmatic definitions.
	OriginalDescriptorText string `yaml:"-"`
}

// Merge concatenates all definitions in submission order. No field overrides
// another: every contribution is additive, and semantic conflicts (such as
// two libraries requesting different versions of one artifact) are left to
// the dependency resolver.
func Merge(defs ...Definition) Definition {
	var out Definition
	for _, d := range defs {
		out.Dependencies = append(out.Dependencies, d.Dependencies...)
		out.Repositories = append(out.Repositories, d.Repositories...)
		out.Imports = append(out.Imports, d.Imports...)
		out.Init = append(out.Init, d.Init...)
		out.InitCell = append(out.InitCell, d.InitCell...)
		out.AfterCellExecution = append(out.AfterCellExecution, d.AfterCellExecution...)
		out.Shutdown = append(out.Shutdown, d.Shutdown...)
		out.Renderers = append(out.Renderers, d.Renderers...)
		out.ThrowableRenderers = append(out.ThrowableRenderers, d.ThrowableRenderers...)
		out.Converters = append(out.Converters, d.Converters...)
		out.ClassAnnotations = append(out.ClassAnnotations, d.ClassAnnotations...)
		out.FileAnnotations = append(out.FileAnnotations, d.FileAnnotations...)
		out.Resources = append(out.Resources, d.Resources...)
		out.CodePreprocessors = append(out.CodePreprocessors, d.CodePreprocessors...)
		out.InternalVariablesMarkers = append(out.InternalVariablesMarkers, d.InternalVariablesMarkers...)
		out.IntegrationTypeNameRules = append(out.IntegrationTypeNameRules, d.IntegrationTypeNameRules...)
	}
	return out
}
