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

package library

import (
	"regexp"
	"strings"

	"github.com/cloudwego/cellrepl/cell"
	"github.com/cloudwego/cellrepl/internal/log"
)

// Marker is a pure predicate answering "is this binding internal?".
type Marker func(cell.Binding) bool

// NamePrefixMarker marks bindings whose name starts with prefix.
func NamePrefixMarker(prefix string) Marker {
	return func(b cell.Binding) bool {
		return strings.HasPrefix(b.Name, prefix)
	}
}

// TypeNameMarker marks bindings whose type name matches the pattern.
func TypeNameMarker(pattern string) (Marker, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return func(b cell.Binding) bool {
		return re.MatchString(b.TypeName)
	}, nil
}

// Classifier composes registered markers with logical OR. Markers are pure
// predicates, so evaluation order is irrelevant; with no markers registered
// every binding is user-facing.
type Classifier struct {
	markers []Marker
}

func (c *Classifier) Register(markers ...Marker) {
	c.markers = append(c.markers, markers...)
}

// IsInternal reports whether any registered marker claims the binding.
func (c *Classifier) IsInternal(b cell.Binding) bool {
	for _, m := range c.markers {
		if m(b) {
			return true
		}
	}
	return false
}

// MarkersOf builds the markers a definition contributes: name-prefix markers
// from internalVariablesMarkers and type-name markers from
// integrationTypeNameRules. Malformed patterns are logged and skipped rather
// than failing the whole definition.
func MarkersOf(def Definition) []Marker {
	var out []Marker
	for _, p := range def.InternalVariablesMarkers {
		if p == "" {
			continue
		}
		out = append(out, NamePrefixMarker(p))
	}
	for _, rule := range def.IntegrationTypeNameRules {
		m, err := TypeNameMarker(rule)
		if err != nil {
			log.Warn("library %q: bad type name rule %q: %v", def.Name, rule, err)
			continue
		}
		out = append(out, m)
	}
	return out
}
