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
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cloudwego/cellrepl/version"
)

// Load parses a YAML descriptor. A descriptor declaring a minKernelVersion
// newer than this kernel is rejected here, before it can contribute anything.
func Load(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, errors.Wrap(err, "malformed library descriptor")
	}
	if !version.Supports(def.MinKernelVersion) {
		return Definition{}, errors.Errorf(
			"library %q requires kernel >= %s, this kernel is %s",
			def.Name, def.MinKernelVersion, version.Version)
	}
	def.OriginalDescriptorText = string(data)
	return def, nil
}

// LoadFile loads one descriptor file.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, errors.Wrap(err, "read library descriptor")
	}
	def, err := Load(data)
	if err != nil {
		return Definition{}, errors.Wrapf(err, "%s", path)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return def, nil
}

// LoadDir loads every *.yaml/*.yml descriptor in a directory, sorted by file
// name so aggregation order is stable.
func LoadDir(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read library directory")
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	var defs []Definition
	for _, f := range files {
		def, err := LoadFile(filepath.Join(dir, f))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
