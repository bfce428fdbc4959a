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

package resolver

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/mod/semver"
)

// Coordinate identifies an artifact as group:artifact:version.
type Coordinate struct {
	Group    string
	Artifact string
	Version  string
}

// ParseCoordinate parses a "group:artifact:version" triple.
func ParseCoordinate(s string) (Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return Coordinate{}, fmt.Errorf("malformed coordinate %q: want group:artifact:version", s)
	}
	for _, p := range parts {
		if p == "" {
			return Coordinate{}, fmt.Errorf("malformed coordinate %q: empty component", s)
		}
	}
	return Coordinate{Group: parts[0], Artifact: parts[1], Version: parts[2]}, nil
}

func (c Coordinate) String() string {
	return c.Group + ":" + c.Artifact + ":" + c.Version
}

// Key identifies the artifact irrespective of version, the unit of version
// conflict resolution.
func (c Coordinate) Key() string {
	return c.Group + ":" + c.Artifact
}

// Dir is the artifact's directory in a Maven-layout repository.
func (c Coordinate) Dir() string {
	return path.Join(strings.ReplaceAll(c.Group, ".", "/"), c.Artifact, c.Version)
}

func (c Coordinate) base() string {
	return c.Artifact + "-" + c.Version
}

// JarPath, PomPath and DescriptorPath are repository-relative file paths.
func (c Coordinate) JarPath() string        { return path.Join(c.Dir(), c.base()+".jar") }
func (c Coordinate) PomPath() string        { return path.Join(c.Dir(), c.base()+".pom") }
func (c Coordinate) DescriptorPath() string { return path.Join(c.Dir(), c.base()+".kernel.yaml") }

// CompareVersions orders two version strings, semver first, lexical
// fallback for versions semver cannot parse.
func CompareVersions(a, b string) int {
	va, vb := a, b
	if !strings.HasPrefix(va, "v") {
		va = "v" + va
	}
	if !strings.HasPrefix(vb, "v") {
		vb = "v" + vb
	}
	if semver.IsValid(va) && semver.IsValid(vb) {
		return semver.Compare(va, vb)
	}
	return strings.Compare(a, b)
}
