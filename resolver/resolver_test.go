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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/cellrepl/cell"
)

func TestParseCoordinate(t *testing.T) {
	c, err := ParseCoordinate("com.example:lib:1.2.0")
	require.NoError(t, err)
	require.Equal(t, Coordinate{Group: "com.example", Artifact: "lib", Version: "1.2.0"}, c)
	require.Equal(t, "com/example/lib/1.2.0/lib-1.2.0.jar", c.JarPath())

	for _, bad := range []string{"", "a:b", "a:b:c:d", "a::c"} {
		_, err := ParseCoordinate(bad)
		require.Error(t, err, bad)
	}
}

func TestCompareVersions(t *testing.T) {
	require.Positive(t, CompareVersions("1.10.0", "1.9.0"))
	require.Negative(t, CompareVersions("1.0.0", "2.0.0"))
	require.Zero(t, CompareVersions("1.0.0", "1.0.0"))
	// non-semver falls back to lexical
	require.Negative(t, CompareVersions("alpha", "beta"))
}

// writeArtifact lays out one artifact in a Maven-style local repository.
func writeArtifact(t *testing.T, repo string, c Coordinate, pomDeps []Coordinate, descriptor string) {
	t.Helper()
	dir := filepath.Join(repo, filepath.FromSlash(c.Dir()))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repo, filepath.FromSlash(c.JarPath())), []byte("jar"), 0o644))

	var deps strings.Builder
	for _, d := range pomDeps {
		fmt.Fprintf(&deps, `
    <dependency>
      <groupId>%s</groupId>
      <artifactId>%s</artifactId>
      <version>%s</version>
    </dependency>`, d.Group, d.Artifact, d.Version)
	}
	pom := fmt.Sprintf(`<project>
  <modelVersion>4.0.0</modelVersion>
  <groupId>%s</groupId>
  <artifactId>%s</artifactId>
  <version>%s</version>
  <dependencies>%s
  </dependencies>
</project>`, c.Group, c.Artifact, c.Version, deps.String())
	require.NoError(t, os.WriteFile(filepath.Join(repo, filepath.FromSlash(c.PomPath())), []byte(pom), 0o644))

	if descriptor != "" {
		require.NoError(t, os.WriteFile(filepath.Join(repo, filepath.FromSlash(c.DescriptorPath())), []byte(descriptor), 0o644))
	}
}

func TestResolve_Transitive(t *testing.T) {
	repo := t.TempDir()
	lib := Coordinate{Group: "com.example", Artifact: "lib", Version: "1.0.0"}
	dep := Coordinate{Group: "com.example", Artifact: "dep", Version: "1.0.0"}
	writeArtifact(t, repo, lib, []Coordinate{dep}, "")
	writeArtifact(t, repo, dep, nil, "")

	r := New(t.TempDir())
	res, err := r.Resolve(context.Background(), []Coordinate{lib}, []Repository{{URL: repo}})
	require.NoError(t, err)
	require.Len(t, res.Classpath, 2)
	require.Contains(t, res.Classpath[0], "lib-1.0.0.jar")
	require.Contains(t, res.Classpath[1], "dep-1.0.0.jar")
}

func TestResolve_VersionConflict(t *testing.T) {
	repo := t.TempDir()
	old := Coordinate{Group: "com.example", Artifact: "lib", Version: "1.0.0"}
	cur := Coordinate{Group: "com.example", Artifact: "lib", Version: "1.2.0"}
	writeArtifact(t, repo, old, nil, "")
	writeArtifact(t, repo, cur, nil, "")

	r := New(t.TempDir())
	res, err := r.Resolve(context.Background(), []Coordinate{old, cur}, []Repository{{URL: repo}})
	require.NoError(t, err)
	require.Len(t, res.Classpath, 1)
	require.Contains(t, res.Classpath[0], "lib-1.2.0.jar")
}

func TestResolve_SidecarDescriptor(t *testing.T) {
	repo := t.TempDir()
	lib := Coordinate{Group: "com.example", Artifact: "textlib", Version: "1.0.0"}
	writeArtifact(t, repo, lib, nil, "name: textlib\nimports: [\"strings.*\"]\n")

	r := New(t.TempDir())
	res, err := r.Resolve(context.Background(), []Coordinate{lib}, []Repository{{URL: repo}})
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 1)
	require.Contains(t, string(res.Descriptors[0]), "textlib")
}

func TestResolve_NotFound(t *testing.T) {
	r := New(t.TempDir())
	missing := Coordinate{Group: "com.example", Artifact: "ghost", Version: "1.0.0"}
	_, err := r.Resolve(context.Background(), []Coordinate{missing}, []Repository{{URL: t.TempDir()}})
	var re *cell.ResolutionError
	require.True(t, errors.As(err, &re), "got %v", err)
	require.Contains(t, re.Coordinate, "ghost")

	_, err = r.Resolve(context.Background(), []Coordinate{missing}, nil)
	require.True(t, errors.As(err, &re), "no repositories: %v", err)
}

func TestResolve_Memoized(t *testing.T) {
	repo := t.TempDir()
	lib := Coordinate{Group: "com.example", Artifact: "lib", Version: "1.0.0"}
	writeArtifact(t, repo, lib, nil, "")

	r := New(t.TempDir())
	first, err := r.Resolve(context.Background(), []Coordinate{lib}, []Repository{{URL: repo}})
	require.NoError(t, err)

	// Wipe the repository: an identical request must not touch it again.
	require.NoError(t, os.RemoveAll(repo))
	second, err := r.Resolve(context.Background(), []Coordinate{lib}, []Repository{{URL: repo}})
	require.NoError(t, err)
	require.Equal(t, first.Classpath, second.Classpath)
}
