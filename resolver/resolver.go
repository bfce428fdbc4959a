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

// Package resolver resolves declared artifact coordinates against a set of
// repositories (local directories or HTTP bases in Maven layout) into local
// classpath entries, following POM-declared transitive dependencies.
package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vifraa/gopom"

	"github.com/cloudwego/cellrepl/cell"
	"github.com/cloudwego/cellrepl/internal/log"
)

// Repository is one resolution source: a local directory or an http(s) base
// URL, both in group/artifact/version layout.
type Repository struct {
	URL string
}

func (r Repository) remote() bool {
	return strings.HasPrefix(r.URL, "http://") || strings.HasPrefix(r.URL, "https://")
}

// Resolved is the outcome of one resolution request.
type Resolved struct {
	// Classpath entries (local file paths) for every resolved artifact, in
	// resolution order.
	Classpath []string
	// Descriptors holds the raw bytes of sidecar *.kernel.yaml library
	// descriptors shipped next to resolved artifacts, if any.
	Descriptors [][]byte
}

// Resolver downloads and locates artifacts. Resolution of an identical
// (coordinates, repositories) request is memoized, so repeated identical
// directives perform no repository I/O.
type Resolver struct {
	mu       sync.Mutex
	cacheDir string
	client   *http.Client
	memo     map[string]*Resolved
}

func New(cacheDir string) *Resolver {
	return &Resolver{
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 60 * time.Second},
		memo:     make(map[string]*Resolved),
	}
}

// Resolve resolves all coordinates, including POM-declared transitive
// dependencies, against the given repositories. Version conflicts between
// requests for the same group:artifact are settled by taking the highest
// version. Any unresolvable artifact fails the whole request.
func (r *Resolver) Resolve(ctx context.Context, coords []Coordinate, repos []Repository) (*Resolved, error) {
	if len(coords) == 0 {
		return &Resolved{}, nil
	}
	key := requestKey(coords, repos)
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.memo[key]; ok {
		log.Debug("resolver: cache hit for %s", key)
		return res, nil
	}

	res := &Resolved{}
	queue := dedupe(coords)
	seen := make(map[string]string) // group:artifact -> resolved version
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if v, ok := seen[c.Key()]; ok && CompareVersions(v, c.Version) >= 0 {
			continue
		}
		seen[c.Key()] = c.Version

		loc, err := r.locate(ctx, c, repos)
		if err != nil {
			return nil, err
		}
		res.Classpath = append(res.Classpath, loc.jar)
		if loc.descriptor != nil {
			res.Descriptors = append(res.Descriptors, loc.descriptor)
		}
		if loc.pom != "" {
			deps, err := transitiveDeps(loc.pom)
			if err != nil {
				log.Warn("resolver: skipping unreadable POM for %s: %v", c, err)
			} else {
				queue = append(queue, deps...)
			}
		}
	}
	r.memo[key] = res
	log.Info("resolver: resolved %d artifacts (%s)", len(res.Classpath), key)
	return res, nil
}

type located struct {
	jar        string
	pom        string // empty if the artifact ships no POM
	descriptor []byte // sidecar kernel descriptor, if any
}

// locate finds one artifact in the first repository that has it.
func (r *Resolver) locate(ctx context.Context, c Coordinate, repos []Repository) (located, error) {
	if len(repos) == 0 {
		return located{}, &cell.ResolutionError{
			Coordinate: c.String(),
			Cause:      errors.New("no repositories configured"),
		}
	}
	var firstErr error
	for _, repo := range repos {
		loc, err := r.locateIn(ctx, c, repo)
		if err == nil {
			return loc, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return located{}, &cell.ResolutionError{Coordinate: c.String(), Cause: firstErr}
}

func (r *Resolver) locateIn(ctx context.Context, c Coordinate, repo Repository) (located, error) {
	if !repo.remote() {
		jar := filepath.Join(repo.URL, filepath.FromSlash(c.JarPath()))
		if _, err := os.Stat(jar); err != nil {
			return located{}, fmt.Errorf("not in %s", repo.URL)
		}
		loc := located{jar: jar}
		pom := filepath.Join(repo.URL, filepath.FromSlash(c.PomPath()))
		if _, err := os.Stat(pom); err == nil {
			loc.pom = pom
		}
		desc := filepath.Join(repo.URL, filepath.FromSlash(c.DescriptorPath()))
		if data, err := os.ReadFile(desc); err == nil {
			loc.descriptor = data
		}
		return loc, nil
	}

	base := strings.TrimRight(repo.URL, "/")
	jar, err := r.download(ctx, base+"/"+c.JarPath(), c.JarPath())
	if err != nil {
		return located{}, err
	}
	loc := located{jar: jar}
	if pom, err := r.download(ctx, base+"/"+c.PomPath(), c.PomPath()); err == nil {
		loc.pom = pom
	}
	if desc, err := r.download(ctx, base+"/"+c.DescriptorPath(), c.DescriptorPath()); err == nil {
		if data, err := os.ReadFile(desc); err == nil {
			loc.descriptor = data
		}
	}
	return loc, nil
}

// download fetches url into the cache unless already present.
func (r *Resolver) download(ctx context.Context, url, rel string) (string, error) {
	dst := filepath.Join(r.cacheDir, filepath.FromSlash(rel))
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// transitiveDeps reads compile-scope, non-optional dependencies out of a POM.
func transitiveDeps(pomPath string) ([]Coordinate, error) {
	proj, err := gopom.Parse(pomPath)
	if err != nil {
		return nil, err
	}
	if proj.Dependencies == nil {
		return nil, nil
	}
	var out []Coordinate
	for _, d := range *proj.Dependencies {
		if d.GroupID == nil || d.ArtifactID == nil || d.Version == nil {
			continue
		}
		if d.Scope != nil && *d.Scope != "" && *d.Scope != "compile" {
			continue
		}
		if d.Optional != nil && *d.Optional == "true" {
			continue
		}
		// Property-interpolated versions need a full POM model; skip them.
		if strings.Contains(*d.Version, "${") {
			continue
		}
		out = append(out, Coordinate{
			Group:    *d.GroupID,
			Artifact: *d.ArtifactID,
			Version:  *d.Version,
		})
	}
	return out, nil
}

// dedupe keeps the highest requested version per group:artifact, preserving
// first-seen order.
func dedupe(coords []Coordinate) []Coordinate {
	best := make(map[string]Coordinate)
	var order []string
	for _, c := range coords {
		prev, ok := best[c.Key()]
		if !ok {
			best[c.Key()] = c
			order = append(order, c.Key())
			continue
		}
		if CompareVersions(c.Version, prev.Version) > 0 {
			best[c.Key()] = c
		}
	}
	out := make([]Coordinate, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

// requestKey normalizes a resolution request for memoization.
func requestKey(coords []Coordinate, repos []Repository) string {
	cs := make([]string, 0, len(coords))
	for _, c := range coords {
		cs = append(cs, c.String())
	}
	sort.Strings(cs)
	rs := make([]string, 0, len(repos))
	for _, r := range repos {
		rs = append(rs, r.URL)
	}
	sort.Strings(rs)
	return strings.Join(cs, ",") + "@" + strings.Join(rs, ",")
}
