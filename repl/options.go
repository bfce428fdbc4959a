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
	"os"
	"path/filepath"

	"github.com/cloudwego/cellrepl/library"
)

// Options is the construction-time configuration of a kernel session.
type Options struct {
	// Classpath is the initial ordered list of resolution-path entries.
	Classpath []string
	// Repositories are artifact resolution sources (local dirs or HTTP
	// bases) available to every cell.
	Repositories []string
	// Definitions are library definitions merged before first use, in order.
	Definitions []library.Definition
	// LibraryDir, if set, is a watched directory of YAML library
	// descriptors; descriptors added while the session runs are picked up
	// before the next cell.
	LibraryDir string
	// CacheDir is where remote artifacts are downloaded. Defaults to the
	// user cache directory.
	CacheDir string
}

func (o *Options) cacheDir() string {
	if o.CacheDir != "" {
		return o.CacheDir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "cellrepl")
}
