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
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/cloudwego/cellrepl/internal/log"
	"github.com/cloudwego/cellrepl/internal/utils"
)

// Registry manages the descriptors of one directory and keeps them fresh:
// descriptor files written or removed while the session runs are reloaded on
// the next Aggregate call.
type Registry struct {
	mu    sync.RWMutex
	dir   string
	defs  []Definition
	dirty bool
	stop  func()
}

// NewRegistry loads all descriptors in dir and starts watching it.
func NewRegistry(dir string) (*Registry, error) {
	defs, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	r := &Registry{dir: dir, defs: defs}
	r.stop = utils.WatchDir(dir, func(op fsnotify.Op, file string) {
		ext := filepath.Ext(file)
		if ext != ".yaml" && ext != ".yml" {
			return
		}
		if op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
			return
		}
		log.Info("library registry: %s changed, reloading on next use", file)
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
	})
	return r, nil
}

// Aggregate merges the registry's current definitions, reloading the
// directory first if the watcher saw changes. A failed reload keeps the last
// good set.
func (r *Registry) Aggregate() Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dirty {
		defs, err := LoadDir(r.dir)
		if err != nil {
			log.Error("library registry: reload of %s failed, keeping previous definitions: %v", r.dir, err)
		} else {
			r.defs = defs
		}
		r.dirty = false
	}
	return Merge(r.defs...)
}

// Definitions returns a copy of the current definition list.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Close stops the directory watcher.
func (r *Registry) Close() {
	if r.stop != nil {
		r.stop()
	}
}
