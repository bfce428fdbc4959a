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

package utils

import (
	"github.com/fsnotify/fsnotify"

	"github.com/cloudwego/cellrepl/internal/log"
)

// WatchDir watches a directory and invokes cb for every filesystem event on
// its entries. It returns a stop function. Watching is best-effort: if the
// watcher cannot be created the callback is simply never invoked.
func WatchDir(dir string, cb func(op fsnotify.Op, file string)) (stop func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error("failed to create watcher for %s: %v", dir, err)
		return func() {}
	}
	if err := watcher.Add(dir); err != nil {
		log.Error("failed to watch %s: %v", dir, err)
		_ = watcher.Close()
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				cb(ev.Op, ev.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("watch error on %s: %v", dir, err)
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		_ = watcher.Close()
	}
}
