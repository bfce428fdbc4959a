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

package version

import "golang.org/x/mod/semver"

// Version is the kernel version, bumped on every release.
const Version = "v0.3.0"

// Supports reports whether this kernel satisfies a library's declared
// minimum kernel version. An empty or malformed requirement is accepted:
// libraries written before version gating existed should keep loading.
func Supports(minVersion string) bool {
	if minVersion == "" {
		return true
	}
	v := minVersion
	if v[0] != 'v' {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return true
	}
	return semver.Compare(Version, v) >= 0
}
