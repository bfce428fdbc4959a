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

// Package cell defines the shared data model of the kernel: code units, line
// identities, results and the failure taxonomy. Everything here is plain
// serializable data; the pipeline never reasons from hidden state.
package cell

import "fmt"

// CodeUnit is one submitted source snippet. Immutable once created.
type CodeUnit struct {
	ExecutionNumber int    `json:"execution_number"`
	Generation      int    `json:"generation"` // always 0; reserved for re-execution designs
	Source          string `json:"source"`
}

// ID derives the unit's ledger identity.
func (u CodeUnit) ID() LineID {
	return LineID{ExecutionNumber: u.ExecutionNumber, Generation: u.Generation}
}

// LineID is the join key between compiled artifacts and evaluated results.
// Every LineID passed to evaluation must correspond to a CodeUnit previously
// accepted by compilation in the same ledger.
type LineID struct {
	ExecutionNumber int `json:"execution_number"`
	Generation      int `json:"generation"`
}

func (id LineID) String() string {
	return fmt.Sprintf("Line_%d_%d", id.ExecutionNumber, id.Generation)
}

// EvalResult is produced exactly once per successful Eval call. IsUnit marks
// cells whose last statement produced no value (declarations, imports).
type EvalResult struct {
	LineID LineID
	Value  interface{}
	IsUnit bool
}

// CheckResult reports compile-readiness of a snippet without any ledger
// mutation. Complete=false means the caller should accumulate more input and
// resubmit under the same execution number.
type CheckResult struct {
	LineID   LineID
	Complete bool
}

// Binding is the metadata of one declared name in the session scope,
// inspectable by callers for internal/user-facing classification.
type Binding struct {
	Name     string
	TypeName string
	Value    interface{}
	Mutable  bool
	LineID   LineID
}
