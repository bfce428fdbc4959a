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

package cell

import (
	"fmt"

	"github.com/pkg/errors"
)

// Location points at the offending statement within a cell. Line is 1-based
// within the submitted source text.
type Location struct {
	Line int
	Col  int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Col)
}

// CompileError: the source is definitively invalid. Recoverable — the caller
// may resubmit a corrected snippet under the same execution number.
type CompileError struct {
	Message  string
	Location Location
	Cause    error
}

func (e *CompileError) Error() string {
	if e.Location.Line > 0 {
		return fmt.Sprintf("compile error at %s: %s", e.Location, e.Message)
	}
	return "compile error: " + e.Message
}

func (e *CompileError) Unwrap() error { return e.Cause }

// IncompleteError: the source is a valid prefix of a larger statement. The
// caller should concatenate more input and retry under the same execution
// number, not a new one.
type IncompleteError struct {
	// Hint names the unclosed construct, e.g. "{" or a string quote.
	Hint string
}

func (e *IncompleteError) Error() string {
	if e.Hint != "" {
		return "incomplete input: unclosed " + e.Hint
	}
	return "incomplete input"
}

// RuntimeError: the compiled unit executed but raised a failure. Declarations
// established before the failure remain bound for future units.
type RuntimeError struct {
	Message  string
	Location Location
	Cause    error
}

func (e *RuntimeError) Error() string {
	if e.Location.Line > 0 {
		return fmt.Sprintf("runtime error at %s: %s", e.Location, e.Message)
	}
	return "runtime error: " + e.Message
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// HistoryMismatch: the two ledger sides desynchronized, or an execution
// number violated the strictly-increasing ordering. Fatal for the affected
// call; session integrity is assumed compromised and is not auto-repaired.
type HistoryMismatch struct {
	Expected LineID
	Got      LineID
}

func (e *HistoryMismatch) Error() string {
	return fmt.Sprintf("history mismatch: expected %s, got %s", e.Expected, e.Got)
}

// ResolutionError: artifact or repository resolution failed. The pipeline
// wraps it into a CompileError; the ledger is never extended on its account.
type ResolutionError struct {
	Coordinate string
	Cause      error
}

func (e *ResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot resolve %s: %v", e.Coordinate, e.Cause)
	}
	return "cannot resolve " + e.Coordinate
}

func (e *ResolutionError) Unwrap() error { return e.Cause }

// WrapResolution converts a resolution failure into the compile-time failure
// surfaced to the caller, keeping the cause chain intact.
func WrapResolution(err *ResolutionError) *CompileError {
	return &CompileError{
		Message: err.Error(),
		Cause:   errors.WithStack(err),
	}
}

// IsIncomplete reports whether err is (or wraps) an IncompleteError.
func IsIncomplete(err error) bool {
	var ie *IncompleteError
	return errors.As(err, &ie)
}
