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
	"github.com/cloudwego/cellrepl/cell"
)

// ledger is the shared execution history: two append-only sequences (the
// compiler side and the evaluator side) held in one arena behind the
// kernel's single guard, so they can only advance together or not at all.
//
// Invariant outside an in-flight Eval: both sides have equal length and
// identical LineID sequences. A violation is corruption, not a recoverable
// error.
type ledger struct {
	compiled  []cell.LineID
	evaluated []cell.LineID
}

// lastExecution returns the highest compiled execution number, 0 if empty.
func (l *ledger) lastExecution() int {
	if len(l.compiled) == 0 {
		return 0
	}
	return l.compiled[len(l.compiled)-1].ExecutionNumber
}

// next is the ledger position an incoming unit is expected to take.
func (l *ledger) next() cell.LineID {
	return cell.LineID{ExecutionNumber: l.lastExecution() + 1}
}

// synced reports whether both sides are length-equal and pairwise identical.
func (l *ledger) synced() bool {
	if len(l.compiled) != len(l.evaluated) {
		return false
	}
	for i := range l.compiled {
		if l.compiled[i] != l.evaluated[i] {
			return false
		}
	}
	return true
}

func (l *ledger) appendCompiled(id cell.LineID) {
	l.compiled = append(l.compiled, id)
}

// appendEvaluated extends the evaluator side. The id must match the most
// recent compiler-side entry that the evaluator side has not caught up with.
func (l *ledger) appendEvaluated(id cell.LineID) error {
	if len(l.evaluated) != len(l.compiled)-1 {
		return &cell.HistoryMismatch{Expected: l.next(), Got: id}
	}
	if expect := l.compiled[len(l.compiled)-1]; expect != id {
		return &cell.HistoryMismatch{Expected: expect, Got: id}
	}
	l.evaluated = append(l.evaluated, id)
	return nil
}

func (l *ledger) compiledLen() int  { return len(l.compiled) }
func (l *ledger) evaluatedLen() int { return len(l.evaluated) }
