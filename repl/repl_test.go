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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/cloudwego/cellrepl/cell"
	"github.com/cloudwego/cellrepl/library"
)

func newKernel(t *testing.T, opts Options) *Kernel {
	t.Helper()
	if opts.CacheDir == "" {
		opts.CacheDir = t.TempDir()
	}
	k, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { k.Close() })
	return k
}

func mustEval(t *testing.T, k *Kernel, n int, src string) cell.EvalResult {
	t.Helper()
	res, err := k.Eval(context.Background(), n, src)
	if err != nil {
		t.Fatalf("Eval(%d, %q): %v", n, src, err)
	}
	return res
}

func TestEval_CrossCellState(t *testing.T) {
	k := newKernel(t, Options{})

	res := mustEval(t, k, 1, "val x = 1")
	if !res.IsUnit {
		t.Fatal("declaration should yield a unit result")
	}
	res = mustEval(t, k, 2, "x + 1")
	if res.IsUnit || res.Value != float64(2) {
		t.Fatalf("got %v (unit=%v), want 2", res.Value, res.IsUnit)
	}
	if res.LineID.ExecutionNumber != 2 || res.LineID.Generation != 0 {
		t.Fatalf("line id: %v", res.LineID)
	}
}

func TestEval_LedgerAlwaysAligned(t *testing.T) {
	k := newKernel(t, Options{})
	ctx := context.Background()

	mustEval(t, k, 1, "val a = 1")
	if c, e := k.HistoryLengths(); c != 1 || e != 1 {
		t.Fatalf("lengths after eval 1: %d/%d", c, e)
	}

	// Runtime failure: compiled side advanced, evaluator side advances too,
	// and bindings declared before the failure survive.
	_, err := k.Eval(ctx, 2, "val b = 2\nb + missing")
	var rerr *cell.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
	if c, e := k.HistoryLengths(); c != 2 || e != 2 {
		t.Fatalf("lengths after runtime failure: %d/%d", c, e)
	}
	res := mustEval(t, k, 3, "a + b")
	if res.Value != float64(3) {
		t.Fatalf("a + b = %v", res.Value)
	}

	// Compile failure: neither side moves.
	if _, err := k.Eval(ctx, 4, "1 +* 2"); err == nil {
		t.Fatal("expected compile error")
	}
	if c, e := k.HistoryLengths(); c != 3 || e != 3 {
		t.Fatalf("lengths after compile failure: %d/%d", c, e)
	}
}

func TestCheck_NeverMutates(t *testing.T) {
	k := newKernel(t, Options{})
	ctx := context.Background()

	chk, err := k.Check(ctx, 1, "if (true) {")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if chk.Complete {
		t.Fatal("prefix reported complete")
	}
	chk, err = k.Check(ctx, 1, "val x = 1")
	if err != nil || !chk.Complete {
		t.Fatalf("Check complete: %v %v", chk, err)
	}
	if _, err := k.Check(ctx, 1, "1 +* 2"); err == nil {
		t.Fatal("expected compile error from Check")
	}
	if c, e := k.HistoryLengths(); c != 0 || e != 0 {
		t.Fatalf("Check mutated the ledger: %d/%d", c, e)
	}
}

func TestCheck_ThenEvalSameNumber(t *testing.T) {
	k := newKernel(t, Options{})
	ctx := context.Background()

	chk, err := k.Check(ctx, 1, "if (true) {")
	if err != nil || chk.Complete {
		t.Fatalf("expected incomplete, got %v %v", chk, err)
	}
	res := mustEval(t, k, 1, "if (true) { 1 }")
	if res.Value != float64(1) {
		t.Fatalf("value: %v", res.Value)
	}
}

func TestEval_OrderingStrictlyIncreasing(t *testing.T) {
	k := newKernel(t, Options{})
	ctx := context.Background()

	mustEval(t, k, 1, "1")
	mustEval(t, k, 2, "2")

	for _, n := range []int{2, 1, 0} {
		_, err := k.Eval(ctx, n, "3")
		var hm *cell.HistoryMismatch
		if !errors.As(err, &hm) {
			t.Fatalf("n=%d: expected HistoryMismatch, got %v", n, err)
		}
		if hm.Expected.ExecutionNumber != 3 {
			t.Fatalf("n=%d: expected next 3, got %v", n, hm.Expected)
		}
	}
	// The ordering failure is not corruption: the next number still works.
	mustEval(t, k, 3, "3")
}

// localRepo lays out a minimal Maven-style repository with one artifact and
// an optional sidecar kernel descriptor.
func localRepo(t *testing.T, group, artifact, version, descriptor string) string {
	t.Helper()
	repo := t.TempDir()
	dir := filepath.Join(repo, strings.ReplaceAll(group, ".", "/"), artifact, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	base := fmt.Sprintf("%s-%s", artifact, version)
	if err := os.WriteFile(filepath.Join(dir, base+".jar"), []byte("jar"), 0o644); err != nil {
		t.Fatal(err)
	}
	if descriptor != "" {
		if err := os.WriteFile(filepath.Join(dir, base+".kernel.yaml"), []byte(descriptor), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return repo
}

func TestEval_DependsOnExtendsClasspath(t *testing.T) {
	repo := localRepo(t, "com.example", "textlib", "1.0.0",
		"name: textlib\nimports: [\"strings.*\"]\n")
	k := newKernel(t, Options{Repositories: []string{repo}})

	// The resolved library's imports are visible within the same unit.
	res := mustEval(t, k, 1, "@file:DependsOn(\"com.example:textlib:1.0.0\")\nupper(\"abc\")")
	if res.Value != "ABC" {
		t.Fatalf("value: %v", res.Value)
	}
	found := false
	for _, p := range k.Classpath() {
		if strings.Contains(p, "textlib-1.0.0.jar") {
			found = true
		}
	}
	if !found {
		t.Fatalf("classpath missing artifact: %v", k.Classpath())
	}
}

func TestEval_ResolutionFailureLeavesLedgerUntouched(t *testing.T) {
	k := newKernel(t, Options{Repositories: []string{t.TempDir()}})
	ctx := context.Background()

	mustEval(t, k, 1, "val x = 1")
	before, _ := k.HistoryLengths()

	_, err := k.Eval(ctx, 2, "@file:DependsOn(\"com.example:ghost:9.9.9\")\nx")
	var ce *cell.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	var re *cell.ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("CompileError should wrap ResolutionError: %v", err)
	}
	after, evalLen := k.HistoryLengths()
	if after != before || evalLen != before {
		t.Fatalf("ledger moved on resolution failure: %d -> %d/%d", before, after, evalLen)
	}

	// Same execution number succeeds once the directive is fixed.
	res := mustEval(t, k, 2, "x + 1")
	if res.Value != float64(2) {
		t.Fatalf("value: %v", res.Value)
	}
}

func TestEval_UnknownAnnotation(t *testing.T) {
	k := newKernel(t, Options{})
	_, err := k.Eval(context.Background(), 1, "@file:Nonsense(\"x\")\n1")
	var ce *cell.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompileError, got %v", err)
	}
}

func TestLibraryLifecycle(t *testing.T) {
	def := library.Definition{
		Name:    "metrics",
		Imports: []string{"math.*"},
		Init: []string{
			"var __cells = 0",
			"var __down = 0",
		},
		InitCell:                 []string{"__cells = __cells + 1"},
		AfterCellExecution:       []string{"__cells = __cells + 10"},
		Shutdown:                 []string{"__down = 1"},
		InternalVariablesMarkers: []string{"__"},
	}
	k := newKernel(t, Options{Definitions: []library.Definition{def}})

	res := mustEval(t, k, 1, "sqrt(16)")
	if res.Value != float64(4) {
		t.Fatalf("import from definition: %v", res.Value)
	}
	mustEval(t, k, 2, "1")

	var cells interface{}
	for _, b := range k.Bindings() {
		if b.Name == "__cells" {
			cells = b.Value
		}
	}
	// Two initCell increments (+1 each) and two afterCellExecution bumps (+10 each).
	if cells != float64(22) {
		t.Fatalf("__cells = %v, want 22", cells)
	}

	// Internal markers hide library state from user-facing listings.
	for _, b := range k.UserBindings() {
		if strings.HasPrefix(b.Name, "__") {
			t.Fatalf("internal binding leaked: %s", b.Name)
		}
	}
	if !k.IsInternal(cell.Binding{Name: "__cells"}) {
		t.Fatal("__cells should be internal")
	}
	if k.IsInternal(cell.Binding{Name: "x"}) {
		t.Fatal("x should be user-facing")
	}

	if err := k.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, b := range k.Bindings() {
		if b.Name == "__down" && b.Value != float64(1) {
			t.Fatalf("shutdown snippet did not run: %v", b.Value)
		}
	}
	if _, err := k.Eval(context.Background(), 3, "1"); err == nil {
		t.Fatal("Eval after Close should fail")
	}
}

func TestNew_InitFailure(t *testing.T) {
	_, err := New(Options{
		CacheDir:    t.TempDir(),
		Definitions: []library.Definition{{Name: "broken", Init: []string{"1 +* 2"}}},
	})
	if err == nil {
		t.Fatal("expected construction failure")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error should name the library: %v", err)
	}
}

func TestFileAnnotationHandler(t *testing.T) {
	def := library.Definition{
		Name: "tracker",
		Init: []string{"var seen = false"},
		FileAnnotations: []library.AnnotationHandler{
			{Name: "Track", Snippet: "seen = true"},
		},
	}
	k := newKernel(t, Options{Definitions: []library.Definition{def}})
	mustEval(t, k, 1, "@file:Track(\"anything\")\n1")
	for _, b := range k.Bindings() {
		if b.Name == "seen" && b.Value != true {
			t.Fatalf("handler did not run: %v", b.Value)
		}
	}
}

func TestCodePreprocessor(t *testing.T) {
	def := library.Definition{
		Name: "magics",
		CodePreprocessors: []library.Preprocessor{
			{Pattern: `%answer`, Replace: "val answer = 42"},
		},
	}
	k := newKernel(t, Options{Definitions: []library.Definition{def}})
	mustEval(t, k, 1, "%answer")
	res := mustEval(t, k, 2, "answer")
	if res.Value != float64(42) {
		t.Fatalf("preprocessed value: %v", res.Value)
	}
}

func TestConvertersAndRenderers(t *testing.T) {
	def := library.Definition{
		Name: "display",
		Converters: []library.Converter{
			{NamePrefix: "pct_", Expr: "it * 100"},
		},
		Renderers: []library.Renderer{
			{TypeName: "Number", Expr: "it + 1"},
		},
		ThrowableRenderers: []library.ThrowableRenderer{
			{Match: "immutable", Expr: "\"cannot reassign: \" + it"},
		},
	}
	k := newKernel(t, Options{Definitions: []library.Definition{def}})

	mustEval(t, k, 1, "val pct_done = 0.5")
	for _, b := range k.Bindings() {
		if b.Name == "pct_done" && b.Value != float64(50) {
			t.Fatalf("converter: %v", b.Value)
		}
	}

	if got := k.Render(float64(1)); got != "2" {
		t.Fatalf("Render: %q", got)
	}
	if got := k.Render("plain"); got != "plain" {
		t.Fatalf("Render fallback: %q", got)
	}

	mustEval(t, k, 2, "val frozen = 1")
	_, err := k.Eval(context.Background(), 3, "frozen = 2")
	var rerr *cell.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
	if got := k.RenderThrowable(rerr); !strings.HasPrefix(got, "cannot reassign:") {
		t.Fatalf("RenderThrowable: %q", got)
	}
}

func TestLibraryDir_HotAdd(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "base.yaml"),
		[]byte("name: base\ninit: [\"fun tri(n) = n * (n + 1) / 2\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	k := newKernel(t, Options{LibraryDir: dir})

	res := mustEval(t, k, 1, "tri(4)")
	if res.Value != float64(10) {
		t.Fatalf("tri(4) = %v", res.Value)
	}

	if err := os.WriteFile(filepath.Join(dir, "extra.yaml"),
		[]byte("name: extra\ninit: [\"val extras = true\"]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// The watcher is asynchronous; poll until the new library is applied.
	deadline := time.Now().Add(3 * time.Second)
	n := 1
	for time.Now().Before(deadline) {
		n++
		if res, err := k.Eval(context.Background(), n, "extras"); err == nil && res.Value == true {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("hot-added library never became visible")
}

func TestCheck_ConcurrentWithEval(t *testing.T) {
	k := newKernel(t, Options{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_, _ = k.Check(context.Background(), 99, "val q = 1")
		}
	}()
	for n := 1; n <= 50; n++ {
		mustEval(t, k, n, fmt.Sprintf("val v%d = %d", n, n))
	}
	<-done
	if c, e := k.HistoryLengths(); c != 50 || e != 50 {
		t.Fatalf("lengths: %d/%d", c, e)
	}
}
