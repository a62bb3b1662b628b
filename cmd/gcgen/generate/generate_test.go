package generate

import (
	"errors"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"
)

const nodeSrc = `package sample

import "github.com/kolkov/rcgc/gc"

//gc:trace
type Node struct {
	Name  string
	Next  *gc.Gc[Node]
	Kids  []*gc.Gc[Node]
	Pair  [2]*gc.Gc[Node]
	Index map[string]*gc.Gc[Node]
	Link  gc.Cell[*gc.Gc[Node]]
	Back  *gc.Weak[Node]
	Meta  *Meta
	Cache map[string]int ` + "`gc:\"-\"`" + `
	Raw   gc.UnsafeNoTrace[[]byte]
	Count *int
}

type Meta struct{}
`

func generateString(t *testing.T, src string, opts Options) *Result {
	t.Helper()
	res, err := Source("sample.go", src, opts)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if _, err := parser.ParseFile(token.NewFileSet(), "zz_gctrace.go", res.Code, 0); err != nil {
		t.Fatalf("generated code does not parse: %v\n%s", err, res.Code)
	}
	return res
}

func TestSource(t *testing.T) {
	res := generateString(t, nodeSrc, Options{})
	code := string(res.Code)

	if diff := cmp.Diff([]string{"Node"}, res.Types); diff != "" {
		t.Errorf("Types mismatch (-want +got):\n%s", diff)
	}
	wantStats := Stats{Types: 1, Traced: 7, Skipped: 3, Ignored: 1}
	if diff := cmp.Diff(wantStats, res.Stats); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}

	for _, want := range []string{
		"// Code generated by gcgen. DO NOT EDIT.",
		"package sample",
		`import "github.com/kolkov/rcgc/gc"`,
		"func (n *Node) Trace(visit gc.Visitor) {",
		"func (n *Node) Root() {",
		"func (n *Node) Unroot() {",
		"\tn.Next.Trace(visit)\n",
		"\tfor i := range n.Kids {\n\t\tn.Kids[i].Trace(visit)\n\t}\n",
		"\tfor i := range n.Pair {\n\t\tn.Pair[i].Root()\n\t}\n",
		"\tfor _, v := range n.Index {\n\t\tv.Unroot()\n\t}\n",
		"\tn.Link.Trace(visit)\n",
		"\tn.Back.Root()\n",
		"\tif n.Meta != nil {\n\t\tn.Meta.Unroot()\n\t}\n",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("generated code missing %q:\n%s", want, code)
		}
	}
	for _, field := range []string{"Name", "Cache", "Raw", "Count"} {
		if strings.Contains(code, "n."+field) {
			t.Errorf("generated code touches skipped field %s:\n%s", field, code)
		}
	}
}

func TestSourceGeneric(t *testing.T) {
	src := `package sample

import "github.com/kolkov/rcgc/gc"

//gc:trace
type Pair[K comparable, V gc.Traceable] struct {
	Key   K ` + "`gc:\"-\"`" + `
	Value V
	Items [][]V
}
`
	code := string(generateString(t, src, Options{}).Code)
	for _, want := range []string{
		"func (p *Pair[K, V]) Trace(visit gc.Visitor) {",
		"\tp.Value.Trace(visit)\n",
		"\tfor i := range p.Items {\n\t\tfor i1 := range p.Items[i] {\n\t\t\tp.Items[i][i1].Root()\n\t\t}\n\t}\n",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("generated code missing %q:\n%s", want, code)
		}
	}
}

func TestSourceImportAlias(t *testing.T) {
	src := `package sample

import rc "github.com/kolkov/rcgc/gc"

//gc:trace
type Item struct {
	Raw  rc.UnsafeNoTrace[chan int]
	Next *rc.Gc[Item]
	Skip rc.UnsafeEmptyTrace
}
`
	res := generateString(t, src, Options{})
	code := string(res.Code)
	if !strings.Contains(code, "func (x *Item) Trace(visit gc.Visitor) {\n\tx.Next.Trace(visit)\n}") {
		t.Errorf("unexpected code:\n%s", code)
	}
	if res.Stats.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", res.Stats.Skipped)
	}
}

func TestSourceCustomImport(t *testing.T) {
	src := `package sample

import heap "example.com/mygc/heap"

//gc:trace
type Item struct {
	Next *heap.Gc[Item]
}
`
	code := string(generateString(t, src, Options{GCImport: "example.com/mygc/heap"}).Code)
	if !strings.Contains(code, `import gc "example.com/mygc/heap"`) {
		t.Errorf("missing aliased import:\n%s", code)
	}
}

func TestSourceGroupedDecl(t *testing.T) {
	src := `package sample

import "github.com/kolkov/rcgc/gc"

type (
	//gc:trace
	A struct{ Next *gc.Gc[A] }

	B struct{ Next *gc.Gc[B] }
)
`
	res := generateString(t, src, Options{})
	if diff := cmp.Diff([]string{"A"}, res.Types); diff != "" {
		t.Errorf("Types mismatch (-want +got):\n%s", diff)
	}
}

func TestSourceErrors(t *testing.T) {
	src := `package sample

import "github.com/kolkov/rcgc/gc"

//gc:trace
type Bad[T any] struct {
	Any      any
	Callback func()
	Events   chan int
	Values   map[string]gc.Cell[int]
	Inline   struct{ X int }
	Generic  T
	Fine     *gc.Gc[int]
}
`
	_, err := Source("bad.go", src, Options{})
	if err == nil {
		t.Fatal("expected errors")
	}

	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("error %T is not a multierror", err)
	}

	type pos struct {
		Line    int
		Message string
	}
	var got []pos
	for _, e := range merr.Errors {
		var ge *GenerateError
		if !errors.As(e, &ge) {
			t.Fatalf("error %T is not a GenerateError", e)
		}
		if ge.File != "bad.go" || ge.Suggestion == "" {
			t.Errorf("error %q lacks file or suggestion", ge.Error())
		}
		got = append(got, pos{ge.Line, ge.Message})
	}

	want := []pos{
		{7, "Bad.Any: cannot trace interface type any"},
		{8, "Bad.Callback: cannot trace func values"},
		{9, "Bad.Events: cannot trace channels"},
		{10, "Bad.Values: map values of type gc.Cell[int] are not addressable"},
		{11, "Bad.Inline: cannot trace anonymous struct fields"},
		{12, "Bad.Generic: type parameter T is not constrained to gc.Traceable"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateErrorFormat(t *testing.T) {
	err := &GenerateError{File: "a.go", Line: 3, Column: 2, Message: "boom"}
	if got := err.Error(); got != "a.go:3:2: boom" {
		t.Errorf("Error() = %q", got)
	}
	err.Suggestion = "fix it"
	if got := err.Error(); got != "a.go:3:2: boom\n\nSuggestion: fix it" {
		t.Errorf("Error() = %q", got)
	}
}

func TestSourceNoTypes(t *testing.T) {
	_, err := Source("plain.go", "package sample\n\ntype T struct{ X int }\n", Options{})
	if !errors.Is(err, ErrNoTypes) {
		t.Errorf("err = %v, want ErrNoTypes", err)
	}
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("node.go", nodeSrc)
	write("other.go", "package sample\n\nfunc helper() {}\n")
	write("node_test.go", "package sample_test\n")
	write(DefaultOutput, "this is not Go\n")

	res, err := Dir(dir, Options{})
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if res.Package != "sample" || len(res.Types) != 1 {
		t.Errorf("Dir() = package %q types %v", res.Package, res.Types)
	}

	write("mixed.go", "package other\n")
	if _, err := Dir(dir, Options{}); err == nil || !strings.Contains(err.Error(), "expected") {
		t.Errorf("mixed packages: err = %v", err)
	}
}

func TestDirEmpty(t *testing.T) {
	if _, err := Dir(t.TempDir(), Options{}); err == nil {
		t.Error("expected error for empty directory")
	}
}
