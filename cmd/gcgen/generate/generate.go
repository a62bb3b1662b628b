// Package generate writes Trace, Root and Unroot methods for structs that
// hold gc handles.
//
// A struct opts in with a //gc:trace directive in its doc comment:
//
//	//gc:trace
//	type Node struct {
//		Name     string
//		Next     *gc.Gc[Node]
//		Children []*gc.Gc[Node]
//		Cache    map[string]int `gc:"-"`
//	}
//
// Every field is visited in declaration order. Fields that cannot hold
// handles (basic types, gc.UnsafeNoTrace, gc.UnsafeEmptyTrace) are skipped,
// and the `gc:"-"` tag skips a field unconditionally. Slices and arrays are
// traced element by element, maps by value. Interface, func and channel
// fields are rejected with a positioned error.
package generate

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/tools/imports"
)

const (
	// DefaultGCImport is the import path of the gc package.
	DefaultGCImport = "github.com/kolkov/rcgc/gc"

	// DefaultOutput is the name of the generated file.
	DefaultOutput = "zz_gctrace.go"

	// Directive marks a struct for generation.
	Directive = "//gc:trace"
)

// ErrNoTypes is returned when no struct carries the directive.
var ErrNoTypes = errors.New("no //gc:trace types found")

// Options configures generation.
type Options struct {
	GCImport string // Import path of the gc package (default DefaultGCImport)
	Output   string // Generated file name (default DefaultOutput)
}

func (o Options) gcImport() string {
	if o.GCImport == "" {
		return DefaultGCImport
	}
	return o.GCImport
}

func (o Options) output() string {
	if o.Output == "" {
		return DefaultOutput
	}
	return o.Output
}

// Stats tracks what a generation run did with the fields it saw.
type Stats struct {
	Types   int // Structs generated
	Traced  int // Fields that get method calls
	Skipped int // Fields whose type holds no handles
	Ignored int // Fields tagged `gc:"-"`
}

// Result holds a generated file.
type Result struct {
	Package string   // Package name
	Types   []string // Generated types in source order
	Code    []byte   // Formatted source
	Stats   Stats
}

// Dir generates methods for the package in dir. Test files and the output
// file itself are not read.
func Dir(dir string, opts Options) (*Result, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.go"))
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}

	fset := token.NewFileSet()
	var files []*ast.File
	for _, name := range matches {
		base := filepath.Base(name)
		if strings.HasSuffix(base, "_test.go") || base == opts.output() {
			continue
		}
		f, err := parser.ParseFile(fset, name, nil, parser.ParseComments)
		if err != nil {
			return nil, errors.Wrapf(err, "parse %s", name)
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no Go files in %s", dir)
	}

	return Files(fset, files, opts)
}

// Source generates methods for a single file. src follows parser.ParseFile.
func Source(filename string, src any, opts Options) (*Result, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, parser.ParseComments)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", filename)
	}
	return Files(fset, []*ast.File{f}, opts)
}

// Files generates methods for the directive-marked structs of one package.
// Field errors are collected across all types and returned together.
func Files(fset *token.FileSet, files []*ast.File, opts Options) (*Result, error) {
	res := &Result{Package: files[0].Name.Name}

	var body bytes.Buffer
	var errs *multierror.Error
	for _, f := range files {
		if f.Name.Name != res.Package {
			return nil, errors.Errorf("%s: package %s, expected %s",
				fset.Position(f.Package).Filename, f.Name.Name, res.Package)
		}

		gcName := importName(f, opts.gcImport())
		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				st, ok := ts.Type.(*ast.StructType)
				if !ok || !marked(ts, gd) {
					continue
				}

				if err := generateType(&body, fset, gcName, ts, st, &res.Stats); err != nil {
					errs = multierror.Append(errs, err)
					continue
				}
				res.Types = append(res.Types, ts.Name.Name)
				res.Stats.Types++
			}
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	if len(res.Types) == 0 {
		return nil, ErrNoTypes
	}

	var src bytes.Buffer
	fmt.Fprintf(&src, "// Code generated by gcgen. DO NOT EDIT.\n\npackage %s\n\n", res.Package)
	if path.Base(opts.gcImport()) == "gc" {
		fmt.Fprintf(&src, "import %q\n", opts.gcImport())
	} else {
		fmt.Fprintf(&src, "import gc %q\n", opts.gcImport())
	}
	src.Write(body.Bytes())

	code, err := imports.Process(opts.output(), src.Bytes(), &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		return nil, errors.Wrap(err, "format generated code")
	}
	res.Code = code
	return res, nil
}

// generateType writes the three methods of one struct.
func generateType(w *bytes.Buffer, fset *token.FileSet, gcName string, ts *ast.TypeSpec, st *ast.StructType, stats *Stats) error {
	e := &fieldEmitter{fset: fset, gcName: gcName, tparams: make(map[string]ast.Expr)}

	var tparams []string
	if ts.TypeParams != nil {
		for _, field := range ts.TypeParams.List {
			for _, n := range field.Names {
				tparams = append(tparams, n.Name)
				e.tparams[n.Name] = field.Type
			}
		}
	}

	recvType := ts.Name.Name
	if len(tparams) > 0 {
		recvType += "[" + strings.Join(tparams, ", ") + "]"
	}
	recv := receiverName(ts.Name.Name)

	var plan []string
	var errs *multierror.Error
	for _, field := range st.Fields.List {
		names := fieldNames(field)
		if ignored(field.Tag) {
			stats.Ignored += len(names)
			continue
		}
		for _, name := range names {
			if name == "_" {
				continue
			}
			stmt, err := e.emit(recv+"."+name, field.Type, true, 0)
			if err != nil {
				if ge, ok := err.(*GenerateError); ok {
					ge.Message = fmt.Sprintf("%s.%s: %s", ts.Name.Name, name, ge.Message)
				}
				errs = multierror.Append(errs, err)
				continue
			}
			if stmt == "" {
				stats.Skipped++
				continue
			}
			stats.Traced++
			plan = append(plan, stmt)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}

	for _, m := range []struct{ name, params, call string }{
		{"Trace", "visit gc.Visitor", "Trace(visit)"},
		{"Root", "", "Root()"},
		{"Unroot", "", "Unroot()"},
	} {
		fmt.Fprintf(w, "\nfunc (%s *%s) %s(%s) {\n", recv, recvType, m.name, m.params)
		for _, stmt := range plan {
			w.WriteString(strings.ReplaceAll(stmt, callPlaceholder, m.call))
			w.WriteByte('\n')
		}
		w.WriteString("}\n")
	}
	return nil
}

// marked reports whether the type carries the directive. A lone spec in a
// declaration also inherits the declaration's doc comment.
func marked(ts *ast.TypeSpec, gd *ast.GenDecl) bool {
	docs := []*ast.CommentGroup{ts.Doc}
	if len(gd.Specs) == 1 {
		docs = append(docs, gd.Doc)
	}
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		for _, c := range doc.List {
			if strings.TrimSpace(c.Text) == Directive {
				return true
			}
		}
	}
	return false
}

// importName returns the local name of importPath in f, or "" when f does
// not import it.
func importName(f *ast.File, importPath string) string {
	for _, imp := range f.Imports {
		if strings.Trim(imp.Path.Value, `"`) != importPath {
			continue
		}
		if imp.Name != nil {
			return imp.Name.Name
		}
		return path.Base(importPath)
	}
	return ""
}

// receiverName picks a receiver that cannot collide with generated loop
// variables.
func receiverName(typeName string) string {
	r := unicode.ToLower([]rune(typeName)[0])
	if r == 'i' || r == 'v' || !unicode.IsLetter(r) {
		return "x"
	}
	return string(r)
}
