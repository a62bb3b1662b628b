package generate

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"reflect"
	"strconv"
)

// callPlaceholder stands for the method call in a field plan. The same plan
// serves Trace, Root and Unroot.
const callPlaceholder = "$CALL"

const (
	suggestIgnore  = "Tag the field with `gc:\"-\"` if it never holds a handle, or wrap it in gc.UnsafeNoTrace"
	suggestPointer = "Store pointers or handles in the map, or use gc.Map"
)

// basicTypes never hold handles.
var basicTypes = map[string]bool{
	"bool": true, "string": true, "byte": true, "rune": true, "uintptr": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
}

// fieldEmitter turns struct field types into tracing statements.
type fieldEmitter struct {
	fset *token.FileSet

	// gcName is the local name of the gc package in the file declaring the
	// struct, empty when the file does not import it.
	gcName string

	// tparams maps the struct's type parameters to their constraints.
	tparams map[string]ast.Expr
}

// emit returns the statements applying the placeholder call to expr, or ""
// when a value of typ holds no handles. addressable reports whether
// pointer-receiver methods may be called on expr.
func (e *fieldEmitter) emit(expr string, typ ast.Expr, addressable bool, depth int) (string, error) {
	switch t := typ.(type) {
	case *ast.ParenExpr:
		return e.emit(expr, t.X, addressable, depth)

	case *ast.Ident:
		if basicTypes[t.Name] {
			return "", nil
		}
		if t.Name == "any" || t.Name == "error" {
			return "", newError(e.fset, t.Pos(), suggestIgnore, "cannot trace interface type %s", t.Name)
		}
		if c, ok := e.tparams[t.Name]; ok {
			if !e.isGC(c, "Traceable") {
				return "", newError(e.fset, t.Pos(), "Constrain the type parameter with gc.Traceable",
					"type parameter %s is not constrained to gc.Traceable", t.Name)
			}
			return e.call(expr), nil
		}
		return e.value(expr, t, addressable)

	case *ast.SelectorExpr:
		switch {
		case e.isGC(t, "UnsafeEmptyTrace"):
			return "", nil
		case e.isGC(t, "Traceable"):
			return fmt.Sprintf("if %s != nil {\n%s\n}", expr, e.call(expr)), nil
		}
		return e.value(expr, t, addressable)

	case *ast.IndexExpr, *ast.IndexListExpr:
		base := genericBase(t)
		switch {
		case e.isGC(base, "UnsafeNoTrace"):
			return "", nil
		case e.isGC(base, "List"), e.isGC(base, "Map"):
			// Value receivers.
			return e.call(expr), nil
		}
		return e.value(expr, t, addressable)

	case *ast.StarExpr:
		if id, ok := t.X.(*ast.Ident); ok && basicTypes[id.Name] {
			return "", nil
		}
		if base := genericBase(t.X); e.isGC(base, "Gc") || e.isGC(base, "Weak") {
			// Handle methods accept nil receivers.
			return e.call(expr), nil
		}
		return fmt.Sprintf("if %s != nil {\n%s\n}", expr, e.call(expr)), nil

	case *ast.ArrayType:
		idx := loopVar("i", depth)
		body, err := e.emit(fmt.Sprintf("%s[%s]", expr, idx), t.Elt, t.Len == nil || addressable, depth+1)
		if err != nil || body == "" {
			return "", err
		}
		return fmt.Sprintf("for %s := range %s {\n%s\n}", idx, expr, body), nil

	case *ast.MapType:
		v := loopVar("v", depth)
		body, err := e.emit(v, t.Value, false, depth+1)
		if err != nil || body == "" {
			return "", err
		}
		return fmt.Sprintf("for _, %s := range %s {\n%s\n}", v, expr, body), nil

	case *ast.InterfaceType:
		return "", newError(e.fset, t.Pos(), suggestIgnore, "cannot trace interface values")
	case *ast.FuncType:
		return "", newError(e.fset, t.Pos(), suggestIgnore, "cannot trace func values")
	case *ast.ChanType:
		return "", newError(e.fset, t.Pos(), suggestIgnore, "cannot trace channels")
	case *ast.StructType:
		return "", newError(e.fset, t.Pos(), "Declare the struct as a named type with its own //gc:trace directive",
			"cannot trace anonymous struct fields")
	}

	return "", newError(e.fset, typ.Pos(), suggestIgnore, "unsupported field type %s", types.ExprString(typ))
}

// value calls the method on a named non-pointer value.
func (e *fieldEmitter) value(expr string, typ ast.Expr, addressable bool) (string, error) {
	if !addressable {
		return "", newError(e.fset, typ.Pos(), suggestPointer,
			"map values of type %s are not addressable", types.ExprString(typ))
	}
	return e.call(expr), nil
}

func (e *fieldEmitter) call(expr string) string {
	return expr + "." + callPlaceholder
}

// isGC reports whether expr is the selector gc.<name>.
func (e *fieldEmitter) isGC(expr ast.Expr, name string) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok || e.gcName == "" {
		return false
	}
	x, ok := sel.X.(*ast.Ident)
	return ok && x.Name == e.gcName && sel.Sel.Name == name
}

func genericBase(expr ast.Expr) ast.Expr {
	switch t := expr.(type) {
	case *ast.IndexExpr:
		return t.X
	case *ast.IndexListExpr:
		return t.X
	}
	return expr
}

func loopVar(prefix string, depth int) string {
	if depth == 0 {
		return prefix
	}
	return prefix + strconv.Itoa(depth)
}

// ignored reports whether the field carries the `gc:"-"` tag.
func ignored(tag *ast.BasicLit) bool {
	if tag == nil {
		return false
	}
	s, err := strconv.Unquote(tag.Value)
	if err != nil {
		return false
	}
	return reflect.StructTag(s).Get("gc") == "-"
}

// fieldNames returns the names a field declares, or the type name for an
// embedded field.
func fieldNames(f *ast.Field) []string {
	if len(f.Names) > 0 {
		names := make([]string, 0, len(f.Names))
		for _, n := range f.Names {
			names = append(names, n.Name)
		}
		return names
	}

	typ := f.Type
	if star, ok := typ.(*ast.StarExpr); ok {
		typ = star.X
	}
	switch t := genericBase(typ).(type) {
	case *ast.Ident:
		return []string{t.Name}
	case *ast.SelectorExpr:
		return []string{t.Sel.Name}
	}
	return nil
}
