// Package modcheck locates the module of a package directory and verifies
// that it can import the gc package generated code depends on.
package modcheck

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/mod/modfile"
)

// ErrNotRequired is returned when the module does not require a module
// providing the gc package.
var ErrNotRequired = errors.New("gc module not required")

// Module describes the module containing a package directory.
type Module struct {
	Path       string // Module path
	GoMod      string // Path of the go.mod file
	ImportPath string // Import path of the package directory

	// GCModule is the module providing the gc package and GCVersion the
	// version required. Both are empty when the gc package lives in the
	// main module.
	GCModule  string
	GCVersion string

	// Replace is the replacement of GCModule, if any. Local paths are made
	// absolute.
	Replace string
}

// Check finds the go.mod governing dir and verifies that gcImport is
// importable from it.
func Check(dir, gcImport string) (*Module, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", dir)
	}

	goMod := FindGoMod(abs)
	if goMod == "" {
		return nil, errors.Errorf("no go.mod found in %s or any parent directory", abs)
	}

	data, err := os.ReadFile(goMod)
	if err != nil {
		return nil, errors.Wrap(err, "read go.mod")
	}
	f, err := modfile.Parse(goMod, data, nil)
	if err != nil {
		return nil, errors.Wrap(err, "parse go.mod")
	}
	if f.Module == nil {
		return nil, errors.Errorf("%s has no module directive", goMod)
	}

	rel, err := filepath.Rel(filepath.Dir(goMod), abs)
	if err != nil {
		return nil, errors.Wrapf(err, "relate %s to its module", abs)
	}

	m := &Module{
		Path:       f.Module.Mod.Path,
		GoMod:      goMod,
		ImportPath: path.Join(f.Module.Mod.Path, filepath.ToSlash(rel)),
	}
	if provides(m.Path, gcImport) {
		return m, nil
	}

	for _, req := range f.Require {
		if provides(req.Mod.Path, gcImport) && len(req.Mod.Path) > len(m.GCModule) {
			m.GCModule = req.Mod.Path
			m.GCVersion = req.Mod.Version
		}
	}
	if m.GCModule == "" {
		return nil, errors.Wrapf(ErrNotRequired, "%s does not require a module providing %s", goMod, gcImport)
	}

	for _, rep := range f.Replace {
		if rep.Old.Path != m.GCModule {
			continue
		}
		if rep.Old.Version != "" && rep.Old.Version != m.GCVersion {
			continue
		}
		m.Replace = replacement(filepath.Dir(goMod), rep)
	}
	return m, nil
}

// FindGoMod walks up from startDir looking for a go.mod file. It returns ""
// when none is found.
func FindGoMod(startDir string) string {
	dir := startDir
	for {
		modPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(modPath); err == nil {
			return modPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// provides reports whether the module at modPath contains importPath.
func provides(modPath, importPath string) bool {
	return importPath == modPath || strings.HasPrefix(importPath, modPath+"/")
}

func replacement(modDir string, rep *modfile.Replace) string {
	newPath := rep.New.Path
	if rep.New.Version != "" {
		return newPath + " " + rep.New.Version
	}
	if isLocalPath(newPath) && !filepath.IsAbs(newPath) {
		if abs, err := filepath.Abs(filepath.Join(modDir, newPath)); err == nil {
			newPath = abs
		}
	}
	return newPath
}

// isLocalPath checks if a path is a local filesystem path (not a module path).
//
// Local paths start with ./, ../, /, or a drive letter on Windows.
func isLocalPath(p string) bool {
	if strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../") {
		return true
	}
	if filepath.IsAbs(p) {
		return true
	}
	// Windows drive letter (e.g., C:\)
	return len(p) >= 2 && p[1] == ':'
}
