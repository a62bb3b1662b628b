// Command gcgen writes Trace, Root and Unroot methods for structs that hold
// gc handles.
//
// Mark a struct with a //gc:trace directive and run gcgen on its package
// directory, usually from a go:generate line:
//
//	//go:generate go run github.com/kolkov/rcgc/cmd/gcgen .
//
// The methods are written to zz_gctrace.go next to the sources.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/kolkov/rcgc/cmd/gcgen/generate"
	"github.com/kolkov/rcgc/cmd/gcgen/modcheck"
	"github.com/kolkov/rcgc/gc"
)

var cfg struct {
	dir      string
	output   string
	gcImport string
	checkMod bool
	dryRun   bool
	verbose  bool
}

var logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

func main() {
	app := kingpin.New(filepath.Base(os.Args[0]), "Generate gc tracing methods for //gc:trace structs.").UsageWriter(os.Stdout)
	app.Version(fmt.Sprintf("gcgen %s", gc.Version))
	app.HelpFlag.Short('h')
	app.Flag("output", "Name of the generated file.").Short('o').Default(generate.DefaultOutput).StringVar(&cfg.output)
	app.Flag("gc-import", "Import path of the gc package.").Default(generate.DefaultGCImport).StringVar(&cfg.gcImport)
	app.Flag("check-mod", "Verify that the package's module requires the gc package.").Default("true").BoolVar(&cfg.checkMod)
	app.Flag("dry-run", "Print the generated file instead of writing it.").Short('n').BoolVar(&cfg.dryRun)
	app.Flag("verbose", "Enable verbose logging.").Short('v').Default("false").BoolVar(&cfg.verbose)
	app.Arg("dir", "Package directory.").Default(".").ExistingDirVar(&cfg.dir)

	kingpin.MustParse(app.Parse(os.Args[1:]))

	if cfg.verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	os.Exit(checkError(run(os.Stdout)))
}

func run(stdout io.Writer) error {
	if cfg.checkMod {
		m, err := modcheck.Check(cfg.dir, cfg.gcImport)
		if errors.Is(err, modcheck.ErrNotRequired) {
			return errors.Wrapf(err, "add it with: go get %s", cfg.gcImport)
		}
		if err != nil {
			return errors.Wrap(err, "check module")
		}
		level.Debug(logger).Log("msg", "module checked", "module", m.Path, "package", m.ImportPath,
			"gc_module", m.GCModule, "gc_version", m.GCVersion, "replace", m.Replace)
	}

	res, err := generate.Dir(cfg.dir, generate.Options{GCImport: cfg.gcImport, Output: cfg.output})
	if err != nil {
		return err
	}

	for _, name := range res.Types {
		level.Debug(logger).Log("msg", "generated methods", "type", name)
	}
	level.Debug(logger).Log("msg", "fields", "traced", res.Stats.Traced, "skipped", res.Stats.Skipped, "ignored", res.Stats.Ignored)

	if cfg.dryRun {
		_, err := stdout.Write(res.Code)
		return err
	}

	out := filepath.Join(cfg.dir, cfg.output)
	if err := os.WriteFile(out, res.Code, 0o644); err != nil {
		return errors.Wrap(err, "write generated file")
	}
	level.Info(logger).Log("msg", "wrote tracing methods", "file", out, "package", res.Package, "types", len(res.Types))
	return nil
}

func checkError(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
