package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
)

const sampleSrc = `package sample

import "github.com/kolkov/rcgc/gc"

//gc:trace
type Node struct {
	Next *gc.Gc[Node]
}
`

func setup(t *testing.T, goMod string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(goMod), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "node.go"), []byte(sampleSrc), 0o644); err != nil {
		t.Fatal(err)
	}

	saved := cfg
	savedLogger := logger
	t.Cleanup(func() {
		cfg = saved
		logger = savedLogger
	})
	logger = log.NewNopLogger()

	cfg.dir = dir
	cfg.output = "zz_gctrace.go"
	cfg.gcImport = "github.com/kolkov/rcgc/gc"
	cfg.checkMod = true
	cfg.dryRun = false
	return dir
}

func TestRunWritesFile(t *testing.T) {
	dir := setup(t, "module example.com/sample\n\ngo 1.24\n\nrequire github.com/kolkov/rcgc v0.1.0\n")

	if err := run(&bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	code, err := os.ReadFile(filepath.Join(dir, "zz_gctrace.go"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(code), "func (n *Node) Trace(visit gc.Visitor) {") {
		t.Errorf("unexpected output:\n%s", code)
	}
}

func TestRunDryRun(t *testing.T) {
	dir := setup(t, "module example.com/sample\n\ngo 1.24\n\nrequire github.com/kolkov/rcgc v0.1.0\n")
	cfg.dryRun = true

	var stdout bytes.Buffer
	if err := run(&stdout); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stdout.String(), "func (n *Node) Unroot() {") {
		t.Errorf("unexpected output:\n%s", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "zz_gctrace.go")); !os.IsNotExist(err) {
		t.Errorf("dry run wrote a file: %v", err)
	}
}

func TestRunMissingRequire(t *testing.T) {
	setup(t, "module example.com/sample\n\ngo 1.24\n")

	err := run(&bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "go get github.com/kolkov/rcgc/gc") {
		t.Errorf("err = %v", err)
	}

	cfg.checkMod = false
	if err := run(&bytes.Buffer{}); err != nil {
		t.Errorf("run without module check: %v", err)
	}
}

func TestCheckError(t *testing.T) {
	if checkError(nil) != 0 {
		t.Error("checkError(nil) != 0")
	}
}
