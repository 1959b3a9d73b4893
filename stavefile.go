//go:build stave

package main

import (
	"fmt"
	"os"

	"github.com/yaklabco/stave/pkg/sh"
	"github.com/yaklabco/stave/pkg/st"
	"github.com/yaklabco/stave/pkg/target"
)

// Default target when running `stave` with no arguments.
var Default = All

// Aliases for common targets.
var Aliases = map[string]interface{}{
	"b": Build,
	"t": Test,
	"c": Clean,
}

// binaries are the commands under ./cmd built into ./bin.
var binaries = []string{"fcn-evaluate", "fcn-checkpoint"}

// All vets, lints, tests and builds.
func All() error {
	st.SerialDeps(Vet, Lint, Test, Build)
	return nil
}

// Build compiles every binary into ./bin, skipping those already up to date.
func Build() error {
	for _, name := range binaries {
		out := "bin/" + name
		rebuild, err := target.Glob(out, "**/*.go", "go.mod", "go.sum")
		if err != nil {
			return fmt.Errorf("checking %s: %w", name, err)
		}
		if !rebuild {
			if st.Verbose() {
				fmt.Printf("%s is up to date\n", name)
			}
			continue
		}
		if err := sh.RunV("go", "build", "-o", out, "./cmd/"+name); err != nil {
			return err
		}
	}
	return nil
}

// Test runs all tests with race detection. Tests that need the ONNX graph or
// runtime skip when testdata does not provide them.
func Test() error {
	return sh.RunV("go", "test", "-race", "-cover", "./...")
}

// Lint runs golangci-lint on the codebase.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Vet runs go vet on all packages.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Clean removes binaries and evaluation output.
func Clean() error {
	for _, a := range []string{"bin/", "viz_evaluate.png", "coverage.out"} {
		if err := sh.Rm(a); err != nil {
			return fmt.Errorf("removing %s: %w", a, err)
		}
	}
	return nil
}

// Install installs the binaries to GOBIN.
func Install() error {
	return sh.RunV(st.GoCmd(), "install", "./cmd/...")
}

// Eval namespace for evaluation targets.
type Eval st.Namespace

// checkpointFile returns the checkpoint to evaluate, FCN_MODEL if set.
func checkpointFile() string {
	if path := os.Getenv("FCN_MODEL"); path != "" {
		return path
	}
	return "testdata/fcn32s_from_caffe.pb"
}

// Run evaluates the checkpoint on VOC2011 seg11valid.
// Requires ~/data/datasets/VOC and ~/data/models/fcn32s.onnx to exist.
func (Eval) Run() error {
	st.Deps(Build)
	return sh.RunV("./bin/fcn-evaluate", checkpointFile(), "--nodeconv")
}

// Deconv evaluates the checkpoint with the learned upsampling graph.
func (Eval) Deconv() error {
	st.Deps(Build)
	return sh.RunV("./bin/fcn-evaluate", checkpointFile(), "--deconv")
}

// Inspect prints the layout and tensor shapes of the checkpoint.
func (Eval) Inspect() error {
	st.Deps(Build)
	return sh.RunV("./bin/fcn-checkpoint", "inspect", checkpointFile())
}
