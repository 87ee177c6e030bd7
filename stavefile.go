//go:build stave

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/yaklabco/stave/pkg/sh"
	"github.com/yaklabco/stave/pkg/st"
)

// Default target when running `stave` with no arguments.
var Default = Build

// Aliases for common targets.
var Aliases = map[string]interface{}{
	"b": Build,
	"t": Test,
	"s": TestShort,
	"l": Lint,
	"p": Plan,
	"c": Clean,
}

const (
	binaryName = "docsweep"
	mainPkg    = "./cmd/docsweep"
	binDir     = "bin"
	coverFile  = "coverage.out"
)

// All lints, runs the fast tests and builds.
func All() error {
	st.Deps(Lint, TestShort)
	st.Deps(Build)
	return nil
}

// Build compiles bin/docsweep with version information.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating bin directory: %w", err)
	}
	return sh.RunV("go", "build", "-ldflags", buildLdflags(), "-o", binaryPath(), mainPkg)
}

// Install runs go install with version information.
func Install() error {
	return sh.RunV("go", "install", "-ldflags", buildLdflags(), mainPkg)
}

// Test runs every test with the race detector. The watcher and engine
// process tests wait on real events and take several seconds.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// TestShort skips the slow watcher and engine process tests.
func TestShort() error {
	return sh.RunV("go", "test", "-short", "./pkg/...", "./cmd/...")
}

// Cover writes a coverage profile for the scheduling packages and prints
// per-function totals.
func Cover() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating bin directory: %w", err)
	}
	profile := filepath.Join(binDir, coverFile)
	if err := sh.RunV("go", "test", "-short", "-coverprofile", profile, "./pkg/docsweep/..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func", profile)
}

// Plan builds docsweep and prints the detected hardware and the resource
// plan derived from it, as JSON.
func Plan() error {
	st.Deps(Build)
	return sh.RunV(binaryPath(), "info", "--no-interactive", "-o", "json")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV("golangci-lint", "run", "./...")
}

// Fmt formats all Go code.
func Fmt() error {
	if err := sh.Run("gofmt", "-w", "."); err != nil {
		return fmt.Errorf("running gofmt: %w", err)
	}
	return sh.Run("goimports", "-w", ".")
}

// Tidy runs go mod tidy.
func Tidy() error {
	return sh.RunV("go", "mod", "tidy")
}

// Clean removes build artifacts and the coverage profile.
func Clean() error {
	if st.Verbose() {
		fmt.Printf("Removing %s/\n", binDir)
	}
	return sh.Rm(binDir + "/")
}

func binaryPath() string {
	name := filepath.Join(binDir, binaryName)
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}

// buildLdflags sets main.version, main.commit and main.date.
func buildLdflags() string {
	version := "dev"
	commit := "unknown"
	date := time.Now().UTC().Format(time.RFC3339)

	if v, err := sh.Output("git", "describe", "--tags", "--always", "--dirty"); err == nil && v != "" {
		version = strings.TrimSpace(v)
	}
	if c, err := sh.Output("git", "rev-parse", "--short", "HEAD"); err == nil && c != "" {
		commit = strings.TrimSpace(c)
	}

	return fmt.Sprintf("-X main.version=%s -X main.commit=%s -X main.date=%s", version, commit, date)
}
