//go:build mage

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const binary = "nativeforge"

var Default = Build

func ldflags() string {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("-s -w -X nativeforge/internal/forge.version=%s -X nativeforge/internal/forge.buildDate=%s",
		version, time.Now().UTC().Format("2006-01-02"))
}

// Build compiles the nativeforge binary.
func Build() error {
	mg.Deps(Vet)
	return sh.RunV("go", "build", "-trimpath", "-ldflags", ldflags(), "-o", binary, ".")
}

// Vet runs go vet over every package.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "-count=1", "./...")
}

// Install copies the binary into $PREFIX/bin, /usr/local/bin by default.
func Install() error {
	mg.Deps(Build)
	prefix := os.Getenv("PREFIX")
	if prefix == "" {
		prefix = "/usr/local"
	}
	return sh.RunV("install", "-Dm755", binary, prefix+"/bin/"+binary)
}

// Clean removes build outputs.
func Clean() error {
	return sh.Rm(binary)
}
