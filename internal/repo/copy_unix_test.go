//go:build linux || darwin

package repo

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"nativeforge/internal/errs"
	"nativeforge/internal/runner"
)

func TestCopyToArch(t *testing.T) {
	e := runner.NewExecutor(context.Background(), zerolog.Nop())
	e.Sink = io.Discard

	vcs := &fakeVCS{}
	r, err := New(Options{
		URL:    "https://example.com/lib.git",
		Path:   filepath.Join(t.TempDir(), "sample"),
		VCS:    vcs,
		Exec:   e,
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Init(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(r.Path(), "configure"), []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	parent := filepath.Join(t.TempDir(), "ws")
	cp, err := r.CopyToArch(parent, "arm64")
	if err != nil {
		t.Fatalf("CopyToArch: %v", err)
	}
	if cp.Path() != filepath.Join(parent, "arm64") {
		t.Errorf("Expected copy at %s, got %s", filepath.Join(parent, "arm64"), cp.Path())
	}
	if !cp.Initialized() {
		t.Error("Expected the copy to be a live checkout")
	}
	for _, name := range []string{"configure", ".git"} {
		if _, err := os.Stat(filepath.Join(cp.Path(), name)); err != nil {
			t.Errorf("Expected %s in copy: %v", name, err)
		}
	}

	// Copying again over an existing tree refreshes it in place.
	if _, err := r.CopyToArch(parent, "arm64"); err != nil {
		t.Errorf("Expected repeat copy to succeed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "arm64", "sample")); err == nil {
		t.Error("Expected contents copied, not a nested directory")
	}
}

func TestCopyFailureIsBuildError(t *testing.T) {
	e := runner.NewExecutor(context.Background(), zerolog.Nop())
	e.Sink = io.Discard

	r, err := New(Options{Path: filepath.Join(t.TempDir(), "sample"), VCS: &fakeVCS{}, Exec: e, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	r.live = true
	if err := os.RemoveAll(r.Path()); err != nil {
		t.Fatal(err)
	}

	_, err = r.CopyTo(filepath.Join(t.TempDir(), "dst"))
	var be *errs.BuildError
	if !errors.As(err, &be) {
		t.Fatalf("Expected BuildError, got %v", err)
	}
}
