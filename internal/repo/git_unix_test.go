//go:build linux || darwin

package repo

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"nativeforge/internal/errs"
	"nativeforge/internal/runner"
)

// gitCmd runs git in dir with a fixed author and returns trimmed stdout.
func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Dev", "GIT_AUTHOR_EMAIL=dev@example.com",
		"GIT_COMMITTER_NAME=Dev", "GIT_COMMITTER_EMAIL=dev@example.com",
	)
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("git %s: %v", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out))
}

// upstreamWithPatch creates a one-commit repository and a mailbox patch
// that appends a line to a.txt on top of it.
func upstreamWithPatch(t *testing.T) (upstream, base, patchDir string) {
	t.Helper()
	upstream = filepath.Join(t.TempDir(), "upstream")
	patchDir = filepath.Join(t.TempDir(), "patches")
	if err := os.MkdirAll(upstream, 0o755); err != nil {
		t.Fatal(err)
	}
	a := filepath.Join(upstream, "a.txt")

	gitCmd(t, upstream, "init", "-q")
	if err := os.WriteFile(a, []byte("one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, upstream, "add", "a.txt")
	gitCmd(t, upstream, "commit", "-q", "-m", "first")
	base = gitCmd(t, upstream, "rev-parse", "HEAD")

	if err := os.WriteFile(a, []byte("one\ntwo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, upstream, "commit", "-q", "-a", "-m", "add two")
	gitCmd(t, upstream, "format-patch", "-q", "-1", "-o", patchDir)
	gitCmd(t, upstream, "reset", "-q", "--hard", base)
	return upstream, base, patchDir
}

func TestGitCheckoutLifecycle(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	for _, k := range []string{"GIT_COMMITTER_NAME", "GIT_COMMITTER_EMAIL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	upstream, base, patchDir := upstreamWithPatch(t)

	e := runner.NewExecutor(context.Background(), zerolog.Nop())
	e.Sink = io.Discard
	vcs := NewGit(e)
	ws := t.TempDir()
	opts := Options{URL: upstream, Path: filepath.Join(ws, "sample"), VCS: vcs, Exec: e, Logger: zerolog.Nop()}

	sample, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := sample.Init(); err != nil {
		t.Fatalf("Expected clone to succeed, got %v", err)
	}
	reopened, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := reopened.Init(); err != nil {
		t.Fatalf("Expected existing checkout to reopen, got %v", err)
	}

	arch, err := sample.CopyToArch(ws, "arm64")
	if err != nil {
		t.Fatalf("CopyToArch: %v", err)
	}
	if err := arch.CreateLocalBranchOnCommit("nativeforge-arm64", base); err != nil {
		t.Fatalf("Expected branch on %s, got %v", base, err)
	}
	if got := gitCmd(t, arch.Path(), "rev-parse", "--abbrev-ref", "HEAD"); got != "nativeforge-arm64" {
		t.Errorf("Expected branch nativeforge-arm64 checked out, got %s", got)
	}
	var ie *errs.InitError
	if err := arch.CreateLocalBranchOnCommit("broken", "0000000000000000000000000000000000000bad"); !errors.As(err, &ie) {
		t.Errorf("Expected InitError for unknown commit, got %v", err)
	}

	if err := arch.ApplyPatches(patchDir); err != nil {
		t.Fatalf("Expected patch to apply, got %v", err)
	}
	data, err := os.ReadFile(filepath.Join(arch.Path(), "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "one\ntwo\n" {
		t.Errorf("Expected patched a.txt, got %q", data)
	}
	if got := gitCmd(t, arch.Path(), "log", "-1", "--format=%cn"); got != "nativeforge" {
		t.Errorf("Expected default committer nativeforge, got %s", got)
	}

	cwd, _ := os.Getwd()
	if err := arch.ApplyPatches(patchDir); !errors.As(err, &ie) {
		t.Errorf("Expected InitError re-applying the patch, got %v", err)
	}
	if now, _ := os.Getwd(); now != cwd {
		t.Errorf("Expected working directory %s restored, got %s", cwd, now)
	}
	marker := filepath.Join(arch.Path(), ".git", applyMarker)
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("Expected stopped apply to leave %s: %v", marker, err)
	}

	if err := arch.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Errorf("Expected Reset to clear %s, got %v", marker, err)
	}
}
