package repo

import (
	"fmt"
	"os/exec"
	"strings"

	"nativeforge/internal/runner"
)

// VCS is the version-control collaborator. Any client exposing these
// primitives can back a Repo.
type VCS interface {
	// Open checks that path holds a usable checkout.
	Open(path string) error
	Clone(url, path string) error
	// UpdateSubmodules initializes and updates submodules recursively.
	UpdateSubmodules(path string) error
	// ResolveCommit returns the full object id rev points at.
	ResolveCommit(path, rev string) (string, error)
	// CheckoutNewBranch points branch name at sha and checks it out.
	CheckoutNewBranch(path, name, sha string) error
	// ApplyMailbox applies mail-formatted patches, in order, to the checkout
	// in the current working directory.
	ApplyMailbox(patches []string) error
	// SkipApply drops the patch a stopped apply session is sitting on.
	SkipApply(path string) error
}

// Git drives the git command line through an Executor.
type Git struct {
	Exec *runner.Executor
	// Env is the environment handed to git. The zero value inherits the
	// process environment.
	Env runner.Env
}

func NewGit(e *runner.Executor) *Git {
	env := runner.Inherit()
	// git am refuses to commit without an identity.
	if _, ok := env.Get("GIT_COMMITTER_NAME"); !ok {
		env = env.Set("GIT_COMMITTER_NAME", "nativeforge")
	}
	if _, ok := env.Get("GIT_COMMITTER_EMAIL"); !ok {
		env = env.Set("GIT_COMMITTER_EMAIL", "nativeforge@localhost")
	}
	return &Git{Exec: e, Env: env}
}

func (g *Git) command(args ...string) *exec.Cmd {
	cmd := exec.Command("git", args...)
	cmd.Env = g.Env.Slice()
	return cmd
}

func (g *Git) Open(path string) error {
	if _, err := g.Exec.Output(g.command("-C", path, "rev-parse", "--git-dir")); err != nil {
		return fmt.Errorf("%s is not a git checkout: %w", path, err)
	}
	return nil
}

func (g *Git) Clone(url, path string) error {
	return g.Exec.Run(g.command("clone", url, path))
}

func (g *Git) UpdateSubmodules(path string) error {
	return g.Exec.Run(g.command("-C", path, "submodule", "update", "--init", "--recursive"))
}

func (g *Git) ResolveCommit(path, rev string) (string, error) {
	out, err := g.Exec.Output(g.command("-C", path, "rev-parse", "--verify", "--quiet", rev+"^{commit}"))
	if err != nil {
		return "", err
	}
	sha := strings.TrimSpace(string(out))
	if sha == "" {
		return "", fmt.Errorf("%s resolved to nothing", rev)
	}
	return sha, nil
}

func (g *Git) CheckoutNewBranch(path, name, sha string) error {
	return g.Exec.Run(g.command("-C", path, "checkout", "-B", name, sha))
}

func (g *Git) ApplyMailbox(patches []string) error {
	args := append([]string{"am", "--whitespace=fix"}, patches...)
	return g.Exec.Run(g.command(args...))
}

func (g *Git) SkipApply(path string) error {
	return g.Exec.Run(g.command("-C", path, "am", "--skip"))
}
