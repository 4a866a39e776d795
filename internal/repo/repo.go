// Package repo manages version-controlled source checkouts: one shared
// sample clone per module, copied into per-arch build trees, branched and
// patched there.
package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"nativeforge/internal/errs"
	"nativeforge/internal/runner"
)

// applyMarker exists under the control directory while a mailbox apply is
// stopped half way.
const applyMarker = "rebase-apply"

type Options struct {
	URL        string
	Path       string
	Submodules bool
	VCS        VCS
	// Exec runs the recursive copy. Required for CopyTo.
	Exec   *runner.Executor
	Logger zerolog.Logger
}

// Repo is a handle to one checkout on disk.
type Repo struct {
	url        string
	path       string
	submodules bool
	vcs        VCS
	exec       *runner.Executor
	base       zerolog.Logger
	logger     zerolog.Logger

	// live is set once the checkout is known to be valid.
	live bool
}

// New returns a handle for opt.Path, creating the directory when absent.
func New(opt Options) (*Repo, error) {
	if opt.Path == "" {
		return nil, errs.Initf("repository path is empty")
	}
	if opt.VCS == nil {
		return nil, errs.Initf("no version control client for %s", opt.Path)
	}
	path, err := filepath.Abs(opt.Path)
	if err != nil {
		return nil, errs.WrapInit(err, "invalid repository path %s", opt.Path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, errs.WrapInit(err, "failed to create %s", path)
	}
	return &Repo{
		url:        opt.URL,
		path:       path,
		submodules: opt.Submodules,
		vcs:        opt.VCS,
		exec:       opt.Exec,
		base:       opt.Logger,
		logger:     opt.Logger.With().Str("repo", path).Logger(),
	}, nil
}

func (r *Repo) URL() string       { return r.url }
func (r *Repo) Path() string      { return r.path }
func (r *Repo) Initialized() bool { return r.live }

func (r *Repo) hasCheckout() bool {
	_, err := os.Stat(filepath.Join(r.path, ".git"))
	return err == nil
}

// Init opens the checkout at the local path, cloning it first when absent,
// then updates submodules if the module declared any. Calling it again is a
// no-op.
func (r *Repo) Init() error {
	if r.live {
		r.logger.Debug().Msg("checkout already initialized")
		return nil
	}

	unlock, err := lockCheckout(r.path)
	if err != nil {
		return errs.WrapInit(err, "failed to lock %s", r.path)
	}
	defer unlock()

	if r.hasCheckout() {
		r.logger.Info().Msg("found existing checkout, skipping clone")
		if err := r.vcs.Open(r.path); err != nil {
			return errs.WrapInit(err, "failed to open %s", r.path)
		}
	} else {
		if r.url == "" {
			return errs.Initf("no repository url for %s", r.path)
		}
		if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
			return errs.WrapInit(err, "failed to create parent of %s", r.path)
		}
		r.logger.Info().Str("url", r.url).Msg("cloning")
		if err := r.vcs.Clone(r.url, r.path); err != nil {
			return errs.WrapInit(err, "failed to clone %s into %s", r.url, r.path)
		}
	}

	if r.submodules {
		r.logger.Info().Msg("updating submodules")
		if err := r.vcs.UpdateSubmodules(r.path); err != nil {
			return errs.WrapInit(err, "failed to update submodules of %s", r.path)
		}
	}

	r.live = true
	return nil
}

func (r *Repo) requireLive(op string) error {
	if !r.live {
		return errs.Initf("cannot %s: %s is not initialized", op, r.path)
	}
	return nil
}

// CreateLocalBranchOnCommit points a new branch at commit and checks it out.
func (r *Repo) CreateLocalBranchOnCommit(name, commit string) error {
	if err := r.requireLive("create branch"); err != nil {
		return err
	}
	sha, err := r.vcs.ResolveCommit(r.path, commit)
	if err != nil {
		return errs.WrapInit(err, "commit %s does not resolve in %s", commit, r.path)
	}
	if err := r.vcs.CheckoutNewBranch(r.path, name, sha); err != nil {
		return errs.WrapInit(err, "failed to check out branch %s at %s", name, sha)
	}
	r.logger.Info().Str("branch", name).Str("commit", sha).Msg("checked out local branch")
	return nil
}

// ApplyPatches applies every patch of patchDir, in lexical order, from
// inside the checkout. The working directory is restored whatever happens.
func (r *Repo) ApplyPatches(patchDir string) error {
	if err := r.requireLive("apply patches"); err != nil {
		return err
	}
	patches, err := ListPatches(patchDir)
	if err != nil {
		return err
	}
	if len(patches) == 0 {
		r.logger.Info().Str("patches", patchDir).Msg("no patches to apply")
		return nil
	}

	paths := make([]string, len(patches))
	for i, p := range patches {
		paths[i] = p.Path
		r.logger.Info().Str("patch", filepath.Base(p.Path)).Msg(p.Title)
	}

	err = runner.InDir(r.path, func() error {
		return r.vcs.ApplyMailbox(paths)
	})
	if err != nil {
		return errs.WrapInit(err, "failed to apply patches of %s to %s", patchDir, r.path)
	}
	return nil
}

// Reset skips the current patch when an apply was left half done. It is a
// recovery step and is never run implicitly.
func (r *Repo) Reset() error {
	marker := filepath.Join(r.path, ".git", applyMarker)
	if _, err := os.Stat(marker); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.logger.Debug().Msg("no interrupted patch apply")
			return nil
		}
		return errs.WrapInit(err, "failed to inspect %s", marker)
	}
	r.logger.Warn().Msg("skipping partially applied patch")
	if err := r.vcs.SkipApply(r.path); err != nil {
		return errs.WrapInit(err, "failed to skip patch in %s", r.path)
	}
	return nil
}

// CopyTo recursively copies the checkout into dir and returns a handle on
// the copy.
func (r *Repo) CopyTo(dir string) (*Repo, error) {
	if err := r.requireLive("copy"); err != nil {
		return nil, err
	}
	if r.exec == nil {
		return nil, errs.Buildf("no executor to copy %s", r.path)
	}
	dst, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.WrapBuild(err, "invalid copy destination %s", dir)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, errs.WrapBuild(err, "failed to create %s", dst)
	}

	r.logger.Info().Str("dest", dst).Msg("copying checkout")
	cmd := exec.Command("cp", "-a", r.path+string(filepath.Separator)+".", dst)
	if err := r.exec.Run(cmd); err != nil {
		return nil, errs.WrapBuild(err, "failed to copy %s to %s (exit %d)", r.path, dst, runner.ExitCode(err))
	}

	return &Repo{
		url:        r.url,
		path:       dst,
		submodules: r.submodules,
		vcs:        r.vcs,
		exec:       r.exec,
		base:       r.base,
		logger:     r.base.With().Str("repo", dst).Logger(),
		live:       true,
	}, nil
}

// CopyToArch copies the checkout to <parent>/<arch>.
func (r *Repo) CopyToArch(parent, arch string) (*Repo, error) {
	if arch == "" {
		return nil, errs.Buildf("empty arch for copy of %s", r.path)
	}
	return r.CopyTo(filepath.Join(parent, arch))
}

func (r *Repo) String() string {
	return fmt.Sprintf("%s (%s)", r.path, r.url)
}
