// Package workspace describes one run: what to build, for which target, and
// where on disk the per-architecture trees, patches and shared samples live.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"nativeforge/internal/errs"
)

type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformApple   Platform = "apple"
	PlatformIOS     Platform = "ios"
	PlatformTVOS    Platform = "tvos"
	PlatformMacOS   Platform = "macos"
)

// Platforms lists every accepted platform selector.
var Platforms = []Platform{PlatformAndroid, PlatformApple, PlatformIOS, PlatformTVOS, PlatformMacOS}

type Action string

const (
	ActionInit    Action = "init"
	ActionBuild   Action = "build"
	ActionInstall Action = "install"
)

var Actions = []Action{ActionInit, ActionBuild, ActionInstall}

// Directory names under the workspace root.
const (
	patchesDirName   = "patches"
	samplesDirName   = "samples"
	artifactsDirName = "artifacts"
	logsDirName      = "logs"
	stageDirName     = "stage"
)

// BuildConfigure is constructed once per invocation and is read-only
// afterwards; only Prepare touches the filesystem.
type BuildConfigure struct {
	platform      Platform
	arch          string
	workspace     string
	installPrefix string
	action        Action
	patchRoot     string
}

// Options carries the raw selectors from the command line.
type Options struct {
	Platform      string
	Arch          string
	Workspace     string
	InstallPrefix string
	Action        string
	// PatchRoot is the shared patch tree <workspace>/patches links to.
	// Empty means the workspace keeps its own patches directory.
	PatchRoot string
}

// New validates the platform and action selectors and absolutizes paths.
// The architecture is checked later against the resolver's closed table.
func New(opt Options) (BuildConfigure, error) {
	platform := Platform(opt.Platform)
	if !slices.Contains(Platforms, platform) {
		return BuildConfigure{}, errs.Configuref("unknown platform %q, must be one of %v", opt.Platform, Platforms)
	}
	action := Action(opt.Action)
	if !slices.Contains(Actions, action) {
		return BuildConfigure{}, errs.Configuref("unknown action %q, must be one of %v", opt.Action, Actions)
	}
	if opt.Arch == "" {
		return BuildConfigure{}, errs.Configuref("no architecture given for platform %s", platform)
	}
	if opt.Workspace == "" {
		return BuildConfigure{}, errs.Configuref("no workspace given")
	}

	ws, err := filepath.Abs(opt.Workspace)
	if err != nil {
		return BuildConfigure{}, errs.WrapConfigure(err, "invalid workspace %s", opt.Workspace)
	}

	prefix := opt.InstallPrefix
	if prefix == "" {
		prefix = filepath.Join(ws, "install", string(platform), opt.Arch)
	}
	if prefix, err = filepath.Abs(prefix); err != nil {
		return BuildConfigure{}, errs.WrapConfigure(err, "invalid install prefix %s", opt.InstallPrefix)
	}

	patchRoot := opt.PatchRoot
	if patchRoot != "" {
		if patchRoot, err = filepath.Abs(patchRoot); err != nil {
			return BuildConfigure{}, errs.WrapConfigure(err, "invalid patch root %s", opt.PatchRoot)
		}
	}

	return BuildConfigure{
		platform:      platform,
		arch:          opt.Arch,
		workspace:     ws,
		installPrefix: prefix,
		action:        action,
		patchRoot:     patchRoot,
	}, nil
}

func (c BuildConfigure) Platform() Platform    { return c.platform }
func (c BuildConfigure) Arch() string          { return c.arch }
func (c BuildConfigure) Workspace() string     { return c.workspace }
func (c BuildConfigure) InstallPrefix() string { return c.installPrefix }
func (c BuildConfigure) Action() Action        { return c.action }
func (c BuildConfigure) PatchRoot() string     { return c.patchRoot }

// ArchDir is the per-architecture build tree, <workspace>/<arch>.
func (c BuildConfigure) ArchDir() string { return filepath.Join(c.workspace, c.arch) }

// PatchesDir is <workspace>/patches.
func (c BuildConfigure) PatchesDir() string { return filepath.Join(c.workspace, patchesDirName) }

// SamplesDir holds the shared, cloned-once checkouts.
func (c BuildConfigure) SamplesDir() string { return filepath.Join(c.workspace, samplesDirName) }

// SampleDir is the checkout for one module save directory.
func (c BuildConfigure) SampleDir(saveDir string) string {
	return filepath.Join(c.SamplesDir(), saveDir)
}

func (c BuildConfigure) ArtifactsDir() string { return filepath.Join(c.workspace, artifactsDirName) }
func (c BuildConfigure) LogsDir() string      { return filepath.Join(c.workspace, logsDirName) }

// StageDir receives `make install DESTDIR=` output before packaging.
func (c BuildConfigure) StageDir() string {
	return filepath.Join(c.workspace, stageDirName, c.arch)
}

// Tag names a (platform, arch) pair in file names.
func (c BuildConfigure) Tag() string { return fmt.Sprintf("%s-%s", c.platform, c.arch) }

// Prepare creates the workspace layout. Existing entries are left alone so
// repeated calls are no-ops.
func (c BuildConfigure) Prepare() error {
	for _, dir := range []string{c.ArchDir(), c.SamplesDir(), c.ArtifactsDir(), c.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.WrapConfigure(err, "failed to create %s", dir)
		}
	}
	return c.preparePatches()
}

func (c BuildConfigure) preparePatches() error {
	dir := c.PatchesDir()
	if _, err := os.Lstat(dir); err == nil {
		return nil
	}

	if c.patchRoot == "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.WrapConfigure(err, "failed to create %s", dir)
		}
		return nil
	}

	if info, err := os.Stat(c.patchRoot); err != nil || !info.IsDir() {
		return errs.Configuref("patch root %s is not a directory", c.patchRoot)
	}
	if err := os.Symlink(c.patchRoot, dir); err != nil {
		return errs.WrapConfigure(err, "failed to link %s to %s", dir, c.patchRoot)
	}
	return nil
}
