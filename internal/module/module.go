// Package module defines the lifecycle every buildable library follows and
// the driver that enforces its order:
//
//	Uninitialized -> Initialized -> Prebuilt -> Built -> Postbuilt
//
// Installed is reached from Built or Postbuilt, or straight from
// Uninitialized when only a prebuilt is installed.
package module

import (
	"github.com/rs/zerolog"

	"nativeforge/internal/artifact"
	"nativeforge/internal/repo"
	"nativeforge/internal/runner"
	"nativeforge/internal/toolchain"
	"nativeforge/internal/workspace"
)

// Config is the static description of a module.
type Config struct {
	Name string `yaml:"name"`
	// Libraries are the artifacts the module produces.
	Libraries []string `yaml:"libraries"`
	RepoURL   string   `yaml:"repo"`
	// RepoEnv names the variable that overrides RepoURL.
	RepoEnv       string `yaml:"repo_env"`
	SaveDir       string `yaml:"save_dir"`
	HasSubmodules bool   `yaml:"submodules"`
	PatchDir      string `yaml:"patch_dir"`
	// Commit is the upstream ref the per-arch tree is branched at. Empty
	// builds whatever the sample has checked out.
	Commit string `yaml:"commit"`
}

// Module is one library's build recipe.
type Module interface {
	Config() Config
	// DoInit acquires the source and stages patches.
	DoInit() error
	// DoInstallPrebuilt installs existing artifacts without building.
	DoInstallPrebuilt() error
	// Prebuild prepares the per-arch tree.
	Prebuild() error
	Build(tc *toolchain.Vars, host toolchain.HostVars) error
	// Postbuild strips, packages and publishes the build output.
	Postbuild() error
}

// Options are the run-wide knobs a module reads.
type Options struct {
	Jobs    int
	Force   bool // rerun configure and prebuild even when already done
	Strip   bool
	Publish bool

	ExtraCFlags         string
	ExtraLDFlags        string
	ExtraConfigureFlags []string
	PkgConfig           string

	// LogPath is the run log archived next to the artifacts.
	LogPath string
	// LookupEnv reads the process environment; nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Deps is everything a module is constructed with.
type Deps struct {
	Cfg       workspace.BuildConfigure
	Toolchain *toolchain.Vars // nil when only installing a prebuilt
	Host      toolchain.HostVars
	Exec      *runner.Executor
	VCS       repo.VCS
	Store     artifact.Store // nil without a remote store
	Override  *Override
	Options   Options
	Logger    zerolog.Logger
}

// Factory builds a module from its dependencies.
type Factory func(Deps) (Module, error)
