// Package ffmpeg builds the FFmpeg libraries for Android.
package ffmpeg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"nativeforge/internal/artifact"
	"nativeforge/internal/errs"
	"nativeforge/internal/module"
	"nativeforge/internal/repo"
	"nativeforge/internal/runner"
	"nativeforge/internal/toolchain"
)

// DefaultConfig describes the upstream FFmpeg 7.1 release.
var DefaultConfig = module.Config{
	Name: "ffmpeg",
	Libraries: []string{
		"libavcodec",
		"libavformat",
		"libavutil",
		"libswresample",
		"libswscale",
		"libavdevice",
	},
	RepoURL:       "https://github.com/FFmpeg/FFmpeg.git",
	RepoEnv:       "REPO_FFMPEG",
	SaveDir:       "ffmpeg7",
	HasSubmodules: false,
	PatchDir:      "ffmpeg-n7.1.1",
	Commit:        "n7.1.1",
}

// configureFlags are passed to every Android build.
var configureFlags = []string{
	"--enable-cross-compile",
	"--target-os=android",
	"--enable-shared",
	"--disable-static",
	"--enable-pic",
	"--disable-programs",
	"--disable-doc",
	"--disable-debug",
	"--enable-jni",
	"--enable-mediacodec",
}

const (
	prebuiltStamp = ".nativeforge-prebuilt"
	branchPrefix  = "nativeforge-"
)

// Module is the FFmpeg build recipe.
type Module struct {
	*module.Base

	// openssl is set when an openssl pkg-config file was found in the
	// install prefix.
	openssl bool
}

var _ module.Module = (*Module)(nil)

// New is the registry factory.
func New(d module.Deps) (module.Module, error) {
	return &Module{Base: module.NewBase(d, DefaultConfig)}, nil
}

// DoInit clones or opens the shared sample and checks its patches parse.
func (m *Module) DoInit() error {
	if err := m.InitSampleRepo(); err != nil {
		return err
	}
	patches, err := repo.ListPatches(m.PatchDir())
	if err != nil {
		return err
	}
	m.Log().Info().Int("patches", len(patches)).Str("dir", m.PatchDir()).Msg("patches staged")
	return nil
}

func (m *Module) DoInstallPrebuilt() error {
	return m.InstallPrebuilt()
}

func (m *Module) stampPath() string {
	return filepath.Join(m.Cfg.ArchDir(), prebuiltStamp)
}

// Prebuild copies the sample into the arch tree, branches it at the pinned
// commit, applies patches and prepares the directories the build writes to.
// A tree already prepared by an earlier run is reused unless forced.
func (m *Module) Prebuild() error {
	m.detectOpenSSL()

	if _, err := os.Stat(m.stampPath()); err == nil && !m.Options.Force {
		m.Log().Info().Str("tree", m.Cfg.ArchDir()).Msg("arch tree already prepared, skipping copy")
		return m.ensureDirs()
	}

	tree, err := m.CopySampleToArch(m.Cfg.Workspace())
	if err != nil {
		return err
	}

	if commit := m.Config().Commit; commit != "" {
		if err := tree.CreateLocalBranchOnCommit(branchPrefix+m.Cfg.Arch(), commit); err != nil {
			return err
		}
	}
	if err := tree.ApplyPatches(m.PatchDir()); err != nil {
		return err
	}
	if err := m.ensureDirs(); err != nil {
		return err
	}
	if err := os.WriteFile(m.stampPath(), []byte(m.Config().Commit+"\n"), 0o644); err != nil {
		return errs.WrapBuild(err, "failed to write %s", m.stampPath())
	}
	return nil
}

func (m *Module) ensureDirs() error {
	prefix := m.Cfg.InstallPrefix()
	for _, dir := range []string{m.Cfg.StageDir(), prefix, filepath.Join(prefix, "lib", "pkgconfig")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errs.WrapBuild(err, "failed to create %s", dir)
		}
	}
	return nil
}

func (m *Module) pkgConfigDir() string {
	return filepath.Join(m.Cfg.InstallPrefix(), "lib", "pkgconfig")
}

func (m *Module) detectOpenSSL() {
	_, err := os.Stat(filepath.Join(m.pkgConfigDir(), "openssl.pc"))
	m.openssl = err == nil
	if m.openssl {
		m.Log().Info().Msg("openssl found in install prefix, enabling it")
	} else if !errors.Is(err, fs.ErrNotExist) {
		m.Log().Warn().Err(err).Msg("failed to probe for openssl")
	}
}

// env is the inherited environment with the toolchain overlay.
func (m *Module) env(tc *toolchain.Vars) runner.Env {
	return runner.Inherit().
		Overlay(tc.Environ()).
		Set("PKG_CONFIG_LIBDIR", m.pkgConfigDir())
}

// ConfigureArgs returns the configure command line, one argument per element.
func (m *Module) ConfigureArgs(tc *toolchain.Vars) []string {
	t := tc.Tools()
	args := []string{"./configure"}
	args = append(args, configureFlags...)
	args = append(args,
		"--arch="+tc.Target().LibArch,
		"--sysroot="+t.Sysroot,
	)
	if tc.Target().LibArch == "i686" || tc.Target().LibArch == "x86_64" {
		args = append(args, "--disable-x86asm")
	}
	if m.openssl {
		args = append(args, "--enable-openssl", "--enable-version3")
	}

	pkgConfig := m.Options.PkgConfig
	if pkgConfig == "" {
		pkgConfig = "pkg-config"
	}
	args = append(args,
		"--cc="+t.TripleCC,
		"--cxx="+t.TripleCXX,
		"--as="+t.TripleCC,
		"--ld="+t.TripleCC,
		"--ar="+t.AR,
		"--nm="+t.NM,
		"--strip="+t.Strip,
		"--ranlib="+t.Ranlib,
		"--extra-cflags="+m.Options.ExtraCFlags,
		"--extra-cxxflags="+m.Options.ExtraCFlags,
		"--extra-ldflags="+m.Options.ExtraLDFlags,
		"--pkg-config="+pkgConfig,
		"--prefix="+m.Cfg.InstallPrefix(),
	)
	return append(args, m.Options.ExtraConfigureFlags...)
}

// MakeArgs returns the parallel verbose make invocation.
func (m *Module) MakeArgs(tc *toolchain.Vars) []string {
	return []string{tc.Tools().Make, "V=1", fmt.Sprintf("-j%d", m.Options.Jobs)}
}

func (m *Module) run(tc *toolchain.Vars, stage string, argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = m.Cfg.ArchDir()
	cmd.Env = m.env(tc).Slice()
	if err := m.Exec.Run(cmd); err != nil {
		return errs.WrapBuild(err, "%s of %s failed with exit %d", stage, cmd.Dir, runner.ExitCode(err))
	}
	return nil
}

// Build runs configure, unless config.h is already present, then make.
func (m *Module) Build(tc *toolchain.Vars, host toolchain.HostVars) error {
	src := m.Cfg.ArchDir()
	if _, err := os.Stat(src); err != nil {
		return errs.WrapBuild(err, "cannot find source %s, run prebuild first", src)
	}
	m.Log().Debug().Str("host_tag", host.HostTag).Str("triple", tc.Target().Triple).Msg("building")

	if _, err := os.Stat(filepath.Join(src, "config.h")); err != nil || m.Options.Force {
		if err := m.run(tc, "configure", m.ConfigureArgs(tc)); err != nil {
			return err
		}
	} else {
		m.Log().Info().Msg("config.h present, skipping configure")
	}
	return m.run(tc, "make", m.MakeArgs(tc))
}

// Postbuild installs into the stage, strips, packs and publishes.
func (m *Module) Postbuild() error {
	tc := m.Toolchain
	if tc == nil {
		return errs.Buildf("no toolchain for postbuild of %s", m.Config().Name)
	}
	stage := m.Cfg.StageDir()
	if err := os.RemoveAll(stage); err != nil {
		return errs.WrapBuild(err, "failed to clean %s", stage)
	}
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return errs.WrapBuild(err, "failed to create %s", stage)
	}
	if err := m.run(tc, "install", []string{tc.Tools().Make, "install", "DESTDIR=" + stage}); err != nil {
		return err
	}

	root := filepath.Join(stage, m.Cfg.InstallPrefix())
	if m.Options.Strip {
		n, err := artifact.StripShared(m.Exec, tc.Tools().Strip, root, *m.Log())
		if err != nil {
			return err
		}
		m.Log().Info().Int("files", n).Msg("stripped shared libraries")
	}
	_, err := m.Package(root)
	return err
}
