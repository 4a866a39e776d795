//go:build linux || darwin

package ffmpeg

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"nativeforge/internal/errs"
	"nativeforge/internal/module"
	"nativeforge/internal/runner"
	"nativeforge/internal/toolchain"
)

var testHost = toolchain.HostVars{Arch: "x86_64", Platform: "linux", HostTag: "linux-x86_64"}

// sampleVCS clones by writing a scripted configure into the checkout.
type sampleVCS struct {
	configure string
	branches  map[string]string
}

func (s *sampleVCS) Open(path string) error { return nil }

func (s *sampleVCS) Clone(url, path string) error {
	if err := os.MkdirAll(filepath.Join(path, ".git"), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(path, "configure"), []byte(s.configure), 0o755)
}

func (s *sampleVCS) UpdateSubmodules(path string) error { return nil }

func (s *sampleVCS) ResolveCommit(path, rev string) (string, error) {
	if rev != DefaultConfig.Commit {
		return "", errors.New("unknown revision")
	}
	return "0123456789abcdef", nil
}

func (s *sampleVCS) CheckoutNewBranch(path, name, sha string) error {
	if s.branches == nil {
		s.branches = map[string]string{}
	}
	s.branches[name] = sha
	return nil
}

func (s *sampleVCS) ApplyMailbox(patches []string) error { return nil }
func (s *sampleVCS) SkipApply(path string) error         { return nil }

func readLog(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestPipeline(t *testing.T) {
	cfg := buildConfig(t, "arm64")
	if err := cfg.Prepare(); err != nil {
		t.Fatal(err)
	}
	calls := filepath.Join(t.TempDir(), "calls.log")

	configure := `#!/bin/sh
echo "configure $*" >> ` + calls + `
for a in "$@"; do
  case "$a" in --prefix=*) echo "${a#--prefix=}" > config.h ;; esac
done
`
	makeBody := `echo "make $*" >> ` + calls + `
if [ "$1" = install ]; then
  d="${2#DESTDIR=}"
  p=$(cat config.h)
  mkdir -p "$d$p/lib/pkgconfig"
  printf 'so' > "$d$p/lib/libavutil.so"
  printf 'pc' > "$d$p/lib/pkgconfig/libavutil.pc"
fi
`
	tc := fakeToolchain(t, "aarch64", map[string]string{"make": makeBody})
	vcs := &sampleVCS{configure: configure}
	ex := runner.NewExecutor(context.Background(), zerolog.Nop())
	ex.Sink = io.Discard

	m := newTestModule(t, module.Deps{
		Cfg:       cfg,
		Toolchain: tc,
		Exec:      ex,
		VCS:       vcs,
		Logger:    zerolog.Nop(),
		Options:   module.Options{Jobs: 4, Strip: true, LookupEnv: noEnv},
	})
	d := module.NewDriver(m, tc, testHost, zerolog.Nop())
	if err := d.BuildAll(); err != nil {
		t.Fatalf("Expected pipeline to succeed, got %v", err)
	}
	if d.Stage() != module.Installed {
		t.Errorf("Expected stage installed, got %s", d.Stage())
	}

	if sha := vcs.branches["nativeforge-arm64"]; sha != "0123456789abcdef" {
		t.Errorf("Expected arch branch at pinned commit, got %q", sha)
	}
	log := readLog(t, calls)
	if !strings.Contains(log, "--cc="+tc.Tools().TripleCC) {
		t.Errorf("Expected configure to get the triple compiler, got:\n%s", log)
	}
	if !strings.Contains(log, "make V=1 -j4") {
		t.Errorf("Expected parallel make, got:\n%s", log)
	}
	if !strings.Contains(log, "make install DESTDIR="+cfg.StageDir()) {
		t.Errorf("Expected staged install, got:\n%s", log)
	}

	archive := filepath.Join(cfg.ArtifactsDir(), "ffmpeg-android-arm64.tar.zst")
	if _, err := os.Stat(archive); err != nil {
		t.Errorf("Expected archive %s: %v", archive, err)
	}
	for _, f := range []string{"lib/libavutil.so", "lib/pkgconfig/libavutil.pc"} {
		if _, err := os.Stat(filepath.Join(cfg.InstallPrefix(), f)); err != nil {
			t.Errorf("Expected %s in install prefix: %v", f, err)
		}
	}
	if _, err := os.Stat(filepath.Join(cfg.ArchDir(), prebuiltStamp)); err != nil {
		t.Errorf("Expected prebuild stamp: %v", err)
	}

	// A second run reuses the prepared tree and the existing configuration.
	if err := os.Remove(calls); err != nil {
		t.Fatal(err)
	}
	vcs.branches = nil
	again := newTestModule(t, module.Deps{
		Cfg:       cfg,
		Toolchain: tc,
		Exec:      ex,
		VCS:       vcs,
		Logger:    zerolog.Nop(),
		Options:   module.Options{Jobs: 4, LookupEnv: noEnv},
	})
	d = module.NewDriver(again, tc, testHost, zerolog.Nop())
	for _, step := range []func() error{d.Init, d.Prebuild, d.Build} {
		if err := step(); err != nil {
			t.Fatalf("Expected rerun to succeed, got %v", err)
		}
	}
	if len(vcs.branches) != 0 {
		t.Errorf("Expected prepared tree to be reused, got branches %v", vcs.branches)
	}
	if log := readLog(t, calls); strings.Contains(log, "configure") {
		t.Errorf("Expected configure to be skipped, got:\n%s", log)
	}
}

func TestBuildFailureIsBuildError(t *testing.T) {
	cfg := buildConfig(t, "arm64")
	if err := cfg.Prepare(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.ArchDir(), "config.h"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	tc := fakeToolchain(t, "aarch64", map[string]string{"make": "exit 2\n"})
	ex := runner.NewExecutor(context.Background(), zerolog.Nop())
	ex.Sink = io.Discard

	m := newTestModule(t, module.Deps{
		Cfg:       cfg,
		Toolchain: tc,
		Exec:      ex,
		Logger:    zerolog.Nop(),
		Options:   module.Options{LookupEnv: noEnv},
	})
	err := m.Build(tc, testHost)
	var be *errs.BuildError
	if !errors.As(err, &be) {
		t.Fatalf("Expected BuildError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "exit 2") {
		t.Errorf("Expected exit status in %q", err.Error())
	}
}

func TestPrebuildWithoutInit(t *testing.T) {
	cfg := buildConfig(t, "arm64")
	m := newTestModule(t, module.Deps{
		Cfg:     cfg,
		VCS:     &sampleVCS{},
		Logger:  zerolog.Nop(),
		Options: module.Options{LookupEnv: noEnv},
	})
	var ie *errs.InitError
	if err := m.Prebuild(); !errors.As(err, &ie) {
		t.Fatalf("Expected InitError, got %T: %v", err, err)
	}
}

func TestInstallWithoutArtifacts(t *testing.T) {
	cfg := buildConfig(t, "arm64")
	m := newTestModule(t, module.Deps{Cfg: cfg, Logger: zerolog.Nop(), Options: module.Options{LookupEnv: noEnv}})
	var ie *errs.InstallError
	if err := m.DoInstallPrebuilt(); !errors.As(err, &ie) {
		t.Fatalf("Expected InstallError, got %T: %v", err, err)
	}
}
