package ffmpeg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"nativeforge/internal/module"
	"nativeforge/internal/toolchain"
	"nativeforge/internal/workspace"
)

var toolFiles = []string{
	"aarch64-linux-android21-clang", "aarch64-linux-android21-clang++", "clang", "clang++",
	"llvm-as", "llvm-ar", "llvm-nm", "llvm-ranlib", "llvm-strip", "llvm-readelf",
	"llvm-size", "llvm-strings", "llvm-lipo", "make",
}

// fakeToolchain creates every tool as a script with the given bodies; tools
// without a body exit 0.
func fakeToolchain(t *testing.T, libArch string, bodies map[string]string) *toolchain.Vars {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	sysroot := filepath.Join(dir, "sysroot")
	for _, d := range []string{bin, sysroot} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range toolFiles {
		body, ok := bodies[name]
		if !ok {
			body = "exit 0\n"
		}
		if err := os.WriteFile(filepath.Join(bin, name), []byte("#!/bin/sh\n"+body), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	p := func(n string) string { return filepath.Join(bin, n) }
	tools := toolchain.Tools{
		TripleCC:  p("aarch64-linux-android21-clang"),
		TripleCXX: p("aarch64-linux-android21-clang++"),
		CC:        p("clang"),
		CXX:       p("clang++"),
		AS:        p("llvm-as"),
		AR:        p("llvm-ar"),
		NM:        p("llvm-nm"),
		Ranlib:    p("llvm-ranlib"),
		Strip:     p("llvm-strip"),
		Readelf:   p("llvm-readelf"),
		Size:      p("llvm-size"),
		Strings:   p("llvm-strings"),
		Lipo:      p("llvm-lipo"),
		Sysroot:   sysroot,
		Make:      p("make"),
	}
	target := toolchain.Target{Triple: "aarch64-linux-android21", LibArch: libArch, ABI: "arm64-v8a", APILevel: 21}
	vars, err := toolchain.NewVars(tools, target, bin+":"+os.Getenv("PATH"))
	if err != nil {
		t.Fatal(err)
	}
	return vars
}

func newTestModule(t *testing.T, deps module.Deps) *Module {
	t.Helper()
	m, err := New(deps)
	if err != nil {
		t.Fatal(err)
	}
	return m.(*Module)
}

func buildConfig(t *testing.T, arch string) workspace.BuildConfigure {
	t.Helper()
	ws := t.TempDir()
	cfg, err := workspace.New(workspace.Options{
		Platform:      string(workspace.PlatformAndroid),
		Arch:          arch,
		Workspace:     ws,
		InstallPrefix: filepath.Join(ws, "out"),
		Action:        string(workspace.ActionBuild),
	})
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func noEnv(string) (string, bool) { return "", false }

func TestDefaultConfig(t *testing.T) {
	m := newTestModule(t, module.Deps{
		Cfg:     buildConfig(t, "arm64"),
		Logger:  zerolog.Nop(),
		Options: module.Options{LookupEnv: noEnv},
	})
	c := m.Config()
	if c.Name != "ffmpeg" || c.RepoEnv != "REPO_FFMPEG" || c.SaveDir != "ffmpeg7" || c.PatchDir != "ffmpeg-n7.1.1" {
		t.Errorf("Unexpected config %+v", c)
	}
	if len(c.Libraries) != 6 || c.Libraries[0] != "libavcodec" {
		t.Errorf("Unexpected libraries %v", c.Libraries)
	}
	if c.HasSubmodules {
		t.Error("Expected no submodules")
	}
}

func TestRepoEnvOverride(t *testing.T) {
	m := newTestModule(t, module.Deps{
		Cfg:    buildConfig(t, "arm64"),
		Logger: zerolog.Nop(),
		Options: module.Options{LookupEnv: func(k string) (string, bool) {
			if k == "REPO_FFMPEG" {
				return "https://mirror.example.com/ffmpeg.git", true
			}
			return "", false
		}},
	})
	if m.Config().RepoURL != "https://mirror.example.com/ffmpeg.git" {
		t.Errorf("Expected REPO_FFMPEG to override the url, got %s", m.Config().RepoURL)
	}
}

func TestConfigureArgs(t *testing.T) {
	cfg := buildConfig(t, "arm64")
	tc := fakeToolchain(t, "aarch64", nil)
	m := newTestModule(t, module.Deps{
		Cfg:    cfg,
		Logger: zerolog.Nop(),
		Options: module.Options{
			Jobs:                4,
			ExtraCFlags:         "-O2 -fPIC",
			ExtraConfigureFlags: []string{"--disable-avdevice"},
			LookupEnv:           noEnv,
		},
	})

	args := m.ConfigureArgs(tc)
	if args[0] != "./configure" {
		t.Fatalf("Expected ./configure first, got %s", args[0])
	}
	want := []string{
		"--arch=aarch64",
		"--cc=" + tc.Tools().TripleCC,
		"--as=" + tc.Tools().TripleCC,
		"--ld=" + tc.Tools().TripleCC,
		"--extra-cflags=-O2 -fPIC",
		"--pkg-config=pkg-config",
		"--prefix=" + cfg.InstallPrefix(),
		"--disable-avdevice",
	}
	have := map[string]bool{}
	for _, a := range args[1:] {
		if !strings.HasPrefix(a, "--") {
			t.Errorf("Expected one flag per element, got %q", a)
		}
		have[a] = true
	}
	for _, w := range want {
		if !have[w] {
			t.Errorf("Expected %q in configure args", w)
		}
	}
	if have["--disable-x86asm"] || have["--enable-openssl"] {
		t.Error("Unexpected x86 or openssl flags for arm64 without openssl")
	}

	if got := m.MakeArgs(tc); len(got) != 3 || got[1] != "V=1" || got[2] != "-j4" {
		t.Errorf("Expected make V=1 -j4 as separate arguments, got %v", got)
	}
}

func TestConfigureArgsX86WithOpenSSL(t *testing.T) {
	cfg := buildConfig(t, "x86_64")
	pc := filepath.Join(cfg.InstallPrefix(), "lib", "pkgconfig")
	if err := os.MkdirAll(pc, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pc, "openssl.pc"), []byte("Name: OpenSSL\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := newTestModule(t, module.Deps{Cfg: cfg, Logger: zerolog.Nop(), Options: module.Options{LookupEnv: noEnv}})
	m.detectOpenSSL()
	args := strings.Join(m.ConfigureArgs(fakeToolchain(t, "x86_64", nil)), "\n")
	for _, w := range []string{"--disable-x86asm", "--enable-openssl", "--enable-version3"} {
		if !strings.Contains(args, w) {
			t.Errorf("Expected %s in configure args", w)
		}
	}
}

func TestEnvOverlay(t *testing.T) {
	cfg := buildConfig(t, "arm64")
	tc := fakeToolchain(t, "aarch64", nil)
	m := newTestModule(t, module.Deps{Cfg: cfg, Logger: zerolog.Nop(), Options: module.Options{LookupEnv: noEnv}})

	env := m.env(tc)
	if v, _ := env.Get("CC"); v != tc.Tools().TripleCC {
		t.Errorf("Expected CC=%s, got %s", tc.Tools().TripleCC, v)
	}
	if v, _ := env.Get("PATH"); v != tc.Path() {
		t.Errorf("Expected toolchain PATH, got %s", v)
	}
	if v, _ := env.Get("PKG_CONFIG_LIBDIR"); v != filepath.Join(cfg.InstallPrefix(), "lib", "pkgconfig") {
		t.Errorf("Unexpected PKG_CONFIG_LIBDIR %s", v)
	}
}
