package toolchain

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"nativeforge/internal/errs"
	"nativeforge/internal/workspace"
)

const (
	// DefaultNDKEnv names the variable holding the NDK root.
	DefaultNDKEnv = "ANDROID_NDK_HOME"
	// AndroidAPILevel is appended to every Android target triple.
	AndroidAPILevel = 21
)

type androidArch struct {
	triple  string // without API level
	libArch string
	abi     string
}

// androidArchs is the closed table of Android targets. New targets are added
// here, never guessed.
var androidArchs = map[string]androidArch{
	"armv7a": {triple: "armv7a-linux-androideabi", libArch: "armv7a", abi: "armeabi-v7a"},
	"x86":    {triple: "i686-linux-android", libArch: "i686", abi: "x86"},
	"x86_64": {triple: "x86_64-linux-android", libArch: "x86_64", abi: "x86_64"},
	"arm64":  {triple: "aarch64-linux-android", libArch: "aarch64", abi: "arm64-v8a"},
}

// AndroidArchs returns the supported Android arch selectors.
func AndroidArchs() []string {
	return []string{"armv7a", "x86", "x86_64", "arm64"}
}

// Resolver computes and validates the toolchain for a BuildConfigure.
type Resolver struct {
	// NDKEnv is the variable read for the NDK root.
	NDKEnv     string
	LookupEnv  func(string) (string, bool)
	DetectHost func() (HostVars, error)
	Logger     zerolog.Logger
}

func NewResolver(logger zerolog.Logger) *Resolver {
	return &Resolver{
		NDKEnv:     DefaultNDKEnv,
		LookupEnv:  os.LookupEnv,
		DetectHost: DetectHost,
		Logger:     logger,
	}
}

// Resolve returns the validated toolchain and host facts for cfg.
func (r *Resolver) Resolve(cfg workspace.BuildConfigure) (*Vars, HostVars, error) {
	switch cfg.Platform() {
	case workspace.PlatformAndroid:
		return r.resolveAndroid(cfg)
	}
	return nil, HostVars{}, errs.Configuref("unknown platform %s", cfg.Platform())
}

func (r *Resolver) resolveAndroid(cfg workspace.BuildConfigure) (*Vars, HostVars, error) {
	ndkEnv := r.NDKEnv
	if ndkEnv == "" {
		ndkEnv = DefaultNDKEnv
	}
	ndkHome, ok := r.LookupEnv(ndkEnv)
	if !ok || ndkHome == "" {
		return nil, HostVars{}, errs.Configuref("%s is not set", ndkEnv)
	}
	if _, err := os.Stat(ndkHome); err != nil {
		return nil, HostVars{}, errs.Configuref("%s %s does not exist", ndkEnv, ndkHome)
	}

	a, ok := androidArchs[cfg.Arch()]
	if !ok {
		return nil, HostVars{}, errs.Configuref("unknown arch %s for platform %s", cfg.Arch(), cfg.Platform())
	}
	target := Target{
		Triple:   fmt.Sprintf("%s%d", a.triple, AndroidAPILevel),
		LibArch:  a.libArch,
		ABI:      a.abi,
		APILevel: AndroidAPILevel,
	}

	host, err := r.DetectHost()
	if err != nil {
		return nil, HostVars{}, err
	}

	root := filepath.Join(ndkHome, "toolchains", "llvm", "prebuilt", host.HostTag)
	bin := filepath.Join(root, "bin")
	inherited, _ := r.LookupEnv("PATH")

	tools := Tools{
		TripleCC:  filepath.Join(bin, target.Triple+"-clang"),
		TripleCXX: filepath.Join(bin, target.Triple+"-clang++"),
		CC:        filepath.Join(bin, "clang"),
		CXX:       filepath.Join(bin, "clang++"),
		AS:        filepath.Join(bin, "llvm-as"),
		AR:        filepath.Join(bin, "llvm-ar"),
		NM:        filepath.Join(bin, "llvm-nm"),
		Ranlib:    filepath.Join(bin, "llvm-ranlib"),
		Strip:     filepath.Join(bin, "llvm-strip"),
		Readelf:   filepath.Join(bin, "llvm-readelf"),
		Size:      filepath.Join(bin, "llvm-size"),
		Strings:   filepath.Join(bin, "llvm-strings"),
		Lipo:      filepath.Join(bin, "llvm-lipo"),
		Sysroot:   filepath.Join(root, "sysroot"),
		Make:      filepath.Join(ndkHome, "prebuilt", host.HostTag, "bin", "make"),
	}

	r.Logger.Debug().
		Str("ndk", ndkHome).
		Str("triple", target.Triple).
		Str("abi", target.ABI).
		Str("host_tag", host.HostTag).
		Msg("resolved android toolchain layout")

	vars, err := NewVars(tools, target, prependPath(bin, inherited))
	if err != nil {
		return nil, HostVars{}, err
	}
	return vars, host, nil
}
