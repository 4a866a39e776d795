// Package toolchain turns a (platform, arch) pair into a verified set of
// cross-compilation tools. A *Vars value can only be obtained through
// NewVars, so holding one means every referenced path existed at resolution
// time and no caller needs to check again.
package toolchain

import "strings"

// Tools lists the absolute path of every tool the build stage may invoke.
type Tools struct {
	TripleCC  string // <triple>-clang
	TripleCXX string // <triple>-clang++
	CC        string
	CXX       string
	AS        string
	AR        string
	NM        string
	Ranlib    string
	Strip     string
	Readelf   string
	Size      string
	Strings   string
	Lipo      string
	Sysroot   string
	Make      string
}

func (t Tools) paths() []string {
	return []string{
		t.TripleCC, t.TripleCXX, t.CC, t.CXX, t.AS, t.AR, t.NM, t.Ranlib,
		t.Strip, t.Readelf, t.Size, t.Strings, t.Lipo, t.Sysroot, t.Make,
	}
}

// Target holds the platform-specific strings derived from the arch.
type Target struct {
	Triple   string // LLVM target triple including the API level
	LibArch  string // architecture tag understood by the wrapped library
	ABI      string // platform ABI name, e.g. arm64-v8a
	APILevel int
}

// Vars is the validated toolchain bundle (ToolchainVars).
type Vars struct {
	tools  Tools
	target Target
	path   string
}

// NewVars validates every tool path before returning. Any missing path
// fails the whole construction with a ConfigureError.
func NewVars(tools Tools, target Target, path string) (*Vars, error) {
	if err := ValidateToolset(tools.paths()...); err != nil {
		return nil, err
	}
	return &Vars{tools: tools, target: target, path: path}, nil
}

func (v *Vars) Tools() Tools   { return v.tools }
func (v *Vars) Target() Target { return v.target }

// Path is the inherited PATH with the toolchain bin directory prepended.
func (v *Vars) Path() string { return v.path }

// Environ is the overlay handed to build subprocesses.
func (v *Vars) Environ() map[string]string {
	t := v.tools
	return map[string]string{
		"CC":         t.TripleCC,
		"CXX":        t.TripleCXX,
		"TRIPLE_CC":  t.TripleCC,
		"TRIPLE_CXX": t.TripleCXX,
		"AS":         t.AS,
		"AR":         t.AR,
		"NM":         t.NM,
		"RANLIB":     t.Ranlib,
		"STRIP":      t.Strip,
		"READELF":    t.Readelf,
		"SYSROOT":    t.Sysroot,
		"PATH":       v.path,
	}
}

func prependPath(dir, inherited string) string {
	if inherited == "" {
		return dir
	}
	return strings.Join([]string{dir, inherited}, ":")
}
