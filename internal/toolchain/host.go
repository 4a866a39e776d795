package toolchain

import (
	"runtime"

	"nativeforge/internal/errs"
)

// HostVars describes the build machine. Computed once per process.
type HostVars struct {
	Arch     string // normalized host machine, e.g. x86_64 or arm64
	Platform string // raw host OS identity, e.g. linux
	HostTag  string // vendor prebuilt directory name, e.g. linux-x86_64
}

// hostTags is the closed table of supported build hosts. NDK ships its
// macOS toolchain under darwin-x86_64 on Apple silicon as well.
var hostTags = map[string]string{
	"darwin": "darwin-x86_64",
	"linux":  "linux-x86_64",
}

// DetectHost maps the running OS to its host tag. Unsupported hosts fail
// before any tool path is computed.
func DetectHost() (HostVars, error) {
	return detectHost(runtime.GOOS, hostMachine())
}

func detectHost(goos, machine string) (HostVars, error) {
	tag, ok := hostTags[goos]
	if !ok {
		return HostVars{}, errs.Configuref("unknown host %s", goos)
	}
	return HostVars{
		Arch:     normalizeMachine(machine),
		Platform: goos,
		HostTag:  tag,
	}, nil
}

func normalizeMachine(machine string) string {
	switch machine {
	case "x86_64", "amd64":
		return "x86_64"
	case "aarch64", "arm64":
		return "arm64"
	case "i386", "i686", "386":
		return "x86"
	}
	return machine
}
