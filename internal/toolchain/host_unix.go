//go:build linux || darwin

package toolchain

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func hostMachine() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return runtime.GOARCH
	}
	return unix.ByteSliceToString(u.Machine[:])
}
