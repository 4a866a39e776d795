//go:build !linux && !darwin

package toolchain

import "runtime"

func hostMachine() string { return runtime.GOARCH }
