package errs

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestKindsAreDistinguishable(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{"configure", Configuref("unknown host %s", "plan9"), "configure error: unknown host plan9"},
		{"init", Initf("no repo"), "init error: no repo"},
		{"build", Buildf("make failed"), "build error: make failed"},
		{"install", Installf("nothing to install"), "install error: nothing to install"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Error() != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, tc.err.Error())
			}
		})
	}

	var ce *ConfigureError
	if errors.As(Initf("x"), &ce) {
		t.Error("InitError must not match ConfigureError")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := WrapInit(fs.ErrNotExist, "clone %s", "/tmp/x")

	var ie *InitError
	if !errors.As(err, &ie) {
		t.Fatalf("Expected InitError, got %T", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("Expected wrapped cause to be reachable with errors.Is")
	}
	if !strings.Contains(err.Error(), "/tmp/x") {
		t.Errorf("Expected message to name the path, got %q", err.Error())
	}
}
