package toolchain

import (
	"os"
	"strings"

	"nativeforge/internal/errs"
)

// ValidateToolset checks that every absolute path exists on disk. It is all
// or nothing: the returned ConfigureError names every missing path.
func ValidateToolset(paths ...string) error {
	var missing []string
	for _, p := range paths {
		if p == "" {
			missing = append(missing, "<empty path>")
			continue
		}
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}

	switch len(missing) {
	case 0:
		return nil
	case 1:
		return errs.Configuref("tool %s does not exist", missing[0])
	}
	return errs.Configuref("tools do not exist: %s", strings.Join(missing, ", "))
}
