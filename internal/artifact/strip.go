package artifact

import (
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/rs/zerolog"

	"nativeforge/internal/errs"
	"nativeforge/internal/runner"
)

// SharedObjects lists the regular ELF shared libraries under root.
func SharedObjects(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".so") && !strings.Contains(name, ".so.") {
			return nil
		}
		if isELF(path) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

func isELF(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 262)
	n, _ := io.ReadFull(f, head)
	return filetype.Is(head[:n], "elf")
}

// StripShared runs the toolchain strip over every shared library under root,
// one file at a time. It returns how many files were stripped.
func StripShared(e *runner.Executor, stripTool, root string, logger zerolog.Logger) (int, error) {
	libs, err := SharedObjects(root)
	if err != nil {
		return 0, errs.WrapBuild(err, "failed to scan %s for shared libraries", root)
	}
	if len(libs) == 0 {
		logger.Debug().Str("root", root).Msg("no shared libraries to strip")
		return 0, nil
	}

	for _, lib := range libs {
		cmd := exec.Command(stripTool, "--strip-unneeded", lib)
		if err := e.Run(cmd); err != nil {
			return 0, errs.WrapBuild(err, "failed to strip %s", lib)
		}
		logger.Debug().Str("file", lib).Msg("stripped")
	}
	return len(libs), nil
}
