package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// CompressLog writes an xz copy of src to dst.
func CompressLog(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	xw, err := xz.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(xw, in); err != nil {
		xw.Close()
		out.Close()
		return fmt.Errorf("failed to compress %s: %w", src, err)
	}
	if err := xw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
