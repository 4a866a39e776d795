package forge

import (
	"fmt"
	"io"

	"github.com/gookit/color"

	"nativeforge/internal/artifact"
	"nativeforge/internal/errs"
)

// inspect prints the manifest packed in a prebuilt archive.
func inspect(w io.Writer, archive string) error {
	m, err := artifact.ArchiveManifest(archive)
	if err != nil {
		return errs.WrapInstall(err, "cannot inspect %s", archive)
	}

	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	fmt.Fprintf(w, "%s %s-%s, %d files, %s\n",
		color.Bold.Sprint(m.Library), m.Platform, m.Arch, len(m.Files), humanSize(total))
	for _, f := range m.Files {
		digest := f.Blake3
		if len(digest) > 12 {
			digest = digest[:12]
		}
		fmt.Fprintf(w, "  %s  %8s  %s\n", digest, humanSize(f.Size), f.Path)
	}
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
