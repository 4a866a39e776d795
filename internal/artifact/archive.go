// Package artifact packs, verifies, publishes and installs the prebuilt
// output of a module build.
package artifact

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// Extensions lists the archive suffixes looked up for a prebuilt, in order of
// preference. Pack always writes the first.
var Extensions = []string{".tar.zst", ".tar.xz", ".tar.gz"}

// Name is the archive base name for a library build, without extension.
func Name(library, platform, arch string) string {
	return fmt.Sprintf("%s-%s-%s", library, platform, arch)
}

// FindArchive returns the first existing <dir>/<base><ext>.
func FindArchive(dir, base string) (string, bool) {
	for _, ext := range Extensions {
		p := filepath.Join(dir, base+ext)
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// Sniff reports the compression of an archive from its leading bytes:
// "zst", "xz", "gz" or "tar".
func Sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	head = head[:n]

	kind, err := filetype.Archive(head)
	if err != nil || kind == filetype.Unknown {
		return "", fmt.Errorf("unrecognized archive %s", path)
	}
	switch kind.Extension {
	case "zst", "xz", "gz", "tar":
		return kind.Extension, nil
	}
	return "", fmt.Errorf("unsupported archive type %s (%s) for %s", kind.Extension, kind.MIME.Value, path)
}

// Pack writes the contents of srcDir into a zstd-compressed tarball at dest.
// Entries are root-owned and relative to srcDir.
func Pack(srcDir, dest string) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create tarball file: %w", err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	zw, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "root", "root"
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to add files to tarball: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish zstd stream: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

// openTar opens archive as a tar stream, detecting the compression from the
// file content, not its name. done releases the file and decoder.
func openTar(archive string) (tr *tar.Reader, done func(), err error) {
	kind, err := Sniff(archive)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(archive)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open archive %s: %w", archive, err)
	}

	var r io.Reader = f
	done = func() { f.Close() }
	switch kind {
	case "zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to create zstd reader for %s: %w", archive, err)
		}
		r = zr
		done = func() { zr.Close(); f.Close() }
	case "xz":
		xr, err := xz.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to create xz reader for %s: %w", archive, err)
		}
		r = xr
	case "gz":
		gz, err := pgzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("failed to create gzip reader for %s: %w", archive, err)
		}
		r = gz
		done = func() { gz.Close(); f.Close() }
	}
	return tar.NewReader(r), done, nil
}

// Unpack extracts archive into dest.
func Unpack(archive, dest string) error {
	tr, done, err := openTar(archive)
	if err != nil {
		return err
	}
	defer done()
	return extract(tr, archive, dest)
}

func extract(tr *tar.Reader, archive, dest string) error {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", archive, err)
		}

		name := strings.TrimPrefix(filepath.Clean(filepath.FromSlash(hdr.Name)), string(filepath.Separator))
		if name == "." {
			continue
		}
		target := filepath.Join(dest, name)
		if !within(dest, target) {
			return fmt.Errorf("illegal file path in archive: %s", hdr.Name)
		}
		if err := noSymlinkParents(dest, target); err != nil {
			return fmt.Errorf("illegal file path in archive: %s: %w", hdr.Name, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", target, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(hdr.Mode).Perm()|0o700); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if fi, err := os.Lstat(target); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
				if err := os.Remove(target); err != nil {
					return fmt.Errorf("failed to replace symlink %s: %w", target, err)
				}
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode).Perm())
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", target, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("failed to write file %s: %w", target, err)
			}
			if err := out.Close(); err != nil {
				return err
			}
			if err := os.Chtimes(target, hdr.ModTime, hdr.ModTime); err != nil {
				return fmt.Errorf("failed to set times for file %s: %w", target, err)
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) || !within(dest, filepath.Join(filepath.Dir(target), hdr.Linkname)) {
				return fmt.Errorf("illegal symlink in archive: %s -> %s", hdr.Name, hdr.Linkname)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", target, hdr.Linkname, err)
			}
		case tar.TypeXHeader, tar.TypeXGlobalHeader:
		default:
			return fmt.Errorf("unsupported tar entry type %c: %s", hdr.Typeflag, hdr.Name)
		}
	}
}

// within reports whether path lies strictly below dir.
func within(dir, path string) bool {
	return strings.HasPrefix(filepath.Clean(path), dir+string(filepath.Separator))
}

// noSymlinkParents fails when a directory between dest and target is a
// symlink, so entries cannot be written through a link.
func noSymlinkParents(dest, target string) error {
	rel, err := filepath.Rel(dest, filepath.Dir(target))
	if err != nil || rel == "." {
		return err
	}
	cur := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%s is a symlink", cur)
		}
	}
	return nil
}
