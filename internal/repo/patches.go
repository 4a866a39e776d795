package repo

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"nativeforge/internal/errs"
)

// Patch is one parsed patch file.
type Patch struct {
	Path  string
	Title string
	Files []string // paths touched by the patch
}

// ListPatches returns the patches of dir in lexical file name order. A
// missing directory holds no patches. Hidden files and directories are
// ignored; any other file must parse as a patch.
func ListPatches(dir string) ([]Patch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errs.WrapInit(err, "failed to read patch directory %s", dir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errs.WrapInit(err, "invalid patch directory %s", dir)
	}

	var patches []Patch
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		p, err := parsePatch(filepath.Join(abs, e.Name()))
		if err != nil {
			return nil, err
		}
		patches = append(patches, p)
	}
	return patches, nil
}

func parsePatch(path string) (Patch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Patch{}, errs.WrapInit(err, "failed to open patch %s", path)
	}
	defer f.Close()

	files, preamble, err := gitdiff.Parse(f)
	if err != nil {
		return Patch{}, errs.WrapInit(err, "malformed patch %s", path)
	}
	if len(files) == 0 {
		return Patch{}, errs.Initf("%s contains no changes", path)
	}

	p := Patch{Path: path, Title: filepath.Base(path)}
	if hdr, err := gitdiff.ParsePatchHeader(preamble); err == nil && hdr.Title != "" {
		p.Title = hdr.Title
	}
	for _, file := range files {
		name := file.NewName
		if file.IsDelete {
			name = file.OldName
		}
		p.Files = append(p.Files, name)
	}
	return p, nil
}
