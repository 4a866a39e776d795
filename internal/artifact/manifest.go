package artifact

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"
	"lukechampine.com/blake3"
)

// ManifestName is the manifest file written at the root of a staged tree.
const ManifestName = ".nativeforge-manifest.yaml"

// Manifest records every regular file of a prebuilt with its blake3 digest.
type Manifest struct {
	Library  string  `yaml:"library"`
	Platform string  `yaml:"platform"`
	Arch     string  `yaml:"arch"`
	Files    []Entry `yaml:"files"`
}

type Entry struct {
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	Blake3 string `yaml:"blake3"`
}

// HashFile returns the hex blake3-256 digest of path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// BuildManifest hashes every regular file under root. Paths are slash
// separated and sorted.
func BuildManifest(root, library, platform, arch string) (*Manifest, error) {
	m := &Manifest{Library: library, Platform: platform, Arch: arch}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == ManifestName {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		sum, err := HashFile(path)
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", path, err)
		}
		m.Files = append(m.Files, Entry{Path: filepath.ToSlash(rel), Size: info.Size(), Blake3: sum})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
	return m, nil
}

// Write stores m as <root>/ManifestName.
func (m *Manifest) Write(root string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(root, ManifestName), data, 0o644)
}

// ReadManifest loads <root>/ManifestName.
func ReadManifest(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

// Verify checks that every listed file under root has the recorded digest.
func (m *Manifest) Verify(root string) error {
	var bad []string
	for _, e := range m.Files {
		sum, err := HashFile(filepath.Join(root, filepath.FromSlash(e.Path)))
		if err != nil || sum != e.Blake3 {
			bad = append(bad, e.Path)
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("checksum mismatch: %s", strings.Join(bad, ", "))
	}
	return nil
}

// ArchiveManifest reads the manifest straight out of a packed archive
// without extracting it.
func ArchiveManifest(archive string) (*Manifest, error) {
	tr, done, err := openTar(archive)
	if err != nil {
		return nil, err
	}
	defer done()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("no %s in %s", ManifestName, archive)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", archive, err)
		}
		if path.Clean(hdr.Name) != ManifestName {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest from %s: %w", archive, err)
		}
		var m Manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode manifest: %w", err)
		}
		return &m, nil
	}
}
