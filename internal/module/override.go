package module

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Override replaces parts of a module's built-in Config. Empty fields keep
// the built-in value.
type Override struct {
	RepoURL       string `yaml:"repo"`
	Commit        string `yaml:"commit"`
	SaveDir       string `yaml:"save_dir"`
	PatchDir      string `yaml:"patch_dir"`
	HasSubmodules *bool  `yaml:"submodules"`
}

// LoadOverrides reads a YAML document keyed by library name:
//
//	ffmpeg:
//	  repo: https://git.example.com/ffmpeg.git
//	  commit: n7.1.1
func LoadOverrides(path string) (map[string]Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]Override{}
	if err := yaml.UnmarshalStrict(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return out, nil
}

// Apply returns c with o's non-empty fields applied.
func (c Config) Apply(o *Override) Config {
	if o == nil {
		return c
	}
	if o.RepoURL != "" {
		c.RepoURL = o.RepoURL
	}
	if o.Commit != "" {
		c.Commit = o.Commit
	}
	if o.SaveDir != "" {
		c.SaveDir = o.SaveDir
	}
	if o.PatchDir != "" {
		c.PatchDir = o.PatchDir
	}
	if o.HasSubmodules != nil {
		c.HasSubmodules = *o.HasSubmodules
	}
	return c
}
