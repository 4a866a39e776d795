package forge

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"nativeforge/internal/artifact"
	"nativeforge/internal/errs"
)

const envPrefix = "NF_"

// Config holds raw key=value settings from the config file and the
// environment.
type Config struct {
	Values map[string]string
}

// Settings are the typed values a run is driven by.
type Settings struct {
	Workspace           string
	Prefix              string
	PatchRoot           string
	NDKEnv              string
	Jobs                int
	CmdTimeout          time.Duration
	Debug               bool
	Strip               bool
	ExtraCFlags         string
	ExtraLDFlags        string
	ExtraConfigureFlags []string
	PkgConfig           string
	ModulesFile         string
	S3                  artifact.S3Options
}

// Load /etc/nativeforge.conf. A missing file yields an empty config.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, errs.WrapConfigure(err, "failed to read %s", path)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		val = strings.Trim(val, `"'`)
		cfg.Values[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.WrapConfigure(err, "failed to read %s", path)
	}
	return cfg, nil
}

// Merge NF_* env overrides
func mergeEnvOverrides(cfg *Config, environ []string) {
	for _, env := range environ {
		if !strings.HasPrefix(env, envPrefix) {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			cfg.Values[parts[0]] = parts[1]
		}
	}
}

func (c *Config) boolValue(key string, def bool) bool {
	switch c.Values[key] {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return def
}

// Settings converts the raw values, applying defaults.
func (c *Config) Settings() (*Settings, error) {
	s := &Settings{
		Workspace:    c.Values["NF_WORKSPACE"],
		Prefix:       c.Values["NF_PREFIX"],
		PatchRoot:    c.Values["NF_PATCH_ROOT"],
		NDKEnv:       c.Values["NF_NDK_ENV"],
		Jobs:         8,
		CmdTimeout:   2 * time.Hour,
		Debug:        c.boolValue("NF_DEBUG", false),
		Strip:        c.boolValue("NF_STRIP", true),
		ExtraCFlags:  c.Values["NF_EXTRA_CFLAGS"],
		ExtraLDFlags: c.Values["NF_EXTRA_LDFLAGS"],
		PkgConfig:    c.Values["NF_PKG_CONFIG"],
		ModulesFile:  c.Values["NF_MODULES_FILE"],
		S3: artifact.S3Options{
			Bucket:          c.Values["NF_S3_BUCKET"],
			Endpoint:        c.Values["NF_S3_ENDPOINT"],
			Region:          c.Values["NF_S3_REGION"],
			AccessKeyID:     c.Values["NF_S3_ACCESS_KEY_ID"],
			SecretAccessKey: c.Values["NF_S3_SECRET_ACCESS_KEY"],
			Prefix:          c.Values["NF_S3_PREFIX"],
		},
	}
	if s.Workspace == "" {
		s.Workspace = "build"
	}
	s.S3.Debug = s.Debug

	if v := c.Values["NF_JOBS"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, errs.Configuref("NF_JOBS must be a positive integer, got %q", v)
		}
		s.Jobs = n
	}
	if v := c.Values["NF_CMD_TIMEOUT"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, errs.Configuref("NF_CMD_TIMEOUT must be a duration such as 90m, got %q", v)
		}
		s.CmdTimeout = d
	}
	if v := c.Values["NF_EXTRA_CONFIGURE_FLAGS"]; v != "" {
		flags, err := shellquote.Split(v)
		if err != nil {
			return nil, errs.WrapConfigure(err, "failed to split NF_EXTRA_CONFIGURE_FLAGS")
		}
		s.ExtraConfigureFlags = flags
	}
	return s, nil
}
