package module

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"nativeforge/internal/artifact"
	"nativeforge/internal/errs"
	"nativeforge/internal/repo"
)

// Base carries what every module shares: its configuration, the lazily
// created sample checkout and the packaging steps. Concrete modules embed it.
type Base struct {
	Deps
	conf   Config
	sample *repo.Repo
	log    zerolog.Logger
}

// NewBase resolves conf against the override file entry and the repo
// environment variable, in that order.
func NewBase(d Deps, conf Config) *Base {
	conf = conf.Apply(d.Override)
	lookup := d.Options.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if conf.RepoEnv != "" {
		if url, ok := lookup(conf.RepoEnv); ok && url != "" {
			conf.RepoURL = url
		}
	}
	if d.Options.Jobs <= 0 {
		d.Options.Jobs = 8
	}
	return &Base{
		Deps: d,
		conf: conf,
		log:  d.Logger.With().Str("module", conf.Name).Str("target", d.Cfg.Tag()).Logger(),
	}
}

func (b *Base) Config() Config { return b.conf }

func (b *Base) Log() *zerolog.Logger { return &b.log }

func (b *Base) ctx() context.Context {
	if b.Exec != nil && b.Exec.Context != nil {
		return b.Exec.Context
	}
	return context.Background()
}

// Sample returns the shared checkout handle, creating it on first use.
func (b *Base) Sample() (*repo.Repo, error) {
	if b.sample != nil {
		return b.sample, nil
	}
	if b.conf.SaveDir == "" {
		return nil, errs.Initf("module %s has no save directory", b.conf.Name)
	}
	r, err := repo.New(repo.Options{
		URL:        b.conf.RepoURL,
		Path:       b.Cfg.SampleDir(b.conf.SaveDir),
		Submodules: b.conf.HasSubmodules,
		VCS:        b.VCS,
		Exec:       b.Exec,
		Logger:     b.log,
	})
	if err != nil {
		return nil, err
	}
	b.sample = r
	return r, nil
}

// InitSampleRepo clones or opens the shared checkout.
func (b *Base) InitSampleRepo() error {
	r, err := b.Sample()
	if err != nil {
		return err
	}
	return r.Init()
}

// CopySampleTo copies the initialized sample into dir.
func (b *Base) CopySampleTo(dir string) (*repo.Repo, error) {
	if b.sample == nil || !b.sample.Initialized() {
		return nil, errs.Initf("no initialized source for %s, run init first", b.conf.Name)
	}
	return b.sample.CopyTo(dir)
}

// CopySampleToArch copies the sample into <parent>/<arch>.
func (b *Base) CopySampleToArch(parent string) (*repo.Repo, error) {
	return b.CopySampleTo(filepath.Join(parent, b.Cfg.Arch()))
}

// PatchDir is the module's directory under the workspace patches link.
func (b *Base) PatchDir() string {
	return filepath.Join(b.Cfg.PatchesDir(), b.conf.PatchDir)
}

// ArchiveBase is the prebuilt archive name without extension.
func (b *Base) ArchiveBase() string {
	return artifact.Name(b.conf.Name, string(b.Cfg.Platform()), b.Cfg.Arch())
}

// Package writes the manifest into root, packs it under the artifacts
// directory, archives the run log and publishes when asked to.
func (b *Base) Package(root string) (string, error) {
	m, err := artifact.BuildManifest(root, b.conf.Name, string(b.Cfg.Platform()), b.Cfg.Arch())
	if err != nil {
		return "", errs.WrapBuild(err, "failed to build manifest for %s", root)
	}
	if err := m.Write(root); err != nil {
		return "", errs.WrapBuild(err, "failed to write manifest into %s", root)
	}
	b.log.Info().Int("files", len(m.Files)).Msg("manifest written")

	archive := filepath.Join(b.Cfg.ArtifactsDir(), b.ArchiveBase()+artifact.Extensions[0])
	if err := artifact.Pack(root, archive); err != nil {
		return "", errs.WrapBuild(err, "failed to pack %s", archive)
	}
	b.log.Info().Str("archive", archive).Msg("prebuilt packed")

	if b.Options.LogPath != "" {
		dst := filepath.Join(b.Cfg.ArtifactsDir(), b.ArchiveBase()+".log.xz")
		if err := artifact.CompressLog(b.Options.LogPath, dst); err != nil {
			b.log.Warn().Err(err).Msg("failed to archive build log")
		}
	}

	if b.Options.Publish {
		if b.Store == nil {
			return "", errs.Buildf("publishing requested but no remote store is configured")
		}
		key := filepath.Base(archive)
		if err := b.Store.Publish(b.ctx(), key, archive); err != nil {
			return "", errs.WrapBuild(err, "failed to publish %s", key)
		}
		b.log.Info().Str("key", key).Msg("prebuilt published")
	}
	return archive, nil
}

// InstallPrebuilt installs the archive for the current target into the
// install prefix, fetching it from the remote store when it is not local.
func (b *Base) InstallPrebuilt() error {
	base := b.ArchiveBase()
	archive, ok := artifact.FindArchive(b.Cfg.ArtifactsDir(), base)
	if !ok && b.Store != nil {
		for _, ext := range artifact.Extensions {
			dest := filepath.Join(b.Cfg.ArtifactsDir(), base+ext)
			err := b.Store.Fetch(b.ctx(), base+ext, dest)
			if err == nil {
				archive, ok = dest, true
				b.log.Info().Str("key", base+ext).Msg("fetched prebuilt")
				break
			}
			if !errors.Is(err, artifact.ErrNotFound) {
				return errs.WrapInstall(err, "failed to fetch %s", base+ext)
			}
		}
	}
	if !ok {
		return errs.Installf("no prebuilt artifacts for %s", base)
	}

	if err := os.MkdirAll(b.Cfg.Workspace(), 0o755); err != nil {
		return errs.WrapInstall(err, "failed to create %s", b.Cfg.Workspace())
	}
	tmp, err := os.MkdirTemp(b.Cfg.Workspace(), ".install-*")
	if err != nil {
		return errs.WrapInstall(err, "failed to create staging directory")
	}
	defer os.RemoveAll(tmp)

	if err := artifact.Unpack(archive, tmp); err != nil {
		return errs.WrapInstall(err, "failed to unpack %s", archive)
	}
	m, err := artifact.ReadManifest(tmp)
	if err != nil {
		return errs.WrapInstall(err, "prebuilt %s has no readable manifest", archive)
	}
	if err := m.Verify(tmp); err != nil {
		return errs.WrapInstall(err, "prebuilt %s is corrupt", archive)
	}

	prefix := b.Cfg.InstallPrefix()
	if err := artifact.CopyTree(tmp, prefix, artifact.ManifestName); err != nil {
		return errs.WrapInstall(err, "failed to install into %s", prefix)
	}
	b.log.Info().Str("prefix", prefix).Int("files", len(m.Files)).Msg("prebuilt installed")
	return nil
}
