package module

import (
	"time"

	"github.com/rs/zerolog"

	"nativeforge/internal/errs"
	"nativeforge/internal/toolchain"
)

// Stage is a position in the build pipeline.
type Stage int

const (
	Uninitialized Stage = iota
	Initialized
	Prebuilt
	Built
	Postbuilt
	Installed
)

func (s Stage) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Prebuilt:
		return "prebuilt"
	case Built:
		return "built"
	case Postbuilt:
		return "postbuilt"
	case Installed:
		return "installed"
	}
	return "unknown"
}

// Driver walks one Module through its stages and rejects any transition
// out of order with an InitError.
type Driver struct {
	m      Module
	tc     *toolchain.Vars
	host   toolchain.HostVars
	stage  Stage
	logger zerolog.Logger
}

func NewDriver(m Module, tc *toolchain.Vars, host toolchain.HostVars, logger zerolog.Logger) *Driver {
	return &Driver{
		m:      m,
		tc:     tc,
		host:   host,
		logger: logger.With().Str("module", m.Config().Name).Logger(),
	}
}

func (d *Driver) Stage() Stage { return d.stage }

func (d *Driver) transition(op string, from []Stage, to Stage, fn func() error) error {
	allowed := false
	for _, s := range from {
		if d.stage == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return errs.Initf("cannot %s %s: module is %s", op, d.m.Config().Name, d.stage)
	}

	start := time.Now()
	d.logger.Info().Str("stage", op).Msg("starting")
	if err := fn(); err != nil {
		d.logger.Error().Err(err).Str("stage", op).Msg("failed")
		return err
	}
	d.stage = to
	d.logger.Info().Str("stage", op).Dur("took", time.Since(start)).Msg("done")
	return nil
}

// Init acquires the source. Calling it again once initialized is a logged
// no-op.
func (d *Driver) Init() error {
	if d.stage != Uninitialized {
		d.logger.Info().Str("stage", d.stage.String()).Msg("already initialized, skipping init")
		return nil
	}
	return d.transition("init", []Stage{Uninitialized}, Initialized, d.m.DoInit)
}

func (d *Driver) Prebuild() error {
	return d.transition("prebuild", []Stage{Initialized}, Prebuilt, d.m.Prebuild)
}

func (d *Driver) Build() error {
	return d.transition("build", []Stage{Prebuilt}, Built, func() error {
		if d.tc == nil {
			return errs.Initf("cannot build %s without a resolved toolchain", d.m.Config().Name)
		}
		return d.m.Build(d.tc, d.host)
	})
}

func (d *Driver) Postbuild() error {
	return d.transition("postbuild", []Stage{Built}, Postbuilt, d.m.Postbuild)
}

// Install installs prebuilt artifacts: either the ones just produced, or,
// on a fresh module, ones built earlier. From Built it runs Postbuild first
// so the archive installed is the one this build packed.
func (d *Driver) Install() error {
	if d.Stage() == Built {
		if err := d.Postbuild(); err != nil {
			return err
		}
	}
	return d.transition("install", []Stage{Uninitialized, Postbuilt}, Installed, d.m.DoInstallPrebuilt)
}

// BuildAll runs every stage from init through install.
func (d *Driver) BuildAll() error {
	for _, step := range []func() error{d.Init, d.Prebuild, d.Build, d.Postbuild, d.Install} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
