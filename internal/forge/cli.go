// Package forge is the nativeforge command line: it reads configuration,
// resolves a toolchain per target and drives a module through the requested
// action.
package forge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/pflag"

	"nativeforge/internal/artifact"
	"nativeforge/internal/errs"
	"nativeforge/internal/module"
	"nativeforge/internal/module/ffmpeg"
	"nativeforge/internal/repo"
	"nativeforge/internal/runner"
	"nativeforge/internal/toolchain"
	"nativeforge/internal/workspace"
)

// allArchs selects every architecture of the platform.
const allArchs = "all"

// Exit codes, one per failure kind.
const (
	exitOK        = 0
	exitFailure   = 1
	exitConfigure = 2
	exitInit      = 3
	exitBuild     = 4
	exitInstall   = 5
	exitInterrupt = 130
)

var actionVerbs = map[workspace.Action]string{
	workspace.ActionInit:    "Initializing",
	workspace.ActionBuild:   "Building",
	workspace.ActionInstall: "Installing",
}

// cliOptions are the parsed command line selectors.
type cliOptions struct {
	platform   string
	arch       string
	workspace  string
	prefix     string
	library    string
	configPath string
	action     workspace.Action
	jobs       int
	force      bool
	publish    bool
	noStrip    bool
	verbose    bool
	debug      bool
	version    bool
	inspect    string

	// changed records flags given explicitly, which win over settings.
	changed map[string]bool
}

func newFlagSet(o *cliOptions, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("nativeforge", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&o.platform, "platform", "p", string(workspace.PlatformAndroid), "target platform")
	fs.StringVarP(&o.arch, "arch", "a", "arm64", "target architecture, or \"all\"")
	fs.StringVarP(&o.workspace, "workspace", "w", "build", "workspace directory")
	fs.StringVar(&o.prefix, "prefix", "", "install prefix (default <workspace>/install/<platform>/<arch>)")
	fs.StringVarP(&o.library, "library", "l", string(module.LibraryFFmpeg), "library to build")
	fs.StringVarP(&o.configPath, "config", "c", "", "config file (default "+ConfigFile+")")
	fs.IntVarP(&o.jobs, "jobs", "j", 0, "parallel make jobs")
	fs.Bool("init", false, "initialize the library sources")
	fs.Bool("build", false, "build the library")
	fs.Bool("install", false, "install the prebuilt library")
	fs.BoolVarP(&o.force, "force", "f", false, "redo prebuild and configure even when already done")
	fs.BoolVar(&o.publish, "publish", false, "upload built artifacts to the remote store")
	fs.BoolVar(&o.noStrip, "no-strip", false, "keep symbols in shared libraries")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "show build tool output")
	fs.BoolVarP(&o.debug, "debug", "d", false, "debug logging")
	fs.BoolVar(&o.version, "version", false, "print version information")
	fs.StringVar(&o.inspect, "inspect", "", "print the manifest of a prebuilt archive")
	return fs
}

// parseFlags parses args, excluding the program name. Exactly one action
// flag must be given.
func parseFlags(args []string, out io.Writer) (*cliOptions, error) {
	o := &cliOptions{changed: map[string]bool{}}
	fs := newFlagSet(o, out)
	if err := fs.Parse(args); err != nil {
		return nil, errs.WrapConfigure(err, "invalid arguments")
	}
	if fs.NArg() > 0 {
		return nil, errs.Configuref("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	fs.Visit(func(f *pflag.Flag) { o.changed[f.Name] = true })
	if o.version || o.inspect != "" {
		return o, nil
	}

	var actions []workspace.Action
	for _, a := range workspace.Actions {
		if o.changed[string(a)] {
			actions = append(actions, a)
		}
	}
	if len(actions) != 1 {
		return nil, errs.Configuref("exactly one of --init, --build or --install is required")
	}
	o.action = actions[0]
	return o, nil
}

// apply layers the settings under the explicitly given flags.
func (o *cliOptions) apply(s *Settings) {
	if !o.changed["workspace"] {
		o.workspace = s.Workspace
	}
	if !o.changed["prefix"] && s.Prefix != "" {
		o.prefix = s.Prefix
	}
	if !o.changed["jobs"] {
		o.jobs = s.Jobs
	}
	if o.changed["debug"] {
		s.Debug = o.debug
		s.S3.Debug = o.debug
	}
	if o.noStrip {
		s.Strip = false
	}
}

// targets expands the arch selector.
func (o *cliOptions) targets() ([]string, error) {
	if o.arch != allArchs {
		return []string{o.arch}, nil
	}
	if o.platform != string(workspace.PlatformAndroid) {
		return nil, errs.Configuref("--arch all is not supported for platform %s", o.platform)
	}
	return toolchain.AndroidArchs(), nil
}

func newRegistry() (*module.Registry, error) {
	return module.NewRegistry(map[module.Library]module.Factory{
		module.LibraryFFmpeg: ffmpeg.New,
	})
}

// Main is the nativeforge entrypoint called from the root main package.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			colArrow.Print("\n-> ")
			color.Danger.Printf("Received %v. Cancelling build gracefully\n", sig)
			cancel()
			select {
			case <-sigs:
				colArrow.Print("\n-> ")
				color.Danger.Println("Second interrupt received. Forcing immediate exit.")
				os.Exit(exitInterrupt)
			case <-time.After(10 * time.Second):
				colArrow.Print("\n-> ")
				color.Danger.Println("Graceful shutdown timeout. Exiting.")
				os.Exit(exitInterrupt)
			}
		case <-ctx.Done():
		}
	}()

	code := run(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

// run executes one invocation and returns the process exit code.
func run(ctx context.Context, args []string) int {
	o, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return report(err)
	}
	if o.version {
		colSuccess.Printf("nativeforge %s (built %s)\n", version, buildDate)
		return exitOK
	}
	if o.inspect != "" {
		if err := inspect(os.Stdout, o.inspect); err != nil {
			return report(err)
		}
		return exitOK
	}

	configPath := ConfigFile
	if p := os.Getenv("NF_CONFIG"); p != "" {
		configPath = p
	}
	if o.configPath != "" {
		configPath = o.configPath
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return report(err)
	}
	mergeEnvOverrides(cfg, os.Environ())
	settings, err := cfg.Settings()
	if err != nil {
		return report(err)
	}
	o.apply(settings)
	Debug = settings.Debug
	Verbose = o.verbose
	debugf("=> Using config %s\n", configPath)

	if err := runTargets(ctx, o, settings); err != nil {
		return report(err)
	}
	return exitOK
}

// report prints err and maps it to an exit code.
func report(err error) int {
	code := exitCode(err)
	colArrow.Print("-> ")
	colError.Printf("Error: %v\n", err)
	if code == exitInterrupt {
		colWarn.Println("Build interrupted")
	}
	return code
}

func exitCode(err error) int {
	var (
		ce *errs.ConfigureError
		ie *errs.InitError
		be *errs.BuildError
		se *errs.InstallError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitInterrupt
	case errors.As(err, &ce):
		return exitConfigure
	case errors.As(err, &ie):
		return exitInit
	case errors.As(err, &be):
		return exitBuild
	case errors.As(err, &se):
		return exitInstall
	}
	return exitFailure
}

// runTargets runs the action for every selected architecture, in order,
// stopping at the first failure.
func runTargets(ctx context.Context, o *cliOptions, s *Settings) error {
	lib, err := module.ParseLibrary(o.library)
	if err != nil {
		return err
	}
	archs, err := o.targets()
	if err != nil {
		return err
	}
	reg, err := newRegistry()
	if err != nil {
		return err
	}

	var override *module.Override
	if s.ModulesFile != "" {
		overrides, err := module.LoadOverrides(s.ModulesFile)
		if err != nil {
			return errs.WrapConfigure(err, "failed to load module overrides")
		}
		if ov, ok := overrides[string(lib)]; ok {
			override = &ov
		}
	}

	var store artifact.Store
	if s.S3.Bucket != "" {
		st, err := artifact.NewS3Store(ctx, s.S3)
		if err != nil {
			return errs.WrapConfigure(err, "failed to set up remote store")
		}
		store = st
	} else if o.publish {
		return errs.Configuref("--publish needs NF_S3_BUCKET")
	}

	for _, arch := range archs {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := target{
			opts:     o,
			settings: s,
			lib:      lib,
			arch:     arch,
			registry: reg,
			override: override,
			store:    store,
		}
		if err := t.run(ctx); err != nil {
			return err
		}
	}
	return nil
}

// target is one (library, platform, arch) run.
type target struct {
	opts     *cliOptions
	settings *Settings
	lib      module.Library
	arch     string
	registry *module.Registry
	override *module.Override
	store    artifact.Store
}

func (t *target) run(ctx context.Context) error {
	o, s := t.opts, t.settings
	prefix := o.prefix
	if o.arch == allArchs && prefix != "" {
		prefix = filepath.Join(prefix, t.arch)
	}
	cfg, err := workspace.New(workspace.Options{
		Platform:      o.platform,
		Arch:          t.arch,
		Workspace:     o.workspace,
		InstallPrefix: prefix,
		Action:        string(o.action),
		PatchRoot:     s.PatchRoot,
	})
	if err != nil {
		return err
	}

	var (
		tc   *toolchain.Vars
		host toolchain.HostVars
	)
	if cfg.Action() != workspace.ActionInstall {
		r := toolchain.NewResolver(consoleLogger(s.Debug))
		if s.NDKEnv != "" {
			r.NDKEnv = s.NDKEnv
		}
		if tc, host, err = r.Resolve(cfg); err != nil {
			return err
		}
		debugf("=> Toolchain %s on host %s\n", tc.Target().Triple, host.HostTag)
	} else if cfg.Platform() == workspace.PlatformAndroid && !slices.Contains(toolchain.AndroidArchs(), cfg.Arch()) {
		return errs.Configuref("unknown arch %s for platform %s", cfg.Arch(), cfg.Platform())
	}

	if err := cfg.Prepare(); err != nil {
		return err
	}

	logPath := filepath.Join(cfg.LogsDir(), artifact.Name(string(t.lib), string(cfg.Platform()), cfg.Arch())+".log")
	rl, err := openRunLog(logPath, s.Debug)
	if err != nil {
		return errs.WrapConfigure(err, "failed to open log %s", logPath)
	}
	defer rl.Close()
	logger := rl.Logger.With().Str("target", cfg.Tag()).Logger()

	status(colInfo, "%s %s for %s", actionVerbs[o.action], t.lib, cfg.Tag())
	logger.Info().
		Str("action", string(o.action)).
		Str("workspace", cfg.Workspace()).
		Str("prefix", cfg.InstallPrefix()).
		Msg("starting")

	ex := runner.NewExecutor(ctx, logger)
	ex.Timeout = s.CmdTimeout
	ex.Sink = rl.Sink(o.verbose)

	m, err := t.registry.New(t.lib, module.Deps{
		Cfg:       cfg,
		Toolchain: tc,
		Host:      host,
		Exec:      ex,
		VCS:       repo.NewGit(ex),
		Store:     t.store,
		Override:  t.override,
		Options: module.Options{
			Jobs:                o.jobs,
			Force:               o.force,
			Strip:               s.Strip,
			Publish:             o.publish,
			ExtraCFlags:         s.ExtraCFlags,
			ExtraLDFlags:        s.ExtraLDFlags,
			ExtraConfigureFlags: s.ExtraConfigureFlags,
			PkgConfig:           s.PkgConfig,
			LogPath:             rl.Path,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	d := module.NewDriver(m, tc, host, logger)
	switch cfg.Action() {
	case workspace.ActionInit:
		err = d.Init()
	case workspace.ActionBuild:
		err = d.BuildAll()
	case workspace.ActionInstall:
		err = d.Install()
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s of %s interrupted: %w", o.action, cfg.Tag(), ctx.Err())
		}
		colArrow.Print("-> ")
		colError.Printf("%s failed, see %s\n", cfg.Tag(), rl.Path)
		return err
	}
	status(colSuccess, "%s %s done in %s", cfg.Tag(), d.Stage(), time.Since(start).Round(time.Second))
	if cfg.Action() != workspace.ActionInit {
		colNote.Printf("   prefix: %s\n", cfg.InstallPrefix())
	}
	return nil
}
