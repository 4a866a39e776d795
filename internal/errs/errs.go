// Package errs holds the failure taxonomy shared by every stage of a run.
//
// All four kinds are fatal to the current run. The core never retries and
// never recovers locally; the CLI maps each kind to an exit code.
package errs

import "fmt"

// ConfigureError reports that environment, platform or architecture
// resolution cannot proceed (unknown host/platform/arch, missing variable,
// missing tool file).
type ConfigureError struct {
	Msg string
	Err error
}

func (e *ConfigureError) Error() string { return format("configure", e.Msg, e.Err) }
func (e *ConfigureError) Unwrap() error { return e.Err }

// InitError reports failed source acquisition, failed patch application, or
// a violated lifecycle precondition.
type InitError struct {
	Msg string
	Err error
}

func (e *InitError) Error() string { return format("init", e.Msg, e.Err) }
func (e *InitError) Unwrap() error { return e.Err }

// BuildError reports that a delegated external build or copy returned a
// non-zero status.
type BuildError struct {
	Msg string
	Err error
}

func (e *BuildError) Error() string { return format("build", e.Msg, e.Err) }
func (e *BuildError) Unwrap() error { return e.Err }

// InstallError reports that artifacts were requested but none exist, or that
// installing them failed.
type InstallError struct {
	Msg string
	Err error
}

func (e *InstallError) Error() string { return format("install", e.Msg, e.Err) }
func (e *InstallError) Unwrap() error { return e.Err }

func Configuref(format string, a ...any) error {
	return &ConfigureError{Msg: fmt.Sprintf(format, a...)}
}

func Initf(format string, a ...any) error {
	return &InitError{Msg: fmt.Sprintf(format, a...)}
}

func Buildf(format string, a ...any) error {
	return &BuildError{Msg: fmt.Sprintf(format, a...)}
}

func Installf(format string, a ...any) error {
	return &InstallError{Msg: fmt.Sprintf(format, a...)}
}

// WrapInit attaches a cause to an InitError.
func WrapInit(err error, format string, a ...any) error {
	return &InitError{Msg: fmt.Sprintf(format, a...), Err: err}
}

// WrapBuild attaches a cause to a BuildError.
func WrapBuild(err error, format string, a ...any) error {
	return &BuildError{Msg: fmt.Sprintf(format, a...), Err: err}
}

// WrapInstall attaches a cause to an InstallError.
func WrapInstall(err error, format string, a ...any) error {
	return &InstallError{Msg: fmt.Sprintf(format, a...), Err: err}
}

// WrapConfigure attaches a cause to a ConfigureError.
func WrapConfigure(err error, format string, a ...any) error {
	return &ConfigureError{Msg: fmt.Sprintf(format, a...), Err: err}
}

func format(kind, msg string, cause error) string {
	if cause == nil {
		return kind + " error: " + msg
	}
	return fmt.Sprintf("%s error: %s: %v", kind, msg, cause)
}
