package forge

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// runLog is the per-target log: a console writer on stderr and a plain
// file under the workspace logs directory.
type runLog struct {
	Logger zerolog.Logger
	Path   string
	file   *os.File
}

func openRunLog(path string, debug bool) (*runLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(newConsole(), f)).
		Level(logLevel(debug)).
		With().Timestamp().Logger()

	return &runLog{Logger: logger, Path: path, file: f}, nil
}

// consoleLogger logs to stderr only, for steps that run before the
// workspace exists.
func consoleLogger(debug bool) zerolog.Logger {
	return zerolog.New(newConsole()).Level(logLevel(debug)).With().Timestamp().Logger()
}

func newConsole() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

func logLevel(debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// Sink receives build tool output: the log file, plus stderr when verbose.
func (l *runLog) Sink(verbose bool) io.Writer {
	if verbose {
		return io.MultiWriter(l.file, os.Stderr)
	}
	return l.file
}

func (l *runLog) Close() error {
	return l.file.Close()
}
