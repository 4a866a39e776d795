package runner

import (
	"fmt"
	"os"
)

// InDir runs fn with dir as the process working directory and restores the
// previous one on every exit path, including a failing fn.
func InDir(dir string, fn func() error) (err error) {
	prev, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to read working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("failed to enter %s: %w", dir, err)
	}
	defer func() {
		if cerr := os.Chdir(prev); cerr != nil && err == nil {
			err = fmt.Errorf("failed to restore working directory %s: %w", prev, cerr)
		}
	}()
	return fn()
}
