//go:build linux || darwin

package repo

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockCheckout takes an exclusive lock on <path>.lock, blocking while another
// process initializes the same checkout.
func lockCheckout(path string) (func(), error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", path, err)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
