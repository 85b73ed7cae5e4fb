// Package rootlock serializes access to a spawn root directory.
// At most one burrow invocation may operate on a root at a time;
// ownership is denoted by a sentinel file next to the root directory.
package rootlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// program is the name component of the sentinel file.
const program = "burrow"

// ErrLocked is returned by Acquire when the root is already locked.
var ErrLocked = errors.New("root is locked by another instance")

// Lock is an advisory, filesystem-based lock on a root directory.
// The sentinel's existence is the entire lock state; its contents
// are never read.
type Lock struct {
	root     string
	sentinel string
}

// New creates a lock handle for the given root directory.
// The sentinel path is deterministic: <dir>/.<program>.<basename>.lock
func New(root string) *Lock {
	root = filepath.Clean(root)
	return &Lock{
		root:     root,
		sentinel: filepath.Join(filepath.Dir(root), "."+program+"."+filepath.Base(root)+".lock"),
	}
}

// Sentinel returns the path of the lock sentinel file.
func (l *Lock) Sentinel() string {
	return l.sentinel
}

// IsLocked reports whether the root currently has a live lock.
func (l *Lock) IsLocked() bool {
	_, err := os.Stat(l.sentinel)
	return err == nil
}

// Acquire takes the lock. Creation is atomic (O_EXCL), so two racing
// instances cannot both succeed; the loser gets ErrLocked.
func (l *Lock) Acquire() error {
	f, err := os.OpenFile(l.sentinel, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrLocked, l.root)
		}
		return fmt.Errorf("create lock sentinel: %w", err)
	}
	return f.Close()
}

// Release removes the sentinel. Releasing an unlocked root is not an
// error, so cleanup may call this unconditionally.
func (l *Lock) Release() error {
	if err := os.Remove(l.sentinel); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock sentinel: %w", err)
	}
	return nil
}
