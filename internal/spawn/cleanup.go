package spawn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"burrow/internal/mounts"
	"burrow/internal/rootlock"
)

// teardown reverses everything a spawn set up: mounts under the root
// and the session directory, the session directory itself, and the
// root lock. Failures are downgraded to warnings so teardown always
// runs to completion, and a fresh context is used so cancellation of
// the spawn cannot cancel its own cleanup. Dry runs created nothing
// and tear down nothing.
func (s *Spawner) teardown(req *Request, res *BuildResult, lock *rootlock.Lock, runner *Runner) {
	if req.DryRun {
		return
	}
	ctx := context.Background()

	var dirs []string
	if req.Root != "" {
		if resolved, err := filepath.EvalSymlinks(req.Root); err == nil {
			dirs = append(dirs, resolved)
		} else {
			s.logger.Printf("warning: resolve root for cleanup: %v", err)
			dirs = append(dirs, req.Root)
		}
	}
	if res.RuntimeDir != "" {
		dirs = append(dirs, res.RuntimeDir)
	}
	s.unmountUnder(ctx, runner, dirs)

	if res.RuntimeDir != "" {
		if err := os.RemoveAll(res.RuntimeDir); err != nil {
			s.logger.Printf("warning: remove session directory: %v", err)
		}
	}
	if lock != nil {
		if err := lock.Release(); err != nil {
			s.logger.Printf("warning: %v", err)
		}
	}
	unix.Sync()
}

// unmountUnder detaches every live mount below the given directories,
// children strictly before parents.
func (s *Spawner) unmountUnder(ctx context.Context, runner *Runner, dirs []string) {
	entries, err := mounts.Live()
	if err != nil {
		s.logger.Printf("warning: read mount table: %v", err)
		return
	}
	for _, dir := range dirs {
		for _, target := range mounts.Under(entries, dir) {
			if err := s.unmount(ctx, runner, target); err != nil {
				s.logger.Printf("warning: unmount %s: %v", target, err)
			}
		}
	}
}

// unmount detaches one mount point, directly when the process is
// already privileged and through the runner's sudo path otherwise.
func (s *Spawner) unmount(ctx context.Context, runner *Runner, target string) error {
	if geteuid() == 0 {
		return mounts.Unmount(target)
	}
	return runner.RunPrivileged(ctx, "umount", target)
}

// Cleanup tears down the leftovers of an interrupted session for a
// root without spawning anything: stray mounts, abandoned session
// directories, and the root lock.
func (s *Spawner) Cleanup(ctx context.Context, root string) error {
	if root == "" {
		return fmt.Errorf("cleanup requires a root directory")
	}
	runner := NewRunner(false, false)

	dirs := []string{root}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		dirs[0] = resolved
	}

	stale := staleSessionDirs(root)
	dirs = append(dirs, stale...)

	s.unmountUnder(ctx, runner, dirs)
	for _, dir := range stale {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Printf("warning: remove session directory: %v", err)
		}
	}
	if err := rootlock.New(root).Release(); err != nil {
		s.logger.Printf("warning: %v", err)
	}
	unix.Sync()
	return nil
}

// staleSessionDirs returns abandoned session directories recorded as
// belonging to root. Directories owned by another root, or carrying no
// owner record at all, may belong to a live concurrent session and are
// left alone.
func staleSessionDirs(root string) []string {
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(base, "burrow.*"))
	if err != nil {
		return nil
	}

	var dirs []string
	for _, dir := range matches {
		owner, err := os.ReadFile(filepath.Join(dir, ownerMarker))
		if err != nil {
			continue
		}
		if filepath.Clean(string(owner)) == filepath.Clean(root) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
