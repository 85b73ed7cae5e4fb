// Package spawn orchestrates a single isolated spawn: it validates the
// request, serializes root access, builds the shared-environment
// declarations, hands them to the selected backend adapter, and tears
// everything down afterwards in reverse order.
package spawn

import (
	"context"
	"fmt"
	"log"

	"burrow/internal/rootlock"
	"burrow/internal/userdb"
)

// Spawner runs spawn requests. Zero-value construction is not
// supported; use New.
type Spawner struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Spawner {
	return &Spawner{logger: logger}
}

// Spawn runs one request end to end. Teardown runs on every exit path
// once the environment build has started, including cancellation.
func (s *Spawner) Spawn(ctx context.Context, req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	// Docker resolves against the built-in table: the image filesystem
	// is not visible before the engine starts it.
	root := req.Root
	if req.Backend == BackendDocker {
		root = ""
	}
	user, err := userdb.Resolve(root, req.User)
	if err != nil {
		return fmt.Errorf("resolve user %q: %w", req.User, err)
	}

	runner := NewRunner(req.DryRun, req.ToStderr)
	ad, err := adapterFor(req.Backend, runner, s.logger)
	if err != nil {
		return err
	}
	if err := ad.Check(req); err != nil {
		return err
	}

	// The root lock serializes directory-backed spawns. The engine
	// serializes its own containers, and a dry run must not mutate
	// anything, so both skip it.
	var lock *rootlock.Lock
	if req.Backend != BackendDocker && !req.DryRun {
		lock = rootlock.New(req.Root)
		if err := lock.Acquire(); err != nil {
			return err
		}
	}

	b := newBridge(req, user, runner, s.logger)
	defer s.teardown(req, b.res, lock, runner)

	res, err := b.Build(ctx)
	if err != nil {
		return err
	}

	s.logger.Printf("spawning via %s backend as %s", ad.Name(), user.Name)
	return ad.Run(ctx, req, user, res)
}
