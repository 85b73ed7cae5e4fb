package spawn

import (
	"context"
	"fmt"
	"log"

	"burrow/internal/userdb"
)

// adapter is the backend-specific half of a spawn: translating the
// validated request and the bridge output into one concrete isolation
// mechanism.
type adapter interface {
	// Name is the backend's short name for log messages.
	Name() string
	// Check verifies the backend's host-side prerequisites.
	Check(req *Request) error
	// Run executes the spawned command and blocks until it exits.
	Run(ctx context.Context, req *Request, user *userdb.User, res *BuildResult) error
}

func adapterFor(backend Backend, runner *Runner, logger *log.Logger) (adapter, error) {
	switch backend {
	case BackendChroot:
		return &chrootAdapter{runner: runner}, nil
	case BackendNspawn:
		return &nspawnAdapter{runner: runner}, nil
	case BackendDocker:
		return &dockerAdapter{runner: runner, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown backend %s", backend)
	}
}
