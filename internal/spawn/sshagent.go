package spawn

import (
	"context"
	"fmt"
	"os"
	"path"
)

// setupAgent bridges the host's ssh agent socket into the session.
func (b *bridge) setupAgent(ctx context.Context) error {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return ErrAgentUnset
	}
	fi, err := os.Stat(sock)
	if err != nil {
		return fmt.Errorf("agent socket: %w", err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%w: %s", ErrAgentSocket, sock)
	}

	// A target user other than the invoker cannot pass the socket's
	// permission check, so the socket is widened to world read/write.
	// Required for the bridge to work, but worth telling the user.
	if uid, err := b.user.UID(); err == nil && uid != geteuid() {
		b.logger.Printf("warning: widening permissions on agent socket %s for uid %d", sock, uid)
		if err := b.runner.Run(ctx, "chmod", "666", sock); err != nil {
			return fmt.Errorf("widen agent socket permissions: %w", err)
		}
	}

	dest := path.Join(b.res.RuntimeDirInRoot, "ssh-agent.sock")
	b.res.bind(sock, dest)
	b.res.setEnv("SSH_AUTH_SOCK", dest)
	return nil
}
