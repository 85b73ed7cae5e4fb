package spawn

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
)

// setupX11 bridges the X display into the session: the socket
// directory is bound through, and the current authority entry is
// extracted into a private authority file with a wildcard host family,
// since the hostname inside the root differs from the host's.
func (b *bridge) setupX11(ctx context.Context) error {
	display := os.Getenv("DISPLAY")
	if display == "" {
		return ErrDisplayUnset
	}

	fi, err := os.Stat(b.x11SocketDir)
	if err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: %s", ErrXSocketDir, b.x11SocketDir)
	}

	xauth, err := exec.LookPath("xauth")
	if err != nil {
		return missingTool("xauth", "X authority extraction", err)
	}

	authFile := filepath.Join(b.res.RuntimeDir, "Xauthority")
	extract := fmt.Sprintf("%s nlist %s | sed -e 's/^..../ffff/' | %s -f %s nmerge -",
		shellQuote(xauth), shellQuote(display), shellQuote(xauth), shellQuote(authFile))
	if err := b.runner.Run(ctx, "/bin/sh", "-c", extract); err != nil {
		return fmt.Errorf("extract X authority entry: %w", err)
	}

	b.res.bind(b.x11SocketDir, b.x11SocketDir)
	b.res.setEnv("DISPLAY", display)
	b.res.setEnv("XAUTHORITY", path.Join(b.res.RuntimeDirInRoot, "Xauthority"))
	b.res.setEnv("QT_X11_NO_MITSHM", "1")
	return nil
}
