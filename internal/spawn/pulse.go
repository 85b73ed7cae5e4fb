package spawn

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
)

// setupPulse bridges the PulseAudio server socket and the invoker's
// authentication cookie into the session.
func (b *bridge) setupPulse(ctx context.Context) error {
	sock, err := pulseServerSocket(ctx)
	if err != nil {
		return err
	}
	if _, err := os.Stat(sock); err != nil {
		return fmt.Errorf("%w: %s", ErrPulseSocket, sock)
	}

	cookie, err := discoverPulseCookie()
	if err != nil {
		return err
	}

	// The cookie is copied into the session directory and widened so
	// the target user can read it.
	hostCookie := filepath.Join(b.res.RuntimeDir, "pulse-cookie")
	if err := b.runner.Run(ctx, "cp", cookie, hostCookie); err != nil {
		return fmt.Errorf("copy pulse cookie: %w", err)
	}
	if err := b.runner.Run(ctx, "chmod", "644", hostCookie); err != nil {
		return fmt.Errorf("widen pulse cookie permissions: %w", err)
	}

	sockDest := path.Join(b.res.RuntimeDirInRoot, "pulse-native")
	b.res.bind(sock, sockDest)
	b.res.setEnv("PULSE_SERVER", "unix:"+sockDest)
	b.res.setEnv("PULSE_COOKIE", path.Join(b.res.RuntimeDirInRoot, "pulse-cookie"))
	return nil
}

// pulseServerSocket discovers the audio server's unix socket through
// pactl. The query is read-only, so it runs even in dry-run mode.
func pulseServerSocket(ctx context.Context) (string, error) {
	pactl, err := exec.LookPath("pactl")
	if err != nil {
		return "", missingTool("pactl", "pulse server discovery", err)
	}

	out, err := exec.CommandContext(ctx, pactl, "info").Output()
	if err != nil {
		return "", fmt.Errorf("query pulse server: %w", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if server, ok := strings.CutPrefix(line, "Server String:"); ok {
			server = strings.TrimSpace(server)
			server = strings.TrimPrefix(server, "unix:")
			if server != "" {
				return server, nil
			}
		}
	}
	return "", fmt.Errorf("%w: pactl reported no server string", ErrPulseSocket)
}

// discoverPulseCookie tries the standard cookie locations in the
// invoker's own configuration.
func discoverPulseCookie() (string, error) {
	var tried []string

	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		p := filepath.Join(dir, "pulse", "cookie")
		if fileExists(p) {
			return p, nil
		}
		tried = append(tried, p)
	}
	if home := os.Getenv("HOME"); home != "" {
		for _, p := range []string{
			filepath.Join(home, ".config", "pulse", "cookie"),
			filepath.Join(home, ".pulse-cookie"),
		} {
			if fileExists(p) {
				return p, nil
			}
			tried = append(tried, p)
		}
	}
	return "", fmt.Errorf("%w (tried %s)", ErrPulseCookie, strings.Join(tried, ", "))
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
