package spawn

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"

	"burrow/internal/userdb"
)

// EnvVar is one environment variable exported into the spawned
// process. Insertion order is preserved so dry-run output is
// reproducible.
type EnvVar struct {
	Key   string
	Value string
}

// BindDecl declares "make Source visible at Dest inside the root" in
// backend-agnostic form; each adapter translates it to its native
// syntax. Dest is an absolute in-root path.
type BindDecl struct {
	Source string
	Dest   string
}

// BuildResult is the environment-bridge output threaded explicitly
// through every setup step and handed to the backend adapter.
type BuildResult struct {
	Env   []EnvVar
	Binds []BindDecl

	// RuntimeDir is the temporary session directory on the host; it
	// owns all session-scoped sockets and cookies and is destroyed
	// unconditionally at teardown.
	RuntimeDir string
	// RuntimeDirInRoot is the XDG-style runtime path inside the root.
	RuntimeDirInRoot string
}

func (r *BuildResult) setEnv(key, value string) {
	r.Env = append(r.Env, EnvVar{Key: key, Value: value})
}

func (r *BuildResult) bind(source, dest string) {
	r.Binds = append(r.Binds, BindDecl{Source: source, Dest: dest})
}

// bridge builds the shared-environment declarations for one request.
type bridge struct {
	req    *Request
	user   *userdb.User
	runner *Runner
	logger *log.Logger

	runtimeBase  string // invoker's runtime directory
	x11SocketDir string
	res          *BuildResult
}

func newBridge(req *Request, user *userdb.User, runner *Runner, logger *log.Logger) *bridge {
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
	}
	return &bridge{
		req:          req,
		user:         user,
		runner:       runner,
		logger:       logger,
		runtimeBase:  base,
		x11SocketDir: "/tmp/.X11-unix",
		res:          &BuildResult{},
	}
}

// Build runs the setup steps in a fixed order. The runtime directory
// step always runs; every other step is toggled by a request flag and
// independently failable.
func (b *bridge) Build(ctx context.Context) (*BuildResult, error) {
	if err := b.setupRuntimeDir(ctx); err != nil {
		return nil, fmt.Errorf("set up runtime directory: %w", err)
	}
	if b.req.SSHAgent {
		if err := b.setupAgent(ctx); err != nil {
			return nil, fmt.Errorf("set up ssh agent: %w", err)
		}
	}
	if b.req.X11 {
		if err := b.setupX11(ctx); err != nil {
			return nil, fmt.Errorf("set up x11: %w", err)
		}
	}
	if b.req.Pulse {
		if err := b.setupPulse(ctx); err != nil {
			return nil, fmt.Errorf("set up pulseaudio: %w", err)
		}
	}
	if b.req.HomeBind != "" {
		if err := b.setupHomeBind(); err != nil {
			return nil, fmt.Errorf("set up home bind: %w", err)
		}
	}

	// Defaults-file extras come last so they can override the
	// computed environment.
	b.res.Env = append(b.res.Env, b.req.ExtraEnv...)
	b.res.Binds = append(b.res.Binds, b.req.ExtraBind...)
	return b.res, nil
}

// superuser and standard search paths exported as PATH.
const (
	rootPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	userPath = "/usr/local/bin:/usr/bin:/bin"
)

// ownerMarker is the file inside a session directory recording which
// root the session belongs to, so a later cleanup of one root cannot
// touch another root's live session.
const ownerMarker = ".root"

// setupRuntimeDir creates the temporary session directory and exports
// the base identity environment. In dry-run mode the directory name is
// fixed and nothing is created.
func (b *bridge) setupRuntimeDir(ctx context.Context) error {
	uid, uidErr := b.user.UID()
	switch {
	case uidErr == nil:
		b.res.RuntimeDirInRoot = fmt.Sprintf("/run/user/%d", uid)
	case b.req.Backend == BackendDocker:
		// The engine resolves the user's ids itself at container
		// start, so the in-root path cannot be uid-derived yet.
		b.res.RuntimeDirInRoot = "/run/burrow"
	default:
		return fmt.Errorf("resolve runtime directory owner: %w", uidErr)
	}

	if b.req.DryRun {
		b.res.RuntimeDir = filepath.Join(b.runtimeBase, "burrow.dryrun")
	} else {
		dir, err := os.MkdirTemp(b.runtimeBase, "burrow.*")
		if err != nil {
			return fmt.Errorf("create session directory: %w", err)
		}
		b.res.RuntimeDir = dir
		if err := os.WriteFile(filepath.Join(dir, ownerMarker), []byte(b.req.Root), 0644); err != nil {
			return fmt.Errorf("record session owner: %w", err)
		}
	}

	// The directory is bound into the root, so the target user must be
	// able to use it. With unresolved ids ownership stays with the
	// invoker and the directory is only opened for reading.
	if spec, err := b.user.Spec(); err == nil {
		if err := b.runner.RunPrivileged(ctx, "chown", spec, b.res.RuntimeDir); err != nil {
			return fmt.Errorf("chown session directory: %w", err)
		}
	} else if err := b.runner.Run(ctx, "chmod", "755", b.res.RuntimeDir); err != nil {
		return fmt.Errorf("open session directory permissions: %w", err)
	}

	b.res.setEnv("XDG_RUNTIME_DIR", b.res.RuntimeDirInRoot)
	b.res.setEnv("XDG_CONFIG_HOME", path.Join(b.user.Home, ".config"))
	b.res.setEnv("HOME", b.user.Home)
	b.res.setEnv("USER", b.user.Name)
	b.res.setEnv("LOGNAME", b.user.Name)
	if uidErr == nil && uid == 0 {
		b.res.setEnv("PATH", rootPath)
	} else {
		b.res.setEnv("PATH", userPath)
	}

	b.res.bind(b.res.RuntimeDir, b.res.RuntimeDirInRoot)
	return nil
}

// setupHomeBind makes a host directory visible at the target home.
func (b *bridge) setupHomeBind() error {
	fi, err := os.Stat(b.req.HomeBind)
	if err != nil {
		return fmt.Errorf("home bind source: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("home bind source %q is not a directory", b.req.HomeBind)
	}
	b.res.bind(b.req.HomeBind, b.user.Home)
	return nil
}
