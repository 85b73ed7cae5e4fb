package spawn

import (
	"fmt"
	"os"
)

// Backend selects one of the three isolation strategies.
type Backend int

const (
	// BackendChroot assembles a minimal root filesystem by hand and
	// enters it in a private mount and PID namespace.
	BackendChroot Backend = iota
	// BackendNspawn delegates to systemd-nspawn on a root directory.
	BackendNspawn
	// BackendDocker delegates to the docker engine on an image.
	BackendDocker
)

func (b Backend) String() string {
	switch b {
	case BackendChroot:
		return "chroot"
	case BackendNspawn:
		return "nspawn"
	case BackendDocker:
		return "docker"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// Request describes a single spawn. It is immutable after Validate.
type Request struct {
	Backend Backend
	Root    string // chroot, nspawn
	Image   string // docker

	User     string
	Arch     string // architecture personality alias, empty for native
	HomeBind string // host directory bound onto the target home

	SSHAgent     bool
	X11          bool
	Pulse        bool
	ShareDevices bool
	ToStderr     bool
	DryRun       bool

	ExtraEnv  []EnvVar   // additional environment from the defaults file
	ExtraBind []BindDecl // additional binds from the defaults file

	ExtraArgs []string // backend-native arguments, passed through verbatim
	Command   []string // empty means an interactive login shell
}

// personality maps a recognized architecture alias to the wrapper
// argument of each backend that supports reporting a different one.
type personality struct {
	setarch string // chroot: setarch(8) wrapper
	nspawn  string // systemd-nspawn --personality= value
}

var personalities = map[string]personality{
	"x86":     {"linux32", "x86"},
	"i386":    {"linux32", "x86"},
	"i486":    {"linux32", "x86"},
	"i586":    {"linux32", "x86"},
	"i686":    {"linux32", "x86"},
	"linux32": {"linux32", "x86"},
	"x86_64":  {"linux64", "x86-64"},
	"amd64":   {"linux64", "x86-64"},
	"linux64": {"linux64", "x86-64"},
}

// Validate checks the request before any privileged operation runs.
// Everything rejected here fails without side effects.
func (r *Request) Validate() error {
	switch r.Backend {
	case BackendChroot, BackendNspawn:
		if r.Root == "" {
			return fmt.Errorf("%s backend requires a root directory", r.Backend)
		}
		fi, err := os.Stat(r.Root)
		if err != nil {
			return fmt.Errorf("root directory: %w", err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("root %q is not a directory", r.Root)
		}
	case BackendDocker:
		if r.Image == "" {
			return fmt.Errorf("%s backend requires an image name", r.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %s", r.Backend)
	}

	if r.User == "" {
		return fmt.Errorf("target user is required")
	}

	if r.ShareDevices && r.Backend != BackendChroot {
		return fmt.Errorf("%w (backend %s manages its own device namespace)", ErrShareDevices, r.Backend)
	}

	if r.Arch != "" {
		if _, ok := personalities[r.Arch]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownArch, r.Arch)
		}
	}

	if r.Arch != "" && r.Backend == BackendDocker {
		return fmt.Errorf("architecture personality is not supported on the %s backend", r.Backend)
	}

	return nil
}
