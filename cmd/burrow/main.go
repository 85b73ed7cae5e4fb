// Command burrow spawns a command inside an isolated execution root
// and bridges the invoking user's session environment into it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"burrow/internal/config"
	"burrow/internal/spawn"
)

const usage = `usage: burrow [options] [--] [command ...]

Spawn a command inside an isolated execution root, bridging the host
session environment into it. With no command, an interactive login
shell for the target user is started.

Backend selection (the last one given wins):
  -chroot DIR        enter a private namespace chrooted to DIR (default)
  -nspawn DIR        run DIR under systemd-nspawn
  -docker IMAGE      run a managed container from IMAGE

Options:
  -user NAME         target user inside the root
  -as-root           shorthand for -user root
  -arch ALIAS        report a different architecture (chroot, nspawn)
  -bind-home DIR     bind DIR onto the target user's home directory
  -with-ssh-agent    bridge the ssh agent socket
  -with-x11          bridge the X display and authority cookie
  -with-pulseaudio   bridge the pulseaudio socket and cookie
  -share-devices     share host /dev and /sys (chroot only)
  -backend-arg ARG   pass ARG through to the backend tool (repeatable)
  -to-stderr         redirect the command's stdout to stderr
  -dry-run           print the commands that would run, run nothing
  -cleanup           tear down leftovers of an interrupted session
  -config PATH       defaults file (default ` + config.DefaultPath + `)
`

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "burrow: %v\n", err)
	os.Exit(2)
}

func main() {
	var (
		req        spawn.Request
		backendSet bool

		userFlag   string
		asRoot     bool
		archFlag   string
		cleanup    bool
		configPath string
	)

	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	selectBackend := func(backend spawn.Backend) func(string) error {
		return func(arg string) error {
			req.Backend = backend
			req.Root, req.Image = "", ""
			if backend == spawn.BackendDocker {
				req.Image = arg
			} else {
				req.Root = arg
			}
			backendSet = true
			return nil
		}
	}
	flag.Func("chroot", "root `directory` for the chroot backend", selectBackend(spawn.BackendChroot))
	flag.Func("nspawn", "root `directory` for the systemd-nspawn backend", selectBackend(spawn.BackendNspawn))
	flag.Func("docker", "`image` for the docker backend", selectBackend(spawn.BackendDocker))

	flag.StringVar(&userFlag, "user", "", "target user inside the root")
	flag.BoolVar(&asRoot, "as-root", false, "shorthand for -user root")
	flag.StringVar(&archFlag, "arch", "", "architecture personality alias")
	flag.StringVar(&req.HomeBind, "bind-home", "", "host directory bound onto the target home")
	flag.BoolVar(&req.SSHAgent, "with-ssh-agent", false, "bridge the ssh agent socket")
	flag.BoolVar(&req.X11, "with-x11", false, "bridge the X display")
	flag.BoolVar(&req.Pulse, "with-pulseaudio", false, "bridge the pulseaudio socket")
	flag.BoolVar(&req.ShareDevices, "share-devices", false, "share host /dev and /sys")
	flag.Func("backend-arg", "extra `argument` passed to the backend tool", func(arg string) error {
		req.ExtraArgs = append(req.ExtraArgs, arg)
		return nil
	})
	flag.BoolVar(&req.ToStderr, "to-stderr", false, "redirect command stdout to stderr")
	flag.BoolVar(&req.DryRun, "dry-run", false, "print commands instead of running them")
	flag.BoolVar(&cleanup, "cleanup", false, "tear down an interrupted session")
	flag.StringVar(&configPath, "config", "", "defaults file path")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fatal(err)
	}
	applyConfig(&req, cfg, backendSet)

	req.User = cfg.User
	if userFlag != "" {
		req.User = userFlag
	}
	if asRoot {
		req.User = "root"
	}
	req.Arch = cfg.Arch
	if archFlag != "" {
		req.Arch = archFlag
	}
	req.Command = flag.Args()

	logger := log.New(os.Stderr, "[burrow] ", log.LstdFlags|log.Lmsgprefix)
	spawner := spawn.New(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cleanup {
		if err := spawner.Cleanup(ctx, req.Root); err != nil {
			fatal(err)
		}
		return
	}

	if err := spawner.Spawn(ctx, &req); err != nil {
		if code, ok := spawn.ExitStatus(err); ok {
			os.Exit(code)
		}
		fatal(err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path, true)
	}
	return config.Load(config.DefaultPath, false)
}

// applyConfig fills request fields the command line left unset and
// appends the defaults-file extras.
func applyConfig(req *spawn.Request, cfg *config.Config, backendSet bool) {
	if !backendSet {
		switch cfg.Backend {
		case "nspawn":
			req.Backend = spawn.BackendNspawn
		case "docker":
			req.Backend = spawn.BackendDocker
		default:
			req.Backend = spawn.BackendChroot
		}
	}

	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		req.ExtraEnv = append(req.ExtraEnv, spawn.EnvVar{Key: k, Value: cfg.Env[k]})
	}
	for _, b := range cfg.Binds {
		req.ExtraBind = append(req.ExtraBind, spawn.BindDecl{Source: b.Source, Dest: b.Dest})
	}
}
