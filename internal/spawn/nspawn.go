package spawn

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"burrow/internal/userdb"
)

// nspawnAdapter delegates namespace assembly to systemd-nspawn. The
// bridge declarations translate directly to --setenv and --bind flags;
// devices, proc and sysfs are nspawn's own business.
type nspawnAdapter struct {
	runner *Runner
}

func (a *nspawnAdapter) Name() string { return "nspawn" }

func (a *nspawnAdapter) Check(req *Request) error {
	if _, err := exec.LookPath("systemd-nspawn"); err != nil {
		return missingTool("systemd-nspawn", "container backend", err)
	}
	return nil
}

func (a *nspawnAdapter) Run(ctx context.Context, req *Request, user *userdb.User, res *BuildResult) error {
	// The resolved uid is authoritative; the name is only a fallback
	// for ids the container runtime must look up itself.
	runAs := user.Name
	if uid, err := user.UID(); err == nil {
		runAs = strconv.Itoa(uid)
	}
	argv := []string{"systemd-nspawn", "--quiet", "-D", req.Root, "-u", runAs}
	if req.Arch != "" {
		argv = append(argv, "--personality="+personalities[req.Arch].nspawn)
	}
	for _, e := range res.Env {
		argv = append(argv, "--setenv="+e.Key+"="+e.Value)
	}
	for _, b := range res.Binds {
		argv = append(argv, "--bind="+b.Source+":"+b.Dest)
	}
	argv = append(argv, req.ExtraArgs...)
	if len(req.Command) > 0 {
		argv = append(argv, "--")
		argv = append(argv, req.Command...)
	} else {
		argv = append(argv, "--", user.Shell, "-l")
	}

	if err := a.runner.RunPrivileged(ctx, argv...); err != nil {
		if _, ok := ExitStatus(err); ok {
			return err
		}
		return fmt.Errorf("systemd-nspawn: %w", err)
	}
	return nil
}
