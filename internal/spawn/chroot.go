package spawn

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"burrow/internal/userdb"
)

// chrootAdapter assembles a private mount and PID namespace by hand:
// one shell script, run under unshare, performs every mount in order
// and ends by replacing itself with the chrooted command. Keeping the
// whole assembly in a single namespaced shell means nothing leaks into
// the host mount table and the kernel tears the namespace down with
// the process.
type chrootAdapter struct {
	runner *Runner
}

func (a *chrootAdapter) Name() string { return "chroot" }

func (a *chrootAdapter) Check(req *Request) error {
	for _, tool := range []string{"unshare", "chroot"} {
		if _, err := exec.LookPath(tool); err != nil {
			return missingTool(tool, "namespace assembly", err)
		}
	}
	if req.Arch != "" {
		if _, err := exec.LookPath("setarch"); err != nil {
			return missingTool("setarch", "architecture personality", err)
		}
	}
	return nil
}

func (a *chrootAdapter) Run(ctx context.Context, req *Request, user *userdb.User, res *BuildResult) error {
	steps, err := namespaceSteps(req, user, res)
	if err != nil {
		return err
	}

	argv := []string{"unshare", "--mount", "--pid", "--fork", "--kill-child"}
	argv = append(argv, req.ExtraArgs...)
	argv = append(argv, "/bin/sh", "-c", joinScript(steps))
	if req.Arch != "" {
		argv = append([]string{"setarch", personalities[req.Arch].setarch, "--"}, argv...)
	}
	return a.runner.RunPrivileged(ctx, argv...)
}

// namespaceSteps builds the in-namespace assembly script as structured
// argument vectors: kernel filesystems first, then devices, then host
// files, then the declared binds, and finally the chroot itself.
func namespaceSteps(req *Request, user *userdb.User, res *BuildResult) ([][]string, error) {
	root := req.Root
	in := func(p string) string { return filepath.Join(root, p) }

	var steps [][]string
	steps = append(steps, []string{"mount", "-t", "proc", "proc", in("/proc")})

	if req.ShareDevices {
		// Host device and sysfs trees, slaved so in-namespace changes
		// cannot propagate back out.
		for _, dir := range []string{"/dev", "/sys"} {
			steps = append(steps,
				[]string{"mount", "--rbind", dir, in(dir)},
				[]string{"mount", "--make-rslave", in(dir)},
			)
		}
	} else {
		steps = append(steps, deviceSteps(in)...)
	}

	// Network and timezone identity from the host, when the host has
	// them at all.
	for _, f := range []string{"/etc/resolv.conf", "/etc/localtime"} {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		steps = append(steps,
			[]string{"mkdir", "-p", in(filepath.Dir(f))},
			[]string{"touch", in(f)},
			[]string{"mount", "--bind", f, in(f)},
		)
	}

	for _, b := range res.Binds {
		fi, err := os.Stat(b.Source)
		switch {
		case err != nil && !req.DryRun:
			return nil, fmt.Errorf("bind source %s: %w", b.Source, err)
		case err == nil && fi.IsDir(), err != nil:
			steps = append(steps,
				[]string{"mkdir", "-p", in(b.Dest)},
				[]string{"mount", "--rbind", b.Source, in(b.Dest)},
			)
		default:
			steps = append(steps,
				[]string{"mkdir", "-p", in(filepath.Dir(b.Dest))},
				[]string{"touch", in(b.Dest)},
				[]string{"mount", "--bind", b.Source, in(b.Dest)},
			)
		}
	}

	spec, err := user.Spec()
	if err != nil {
		return nil, fmt.Errorf("chroot backend needs numeric ids for %s: %w", user.Name, err)
	}
	enter := []string{"exec", "chroot", "--userspec=" + spec, root, "env", "-i"}
	for _, e := range res.Env {
		enter = append(enter, e.Key+"="+e.Value)
	}
	if len(req.Command) > 0 {
		enter = append(enter, req.Command...)
	} else {
		login := fmt.Sprintf("cd %s && exec %s -l", shellQuote(user.Home), shellQuote(user.Shell))
		enter = append(enter, "/bin/sh", "-c", login)
	}
	steps = append(steps, enter)
	return steps, nil
}

// deviceSteps populates a fresh tmpfs /dev with the minimal node set
// plus a private pty instance, and mounts sysfs.
func deviceSteps(in func(string) string) [][]string {
	steps := [][]string{
		{"mount", "-t", "tmpfs", "-o", "mode=755,nosuid", "tmpfs", in("/dev")},
		{"mkdir", "-p", in("/dev/pts"), in("/dev/shm")},
		{"mount", "-t", "tmpfs", "-o", "mode=1777,nosuid,nodev", "tmpfs", in("/dev/shm")},
		{"mount", "-t", "devpts", "-o", "newinstance,ptmxmode=0666,mode=620,gid=5,nosuid,noexec", "devpts", in("/dev/pts")},
	}
	for _, d := range deviceNodes {
		steps = append(steps, []string{
			"mknod", "-m", d.Mode, in("/dev/" + d.Name),
			string(d.Type), fmt.Sprint(d.Major), fmt.Sprint(d.Minor),
		})
	}
	for _, l := range deviceSymlinks {
		steps = append(steps, []string{"ln", "-s", l[0], in("/dev/" + l[1])})
	}
	steps = append(steps, []string{"mount", "-t", "sysfs", "-o", "nosuid,noexec,nodev", "sysfs", in("/sys")})
	return steps
}
