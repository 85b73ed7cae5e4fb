package spawn

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/moby/term"

	"burrow/internal/userdb"
)

// dockerAdapter hands the spawn to the docker engine over the SDK.
// The engine owns namespace assembly and teardown; the adapter only
// translates the bridge declarations into container configuration and
// streams the attached output. In dry-run mode it prints the
// equivalent docker run invocation instead, since there is no argv to
// show for an API call.
type dockerAdapter struct {
	runner *Runner
	logger *log.Logger
}

func (a *dockerAdapter) Name() string { return "docker" }

func (a *dockerAdapter) Check(req *Request) error {
	if len(req.ExtraArgs) > 0 {
		return fmt.Errorf("backend arguments are not supported with the %s backend", req.Backend)
	}
	return nil
}

// containerUser is the engine-side user specification: numeric ids
// when resolved, otherwise the bare name for the engine to look up in
// the image's own passwd database.
func containerUser(user *userdb.User) string {
	if spec, err := user.Spec(); err == nil {
		return spec
	}
	return user.Name
}

func (a *dockerAdapter) Run(ctx context.Context, req *Request, user *userdb.User, res *BuildResult) error {
	interactive := len(req.Command) == 0
	command := req.Command
	if interactive {
		command = []string{user.Shell, "-l"}
	}

	if req.DryRun {
		argv := []string{"docker", "run", "--rm"}
		if interactive {
			argv = append(argv, "-it")
		}
		argv = append(argv, "--user", containerUser(user), "--workdir", user.Home)
		for _, e := range res.Env {
			argv = append(argv, "-e", e.Key+"="+e.Value)
		}
		for _, b := range res.Binds {
			argv = append(argv, "-v", b.Source+":"+b.Dest)
		}
		argv = append(argv, req.Image)
		argv = append(argv, command...)
		return a.runner.Run(ctx, argv...)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("connect docker engine: %w", err)
	}
	defer cli.Close()

	env := make([]string, 0, len(res.Env))
	for _, e := range res.Env {
		env = append(env, e.Key+"="+e.Value)
	}
	binds := make([]string, 0, len(res.Binds))
	for _, b := range res.Binds {
		binds = append(binds, b.Source+":"+b.Dest)
	}

	containerConfig := &container.Config{
		Image:      req.Image,
		Cmd:        command,
		Env:        env,
		User:       containerUser(user),
		WorkingDir: user.Home,
		Tty:        interactive,
		OpenStdin:  interactive,
		StdinOnce:  interactive,
	}
	hostConfig := &container.HostConfig{Binds: binds}

	created, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	defer func() {
		removeCtx := context.Background()
		if err := cli.ContainerRemove(removeCtx, created.ID, container.RemoveOptions{Force: true}); err != nil {
			a.logger.Printf("warning: remove container %s: %v", created.ID, err)
		}
	}()

	attachResp, err := cli.ContainerAttach(ctx, created.ID, container.AttachOptions{
		Stream: true,
		Stdin:  interactive,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return fmt.Errorf("attach container: %w", err)
	}
	defer attachResp.Close()

	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}

	if interactive {
		restore := rawTerminal()
		defer restore()
		go func() {
			io.Copy(attachResp.Conn, os.Stdin)
			attachResp.CloseWrite()
		}()
	}

	streamDone := make(chan error, 1)
	go func() {
		if interactive {
			// With a tty the stream is raw, not multiplexed.
			_, err := io.Copy(a.runner.Stdout, attachResp.Reader)
			streamDone <- err
		} else {
			streamDone <- demuxStream(attachResp.Reader, a.runner.Stdout, os.Stderr)
		}
	}()

	statusCh, errCh := cli.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("wait container: %w", err)
		}
		return nil
	case status := <-statusCh:
		<-streamDone
		if status.StatusCode != 0 {
			return &ExitStatusError{Code: int(status.StatusCode)}
		}
		return nil
	case <-ctx.Done():
		cli.ContainerKill(context.Background(), created.ID, "SIGKILL")
		return ctx.Err()
	}
}

// rawTerminal switches the local terminal to raw mode for the duration
// of an interactive attach, so control characters reach the container
// pty instead of the local line discipline. It returns the restore
// function; with a non-terminal stdin both directions are no-ops.
func rawTerminal() func() {
	fd, isTerminal := term.GetFdInfo(os.Stdin)
	if !isTerminal {
		return func() {}
	}
	state, err := term.SetRawTerminal(fd)
	if err != nil {
		return func() {}
	}
	return func() { term.RestoreTerminal(fd, state) }
}

// demuxStream splits the engine's multiplexed attach stream into
// stdout and stderr. Frame layout: one stream-type byte, three bytes
// of padding, a big-endian 32-bit payload size, then the payload.
func demuxStream(r io.Reader, stdout, stderr io.Writer) error {
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		if size == 0 {
			continue
		}

		var dst io.Writer
		switch header[0] {
		case 2:
			dst = stderr
		default:
			dst = stdout
		}
		if _, err := io.CopyN(dst, r, int64(size)); err != nil {
			return err
		}
	}
}
