package spawn

import (
	"bytes"
	"context"
	"io"
	"log"
	"strings"
	"testing"

	"burrow/internal/userdb"
)

func TestContainerUser(t *testing.T) {
	root, err := userdb.Resolve("", "root")
	if err != nil {
		t.Fatal(err)
	}
	if got := containerUser(root); got != "0:0" {
		t.Errorf("containerUser(root) = %q, want numeric spec", got)
	}

	alice, err := userdb.Resolve("", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got := containerUser(alice); got != "alice" {
		t.Errorf("containerUser(alice) = %q, want the bare name", got)
	}
}

func TestDockerDryRunArgv(t *testing.T) {
	req := &Request{
		Backend: BackendDocker,
		Image:   "debian:stable",
		User:    "guest",
		DryRun:  true,
		Command: []string{"cat", "/etc/os-release"},
	}
	user, err := userdb.Resolve("", "guest")
	if err != nil {
		t.Fatal(err)
	}
	res := &BuildResult{
		Env:   []EnvVar{{Key: "HOME", Value: "/home/guest"}},
		Binds: []BindDecl{{Source: "/tmp/burrow.x", Dest: "/run/user/1000"}},
	}

	var out bytes.Buffer
	a := &dockerAdapter{runner: dryRunner(&out), logger: log.New(io.Discard, "", 0)}
	if err := a.Run(context.Background(), req, user, res); err != nil {
		t.Fatal(err)
	}

	line := strings.TrimSpace(out.String())
	for _, want := range []string{
		"docker run --rm",
		"--user 1000:1000",
		"--workdir /home/guest",
		"-e HOME=/home/guest",
		"-v /tmp/burrow.x:/run/user/1000",
		"debian:stable cat /etc/os-release",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("argv %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "-it") {
		t.Errorf("non-interactive run must not allocate a tty: %q", line)
	}
}

func TestDockerDryRunInteractive(t *testing.T) {
	req := &Request{Backend: BackendDocker, Image: "debian:stable", User: "root", DryRun: true}
	user, err := userdb.Resolve("", "root")
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	a := &dockerAdapter{runner: dryRunner(&out), logger: log.New(io.Discard, "", 0)}
	if err := a.Run(context.Background(), req, user, &BuildResult{}); err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(out.String())
	if !strings.Contains(line, "-it") {
		t.Errorf("interactive run must allocate a tty: %q", line)
	}
	if !strings.HasSuffix(line, "debian:stable /bin/bash -l") {
		t.Errorf("argv = %q, want a trailing login shell", line)
	}
}

func TestDockerCheckRejectsExtraArgs(t *testing.T) {
	a := &dockerAdapter{}
	req := &Request{Backend: BackendDocker, Image: "debian:stable", ExtraArgs: []string{"--privileged"}}
	if err := a.Check(req); err == nil {
		t.Fatal("expected error for backend arguments on docker")
	}
}

func TestDemuxStream(t *testing.T) {
	frame := func(stream byte, payload string) []byte {
		b := []byte{stream, 0, 0, 0, 0, 0, 0, byte(len(payload))}
		return append(b, payload...)
	}
	var in bytes.Buffer
	in.Write(frame(1, "out1"))
	in.Write(frame(2, "err1"))
	in.Write(frame(1, "out2"))
	in.Write(frame(1, "")) // empty frame is skipped

	var stdout, stderr bytes.Buffer
	if err := demuxStream(&in, &stdout, &stderr); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "out1out2" {
		t.Errorf("stdout = %q", stdout.String())
	}
	if stderr.String() != "err1" {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRawTerminalNonTerminalStdin(t *testing.T) {
	// Test stdin is never a terminal; both switch and restore must be
	// harmless no-ops.
	restore := rawTerminal()
	restore()
}

func TestDemuxStreamTruncatedHeader(t *testing.T) {
	in := bytes.NewReader([]byte{1, 0, 0})
	if err := demuxStream(in, io.Discard, io.Discard); err != nil {
		t.Errorf("truncated trailing header should read as end of stream, got %v", err)
	}
}
