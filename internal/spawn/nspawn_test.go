package spawn

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"burrow/internal/userdb"
)

func TestNspawnRunArgv(t *testing.T) {
	fakeEUID(t, 0)
	req := &Request{
		Backend: BackendNspawn,
		Root:    t.TempDir(),
		User:    "guest",
		Arch:    "x86_64",
		DryRun:  true,
		Command: []string{"uname", "-m"},
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
	a := &nspawnAdapter{runner: dryRunner(&out)}
	if err := a.Run(context.Background(), req, user, res); err != nil {
		t.Fatal(err)
	}

	line := strings.TrimSpace(out.String())
	for _, want := range []string{
		"systemd-nspawn --quiet -D " + req.Root,
		"-u 1000",
		"--personality=x86-64",
		"--setenv=HOME=/home/guest",
		"--bind=/tmp/burrow.x:/run/user/1000",
		"-- uname -m",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("argv %q missing %q", line, want)
		}
	}
}

func TestNspawnInteractiveShell(t *testing.T) {
	fakeEUID(t, 0)
	req := &Request{Backend: BackendNspawn, Root: t.TempDir(), User: "root", DryRun: true}
	user, err := userdb.Resolve("", "root")
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	a := &nspawnAdapter{runner: dryRunner(&out)}
	if err := a.Run(context.Background(), req, user, &BuildResult{}); err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(out.String())
	if !strings.Contains(line, "-u 0") {
		t.Errorf("argv = %q, want the numeric uid as run-as user", line)
	}
	if !strings.HasSuffix(line, "-- /bin/bash -l") {
		t.Errorf("argv = %q, want a trailing login shell", line)
	}
}
