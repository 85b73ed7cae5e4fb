package spawn

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

// fakeEUID overrides the effective uid for the duration of a test.
func fakeEUID(t *testing.T, uid int) {
	t.Helper()
	orig := geteuid
	geteuid = func() int { return uid }
	t.Cleanup(func() { geteuid = orig })
}

func dryRunner(out *bytes.Buffer) *Runner {
	return &Runner{
		DryRun: true,
		Output: out,
		Stdout: io.Discard,
	}
}

func TestRunnerDryRunPrints(t *testing.T) {
	var out bytes.Buffer
	r := dryRunner(&out)

	if err := r.Run(context.Background(), "touch", "/tmp/a file"); err != nil {
		t.Fatal(err)
	}
	want := "touch '/tmp/a file'\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestRunnerPrivilegedAddsSudo(t *testing.T) {
	fakeEUID(t, 1000)
	var out bytes.Buffer
	r := dryRunner(&out)

	if err := r.RunPrivileged(context.Background(), "umount", "/mnt"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "sudo -- umount /mnt\n" {
		t.Errorf("output = %q, want sudo prefix", got)
	}
}

func TestRunnerPrivilegedDirectWhenRoot(t *testing.T) {
	fakeEUID(t, 0)
	var out bytes.Buffer
	r := dryRunner(&out)

	if err := r.RunPrivileged(context.Background(), "umount", "/mnt"); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); strings.Contains(got, "sudo") {
		t.Errorf("output %q should not re-invoke through sudo", got)
	}
}

func TestRunnerExitStatus(t *testing.T) {
	r := &Runner{Output: io.Discard, Stdout: io.Discard}
	err := r.Run(context.Background(), "/bin/sh", "-c", "exit 42")
	code, ok := ExitStatus(err)
	if !ok {
		t.Fatalf("error %v carries no exit status", err)
	}
	if code != 42 {
		t.Errorf("exit status = %d, want 42", code)
	}
}
