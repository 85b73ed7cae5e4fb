package mounts

import (
	"reflect"
	"strings"
	"testing"
)

const sampleMountInfo = `22 28 0:21 / /proc rw,nosuid,nodev,noexec,relatime - proc proc rw
28 1 8:2 / / rw,relatime shared:1 - ext4 /dev/sda2 rw
101 28 0:45 / /srv/roots/jessie/proc rw,nosuid - proc proc rw
102 28 0:46 / /srv/roots/jessie/dev rw,nosuid - tmpfs tmpfs rw,mode=755
103 102 0:47 / /srv/roots/jessie/dev/pts rw,nosuid,noexec - devpts devpts rw,gid=5,mode=620
104 102 0:48 / /srv/roots/jessie/dev/shm rw,nosuid,nodev - tmpfs tmpfs rw,mode=1777
105 28 0:49 / /srv/roots/jessie/sys rw,nosuid - sysfs sysfs rw
106 28 8:2 /home/cassidy /srv/roots/jessie/home/cassidy rw,relatime shared:1 - ext4 /dev/sda2 rw
107 28 0:50 / /srv/roots/with\040space rw - tmpfs tmpfs rw
`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(sampleMountInfo))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 9 {
		t.Fatalf("parsed %d entries, want 9", len(entries))
	}

	first := entries[0]
	if first.ID != 22 || first.Parent != 28 {
		t.Errorf("ids = %d/%d, want 22/28", first.ID, first.Parent)
	}
	if first.Target != "/proc" || first.FSType != "proc" || first.Source != "proc" {
		t.Errorf("entry = %+v", first)
	}

	// optional fields must not misalign fstype/source
	root := entries[1]
	if root.FSType != "ext4" || root.Source != "/dev/sda2" {
		t.Errorf("shared-flag entry = %+v", root)
	}

	// mangled target is decoded
	last := entries[8]
	if last.Target != "/srv/roots/with space" {
		t.Errorf("unmangled target = %q", last.Target)
	}
}

func TestParseRejectsShortLines(t *testing.T) {
	if _, err := Parse(strings.NewReader("1 2 0:1 / /x rw\n")); err == nil {
		t.Error("Parse accepted a truncated line")
	}
}

func TestUnmangle(t *testing.T) {
	tests := []struct{ in, want string }{
		{`/plain/path`, `/plain/path`},
		{`/with\040space`, `/with space`},
		{`/tab\011here`, "/tab\there"},
		{`/back\134slash`, `/back\slash`},
		{`/trailing\04`, `/trailing\04`},
	}
	for _, tt := range tests {
		if got := Unmangle(tt.in); got != tt.want {
			t.Errorf("Unmangle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnderOrdering(t *testing.T) {
	entries, err := Parse(strings.NewReader(sampleMountInfo))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	got := Under(entries, "/srv/roots/jessie")
	want := []string{
		"/srv/roots/jessie/home/cassidy",
		"/srv/roots/jessie/dev/shm",
		"/srv/roots/jessie/dev/pts",
		"/srv/roots/jessie/proc",
		"/srv/roots/jessie/sys",
		"/srv/roots/jessie/dev",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Under ordering = %v, want %v", got, want)
	}

	// A child mount must come strictly before its parent.
	pos := make(map[string]int, len(got))
	for i, target := range got {
		pos[target] = i
	}
	if pos["/srv/roots/jessie/dev/pts"] > pos["/srv/roots/jessie/dev"] {
		t.Error("/dev/pts ordered after /dev")
	}
	if pos["/srv/roots/jessie/dev/shm"] > pos["/srv/roots/jessie/dev"] {
		t.Error("/dev/shm ordered after /dev")
	}
}

func TestUnderExcludesSiblings(t *testing.T) {
	entries, err := Parse(strings.NewReader(sampleMountInfo))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	for _, target := range Under(entries, "/srv/roots/jessie") {
		if target == "/srv/roots/with space" || target == "/proc" || target == "/" {
			t.Errorf("Under leaked sibling mount %q", target)
		}
	}

	// Prefix match must be component-wise, not a raw string prefix.
	extra := append(entries, Entry{ID: 200, Parent: 28, Target: "/srv/roots/jessiecopy", FSType: "tmpfs", Source: "tmpfs"})
	for _, target := range Under(extra, "/srv/roots/jessie") {
		if target == "/srv/roots/jessiecopy" {
			t.Error("Under matched /srv/roots/jessiecopy for root /srv/roots/jessie")
		}
	}
}
