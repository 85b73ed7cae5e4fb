// Package mounts enumerates live mounts from the kernel mount table
// and provides the teardown ordering used during cleanup: deeper mount
// points strictly before their parents.
package mounts

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
)

// mountInfoPath is a variable for tests.
var mountInfoPath = "/proc/self/mountinfo"

// Entry is one line of /proc/self/mountinfo, reduced to the fields
// cleanup cares about.
type Entry struct {
	ID     int
	Parent int
	Target string
	FSType string
	Source string
}

// Parse reads a mountinfo document (proc_pid_mountinfo(5)).
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	s := bufio.NewScanner(r)
	for s.Scan() {
		// 36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw
		// (1)(2)(3)   (4)   (5)      (6)      (7)   (8) (9)   (10)   (11)
		f := strings.Split(s.Text(), " ")
		if len(f) < 10 {
			return nil, fmt.Errorf("mountinfo line has %d fields, want at least 10", len(f))
		}

		var e Entry
		if _, err := fmt.Sscanf(f[0]+" "+f[1], "%d %d", &e.ID, &e.Parent); err != nil {
			return nil, fmt.Errorf("bad mount id fields: %w", err)
		}

		// optional fields are terminated by a single hyphen
		sep := -1
		for i := 6; i < len(f); i++ {
			if f[i] == "-" {
				sep = i
				break
			}
		}
		if sep < 0 || sep+2 >= len(f) {
			return nil, fmt.Errorf("mountinfo line missing optional field separator")
		}

		e.Target = Unmangle(f[4])
		e.FSType = Unmangle(f[sep+1])
		e.Source = Unmangle(f[sep+2])
		entries = append(entries, e)
	}
	return entries, s.Err()
}

// Unmangle decodes the octal escapes (\040 etc.) the kernel applies to
// whitespace and backslashes in mount table fields.
func Unmangle(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) &&
			isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool { return c >= '0' && c <= '7' }

// Live returns the current mount table.
func Live() ([]Entry, error) {
	f, err := os.Open(mountInfoPath)
	if err != nil {
		return nil, fmt.Errorf("open mount table: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Under returns the targets of all entries at or below dir, ordered
// for teardown: longest path first, then reverse lexical, so a child
// mount is always unmounted before its parent.
func Under(entries []Entry, dir string) []string {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		return nil
	}
	var targets []string
	for _, e := range entries {
		if e.Target == dir || strings.HasPrefix(e.Target, dir+"/") {
			targets = append(targets, e.Target)
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		if len(targets[i]) != len(targets[j]) {
			return len(targets[i]) > len(targets[j])
		}
		return targets[i] > targets[j]
	})
	return targets
}

// Unmount detaches a single mount point. A busy mount is retried
// lazily so teardown can proceed past it.
func Unmount(target string) error {
	if err := unix.Unmount(target, 0); err != nil {
		if err == unix.EBUSY {
			return unix.Unmount(target, unix.MNT_DETACH)
		}
		return err
	}
	return nil
}
