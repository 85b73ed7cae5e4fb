// Package userdb resolves target user identities, either from the
// passwd database inside a spawn root, or from a small built-in table
// when no root exists yet (the managed-container case, where the image
// filesystem is not visible before the engine starts it).
package userdb

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrNoPasswdFile indicates the root has no etc/passwd.
	ErrNoPasswdFile = errors.New("passwd database not found in root")
	// ErrUnknownUser indicates no matching passwd entry.
	ErrUnknownUser = errors.New("unknown user")
	// ErrMalformedRecord indicates a passwd entry with missing fields.
	ErrMalformedRecord = errors.New("malformed passwd record")
	// ErrFieldUnavailable indicates a uid/gid query for a user the
	// built-in table cannot resolve; the container engine has to do
	// its own lookup at start time.
	ErrFieldUnavailable = errors.New("uid/gid unavailable before container start")
)

// User holds the identity attributes of a resolved target user.
// Uid/gid may be absent for users only the container engine can
// resolve; query them through UID/GID.
type User struct {
	Name  string
	Home  string
	Shell string

	uid   int
	gid   int
	hasID bool
}

// UID returns the numeric user ID, or ErrFieldUnavailable.
func (u *User) UID() (int, error) {
	if !u.hasID {
		return 0, fmt.Errorf("%w: %s", ErrFieldUnavailable, u.Name)
	}
	return u.uid, nil
}

// GID returns the numeric group ID, or ErrFieldUnavailable.
func (u *User) GID() (int, error) {
	if !u.hasID {
		return 0, fmt.Errorf("%w: %s", ErrFieldUnavailable, u.Name)
	}
	return u.gid, nil
}

// HasID reports whether numeric ids were resolved.
func (u *User) HasID() bool { return u.hasID }

// Spec returns the uid:gid pair for tools that take a user
// specification, such as chroot --userspec.
func (u *User) Spec() (string, error) {
	uid, err := u.UID()
	if err != nil {
		return "", err
	}
	gid, err := u.GID()
	if err != nil {
		return "", err
	}
	return strconv.Itoa(uid) + ":" + strconv.Itoa(gid), nil
}

// builtin is the closed set of users resolvable without a root.
var builtin = map[string]User{
	"root":  {Name: "root", Home: "/root", Shell: "/bin/bash", uid: 0, gid: 0, hasID: true},
	"guest": {Name: "guest", Home: "/home/guest", Shell: "/bin/bash", uid: 1000, gid: 1000, hasID: true},
}

// Resolve looks up a user. With a root directory, the lookup reads the
// passwd database inside it. Without one, only the built-in table
// resolves numeric ids; any other name resolves name/home/shell only
// and defers the id lookup to the backend runtime.
func Resolve(root, name string) (*User, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty user name", ErrUnknownUser)
	}
	if root == "" {
		if u, ok := builtin[name]; ok {
			return &u, nil
		}
		return &User{Name: name, Home: "/home/" + name, Shell: "/bin/bash"}, nil
	}
	return resolvePasswd(filepath.Join(root, "etc", "passwd"), name)
}

func resolvePasswd(path, name string) (*User, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoPasswdFile, path)
		}
		return nil, fmt.Errorf("open passwd database: %w", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// name:passwd:uid:gid:gecos:home:shell
		fields := strings.Split(line, ":")
		if len(fields) < 1 || fields[0] != name {
			continue
		}
		if len(fields) < 7 {
			return nil, fmt.Errorf("%w: %q has %d fields, want 7", ErrMalformedRecord, name, len(fields))
		}

		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%w: bad uid %q for %s", ErrMalformedRecord, fields[2], name)
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("%w: bad gid %q for %s", ErrMalformedRecord, fields[3], name)
		}

		u := &User{Name: name, Home: fields[5], Shell: fields[6], uid: uid, gid: gid, hasID: true}
		if u.Home == "" {
			return nil, fmt.Errorf("%w: empty home for %s", ErrMalformedRecord, name)
		}
		if u.Shell == "" {
			u.Shell = "/bin/sh"
		}
		return u, nil
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read passwd database: %w", err)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownUser, name)
}
