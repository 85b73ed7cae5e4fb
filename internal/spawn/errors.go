package spawn

import (
	"errors"
	"fmt"
)

// Sentinel errors callers branch on. Everything here is fatal for the
// current invocation; nothing is retried.
var (
	ErrShareDevices = errors.New("device sharing requires the chroot backend")
	ErrUnknownArch  = errors.New("unrecognized architecture alias")

	ErrAgentUnset   = errors.New("SSH_AUTH_SOCK is not set")
	ErrAgentSocket  = errors.New("agent path is not a socket")
	ErrDisplayUnset = errors.New("DISPLAY is not set")
	ErrXSocketDir   = errors.New("X11 socket directory not found")
	ErrPulseSocket  = errors.New("pulse socket not present")
	ErrPulseCookie  = errors.New("pulse cookie not present")
)

// ExitStatusError carries the exit status of the spawned command so
// the process can propagate it instead of the generic failure code.
type ExitStatusError struct {
	Code int
}

func (e *ExitStatusError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// ExitStatus extracts a propagatable status code from an error chain.
func ExitStatus(err error) (int, bool) {
	var ee *ExitStatusError
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return 0, false
}

// missingTool wraps exec.LookPath failures with the tool's purpose.
func missingTool(name, purpose string, err error) error {
	return fmt.Errorf("required tool %q (%s) not found: %w", name, purpose, err)
}
