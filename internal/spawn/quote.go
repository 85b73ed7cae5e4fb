package spawn

import "strings"

// shellSafe are the bytes that never need quoting in a POSIX shell
// word. Anything else gets single-quoted.
const shellSafe = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789@%_+=:,./-"

// shellQuote returns s as a single safe shell word.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(shellSafe, rune(s[i])) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// shellJoin serializes an argument vector into a shell command line
// with each argument individually quoted.
func shellJoin(argv []string) string {
	words := make([]string, len(argv))
	for i, a := range argv {
		words[i] = shellQuote(a)
	}
	return strings.Join(words, " ")
}

// joinScript chains structured command steps into one shell script
// that stops at the first failing step.
func joinScript(steps [][]string) string {
	lines := make([]string, len(steps))
	for i, step := range steps {
		lines[i] = shellJoin(step)
	}
	return strings.Join(lines, " && ")
}
