package spawn

// deviceNode is one node of the minimal private /dev populated when
// host devices are not shared.
type deviceNode struct {
	Name  string
	Type  byte // mknod type letter
	Major int
	Minor int
	Mode  string // octal chmod string
}

var deviceNodes = []deviceNode{
	{"null", 'c', 1, 3, "0666"},
	{"zero", 'c', 1, 5, "0666"},
	{"random", 'c', 1, 8, "0666"},
	{"urandom", 'c', 1, 9, "0666"},
	{"tty", 'c', 5, 0, "0666"},
	{"console", 'c', 5, 1, "0600"},
}

// deviceSymlinks are the conventional /dev links pointing at the
// per-process and pty interfaces.
var deviceSymlinks = [][2]string{
	{"pts/ptmx", "ptmx"},
	{"/proc/self/fd", "fd"},
	{"/proc/self/fd/0", "stdin"},
	{"/proc/self/fd/1", "stdout"},
	{"/proc/self/fd/2", "stderr"},
}
