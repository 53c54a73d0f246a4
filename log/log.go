package log

import (
	"io"
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// L is the kernel log. Subsystems derive named loggers from it with Named.
var L hclog.Logger

func init() {
	L = newLogger(os.Stderr)
}

func newLogger(w io.Writer) hclog.Logger {
	l := hclog.New(&hclog.LoggerOptions{
		Name:   "penguin",
		Output: w,
		Level:  hclog.Info,
	})

	if str := os.Getenv("TRACE"); str != "" {
		l.SetLevel(hclog.Trace)
	}

	return l
}

// Named returns a sub-logger of L for a kernel subsystem.
func Named(subsystem string) hclog.Logger {
	return L.Named(subsystem)
}
