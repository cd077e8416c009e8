//go:build unix

package util

import (
	"os"

	"golang.org/x/sys/unix"
)

// ShutdownSignals are the signals that stop a running process gracefully.
func ShutdownSignals() []os.Signal {
	return []os.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGHUP}
}
