//go:build !unix

package util

import "os"

func ShutdownSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
