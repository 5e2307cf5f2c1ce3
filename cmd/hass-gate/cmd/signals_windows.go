//go:build windows

package cmd

import "os"

// gracefulSignals returns the signals that trigger a clean shutdown.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
