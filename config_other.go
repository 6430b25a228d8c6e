//go:build !arm && !arm64 && !amd64
// +build !arm,!arm64,!amd64

package rfm9x

// Generic spidev configuration; set interrupt_pin and reset_pin in the configuration file.

const (
	spiDevice    = "/dev/spidev0.0"
	customCS     = 0
	interruptPin = -1
	resetPin     = -1
)
