package rfm9x

import (
	"github.com/pkg/errors"
)

var (
	// ErrInitFailed means the chip did not enter LoRa mode after reset.
	ErrInitFailed = errors.New("LoRa initialization failed")

	ErrClosed = errors.New("radio device closed")

	ErrFrequencyRange = errors.New("frequency out of range")
	ErrPayloadTooLong = errors.New("payload too long")
	ErrTxTimeout      = errors.New("transmit timeout")
	ErrCADTimeout     = errors.New("channel activity detection timeout")
	ErrChannelBusy    = errors.New("channel busy")

	// ErrNoAck is returned by SendToWait when every retry went unacknowledged.
	ErrNoAck = errors.New("no acknowledgement")

	ErrBadMIC        = errors.New("message integrity check failed")
	ErrBadCiphertext = errors.New("malformed encrypted payload")
)
