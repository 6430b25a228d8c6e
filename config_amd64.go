package rfm9x

// Configuration for Intel Edison in 64-bit mode with RFM95W breakout.

const (
	spiDevice    = "/dev/spidev5.1"
	customCS     = 110
	interruptPin = 15
	resetPin     = 14
)
