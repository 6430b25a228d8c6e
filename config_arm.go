package rfm9x

// Configuration for Raspberry Pi (32-bit) with Adafruit LoRa Radio Bonnet.

const (
	spiDevice    = "/dev/spidev0.1"
	customCS     = 0
	interruptPin = 22
	resetPin     = 25
)
