package rfm9x

import "fmt"

// SX127x LoRa-mode register addresses.
// See the Semtech SX1276/77/78/79 data sheet, section 6.4.
const (
	RegFifo              = 0x00
	RegOpMode            = 0x01
	RegFrfMsb            = 0x06
	RegFrfMid            = 0x07
	RegFrfLsb            = 0x08
	RegPaConfig          = 0x09
	RegPaRamp            = 0x0A
	RegOcp               = 0x0B
	RegLna               = 0x0C
	RegFifoAddrPtr       = 0x0D
	RegFifoTxBaseAddr    = 0x0E
	RegFifoRxBaseAddr    = 0x0F
	RegFifoRxCurrentAddr = 0x10
	RegIrqFlagsMask      = 0x11
	RegIrqFlags          = 0x12
	RegRxNbBytes         = 0x13
	RegPktSnrValue       = 0x19
	RegPktRssiValue      = 0x1A
	RegRssiValue         = 0x1B
	RegModemConfig1      = 0x1D
	RegModemConfig2      = 0x1E
	RegSymbTimeoutLsb    = 0x1F
	RegPreambleMsb       = 0x20
	RegPreambleLsb       = 0x21
	RegPayloadLength     = 0x22
	RegMaxPayloadLength  = 0x23
	RegHopPeriod         = 0x24
	RegModemConfig3      = 0x26
	RegFeiMsb            = 0x28
	RegFeiMid            = 0x29
	RegFeiLsb            = 0x2A
	RegRssiWideband      = 0x2C
	RegDetectOptimize    = 0x31
	RegInvertIQ          = 0x33
	RegDetectionThresh   = 0x37
	RegSyncWord          = 0x39
	RegDioMapping1       = 0x40
	RegDioMapping2       = 0x41
	RegVersion           = 0x42
	RegPaDac             = 0x4D

	numRegisters = 0x80
)

// SPI address byte: bit 7 selects a write access.
const (
	SPIWriteMode = 0x80
	SPIReadMode  = 0x7F
)

// RegOpMode fields.
const (
	LongRangeMode = 0x80
	modeMask      = 0x07
)

// Mode represents an SX127x operating mode.
type Mode byte

const (
	ModeSleep        Mode = 0x00
	ModeStandby      Mode = 0x01
	ModeFSTX         Mode = 0x02
	ModeTX           Mode = 0x03
	ModeFSRX         Mode = 0x04
	ModeRXContinuous Mode = 0x05
	ModeRXSingle     Mode = 0x06
	ModeCAD          Mode = 0x07
)

var modeNames = [...]string{
	ModeSleep:        "Sleep",
	ModeStandby:      "Standby",
	ModeFSTX:         "FSTX",
	ModeTX:           "TX",
	ModeFSRX:         "FSRX",
	ModeRXContinuous: "RXContinuous",
	ModeRXSingle:     "RXSingle",
	ModeCAD:          "CAD",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%02X)", byte(m))
}

// RegIrqFlags bits. Writing a 1 clears the corresponding flag.
const (
	IrqRxTimeout       = 0x80
	IrqRxDone          = 0x40
	IrqPayloadCrcError = 0x20
	IrqValidHeader     = 0x10
	IrqTxDone          = 0x08
	IrqCadDone         = 0x04
	IrqFhssChange      = 0x02
	IrqCadDetected     = 0x01

	irqRxMask  = IrqRxTimeout | IrqRxDone | IrqPayloadCrcError | IrqValidHeader
	irqCadMask = IrqCadDone | IrqCadDetected
)

// RegDioMapping1 values for DIO0.
const (
	dio0RxDone  = 0x00
	dio0TxDone  = 0x40
	dio0CadDone = 0x80
)

// RegPaConfig and RegPaDac values.
const (
	PaSelect     = 0x80
	paRFOBase    = 0x70
	paDacEnable  = 0x07
	paDacDisable = 0x04
)

// RegModemConfig3 bits.
const (
	lowDataRateOptimize = 0x08
	agcAutoOn           = 0x04
)

// Chip version reported by SX1276/77/78/79 silicon.
const chipVersion = 0x12
