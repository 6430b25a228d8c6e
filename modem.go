package rfm9x

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Bandwidth is the RegModemConfig1 signal bandwidth setting.
type Bandwidth byte

const (
	BW7_8 Bandwidth = iota
	BW10_4
	BW15_6
	BW20_8
	BW31_25
	BW41_7
	BW62_5
	BW125
	BW250
	BW500
)

var bandwidthHz = [...]uint32{
	BW7_8:   7800,
	BW10_4:  10400,
	BW15_6:  15600,
	BW20_8:  20800,
	BW31_25: 31250,
	BW41_7:  41700,
	BW62_5:  62500,
	BW125:   125000,
	BW250:   250000,
	BW500:   500000,
}

var bandwidthNames = [...]string{
	"7_8", "10_4", "15_6", "20_8", "31_25", "41_7", "62_5", "125", "250", "500",
}

// Hz returns the bandwidth in Hertz.
func (bw Bandwidth) Hz() uint32 {
	if int(bw) < len(bandwidthHz) {
		return bandwidthHz[bw]
	}
	return 0
}

func (bw Bandwidth) String() string {
	if int(bw) < len(bandwidthNames) {
		return bandwidthNames[bw] + "kHz"
	}
	return fmt.Sprintf("Bandwidth(%d)", byte(bw))
}

// BandwidthFromHz returns the setting for a bandwidth given in Hertz.
func BandwidthFromHz(hz uint32) (Bandwidth, error) {
	for i, v := range bandwidthHz {
		if v == hz {
			return Bandwidth(i), nil
		}
	}
	return 0, errors.Errorf("unsupported bandwidth %d Hz", hz)
}

// CodingRate is the RegModemConfig1 error coding rate setting.
type CodingRate byte

const (
	CR4_5 CodingRate = 1
	CR4_6 CodingRate = 2
	CR4_7 CodingRate = 3
	CR4_8 CodingRate = 4
)

func (cr CodingRate) String() string {
	return fmt.Sprintf("4/%d", 4+int(cr))
}

// ModemConfig holds the LoRa modem parameters that are written to
// RegModemConfig1, RegModemConfig2 and RegModemConfig3.
type ModemConfig struct {
	Name                string
	Bandwidth           Bandwidth
	SpreadingFactor     uint8 // 6..12
	CodingRate          CodingRate
	ImplicitHeader      bool
	CRC                 bool
	LowDataRateOptimize bool
	AGC                 bool
}

// Modem settings from RadioHead's RH_RF95 driver.
var (
	// Medium range, the default.
	Bw125Cr45Sf128 = ModemConfig{"Bw125Cr45Sf128", BW125, 7, CR4_5, false, true, false, true}
	// Fast, short range.
	Bw500Cr45Sf128 = ModemConfig{"Bw500Cr45Sf128", BW500, 7, CR4_5, false, true, false, true}
	// Slow, long range.
	Bw31_25Cr48Sf512 = ModemConfig{"Bw31_25Cr48Sf512", BW31_25, 9, CR4_8, false, true, false, true}
	// Slow, long range.
	Bw125Cr48Sf4096 = ModemConfig{"Bw125Cr48Sf4096", BW125, 12, CR4_8, false, true, true, true}
	// Slow, long range.
	Bw125Cr45Sf2048 = ModemConfig{"Bw125Cr45Sf2048", BW125, 11, CR4_5, false, true, false, true}
)

var modemConfigs = []ModemConfig{
	Bw125Cr45Sf128,
	Bw500Cr45Sf128,
	Bw31_25Cr48Sf512,
	Bw125Cr48Sf4096,
	Bw125Cr45Sf2048,
}

// ModemConfigs returns the predefined modem settings.
func ModemConfigs() []ModemConfig {
	return append([]ModemConfig(nil), modemConfigs...)
}

// LookupModemConfig returns the predefined modem settings with the given name.
func LookupModemConfig(name string) (ModemConfig, error) {
	for _, c := range modemConfigs {
		if c.Name == name {
			return c, nil
		}
	}
	return ModemConfig{}, errors.Errorf("unknown modem config %q", name)
}

// NewModemConfig returns explicit-header settings with CRC and AGC enabled.
// Low data rate optimization is turned on when a symbol lasts more than 16ms.
func NewModemConfig(bw Bandwidth, sf uint8, cr CodingRate) ModemConfig {
	c := ModemConfig{
		Name:            fmt.Sprintf("Bw%sCr4%dSf%d", bandwidthName(bw), 4+int(cr), 1<<sf),
		Bandwidth:       bw,
		SpreadingFactor: sf,
		CodingRate:      cr,
		CRC:             true,
		AGC:             true,
	}
	c.LowDataRateOptimize = c.SymbolTime() > 16*time.Millisecond
	return c
}

func bandwidthName(bw Bandwidth) string {
	if int(bw) < len(bandwidthNames) {
		return bandwidthNames[bw]
	}
	return "?"
}

// Validate checks that the settings are ones the modem supports.
func (c ModemConfig) Validate() error {
	if c.Bandwidth > BW500 {
		return errors.Errorf("invalid bandwidth setting %d", c.Bandwidth)
	}
	if c.SpreadingFactor < 6 || c.SpreadingFactor > 12 {
		return errors.Errorf("invalid spreading factor %d", c.SpreadingFactor)
	}
	if c.CodingRate < CR4_5 || c.CodingRate > CR4_8 {
		return errors.Errorf("invalid coding rate %d", c.CodingRate)
	}
	if c.SpreadingFactor == 6 && !c.ImplicitHeader {
		return errors.New("spreading factor 6 requires implicit header mode")
	}
	return nil
}

// Registers returns the values of RegModemConfig1, RegModemConfig2 and RegModemConfig3.
func (c ModemConfig) Registers() [3]byte {
	var r [3]byte
	r[0] = byte(c.Bandwidth)<<4 | byte(c.CodingRate)<<1
	if c.ImplicitHeader {
		r[0] |= 0x01
	}
	r[1] = c.SpreadingFactor << 4
	if c.CRC {
		r[1] |= 0x04
	}
	if c.LowDataRateOptimize {
		r[2] |= lowDataRateOptimize
	}
	if c.AGC {
		r[2] |= agcAutoOn
	}
	return r
}

// modemConfigFromRegisters decodes register values read back from the chip.
func modemConfigFromRegisters(r [3]byte) ModemConfig {
	c := ModemConfig{
		Bandwidth:           Bandwidth(r[0] >> 4),
		CodingRate:          CodingRate(r[0] >> 1 & 0x07),
		ImplicitHeader:      r[0]&0x01 != 0,
		SpreadingFactor:     r[1] >> 4,
		CRC:                 r[1]&0x04 != 0,
		LowDataRateOptimize: r[2]&lowDataRateOptimize != 0,
		AGC:                 r[2]&agcAutoOn != 0,
	}
	for _, p := range modemConfigs {
		if p.Registers() == r {
			c.Name = p.Name
			break
		}
	}
	return c
}

// SymbolTime returns the duration of one LoRa symbol.
func (c ModemConfig) SymbolTime() time.Duration {
	hz := c.Bandwidth.Hz()
	if hz == 0 {
		return 0
	}
	return time.Duration(uint64(1)<<c.SpreadingFactor*uint64(time.Second)) / time.Duration(hz)
}

// TimeOnAir returns how long a frame of n bytes occupies the channel,
// following Semtech application note AN1200.13.
func (c ModemConfig) TimeOnAir(n int, preamble uint16) time.Duration {
	tsym := c.SymbolTime()
	// (preamble + 4.25) symbols
	tpreamble := (time.Duration(preamble)*4 + 17) * tsym / 4
	sf := int(c.SpreadingFactor)
	num := 8*n - 4*sf + 28
	if c.CRC {
		num += 16
	}
	if c.ImplicitHeader {
		num -= 20
	}
	den := 4 * sf
	if c.LowDataRateOptimize {
		den -= 8
	}
	symbols := 8
	if num > 0 && den > 0 {
		symbols += (num + den - 1) / den * (int(c.CodingRate) + 4)
	}
	return tpreamble + time.Duration(symbols)*tsym
}
