package rfm9x

import (
	"errors"
	"testing"

	"github.com/ecc1/radio"
)

func TestInit(t *testing.T) {
	r, chip := openTest(t, testConfig(1))
	if v := r.Version(); v != chipVersion {
		t.Errorf("Version() == %02X, want %02X", v, chipVersion)
	}
	if op := chip.reg(RegOpMode); op != LongRangeMode|byte(ModeStandby) {
		t.Errorf("RegOpMode == %02X, want %02X", op, LongRangeMode|byte(ModeStandby))
	}
	if s := r.State(); s != "Standby" {
		t.Errorf("State() == %q, want Standby", s)
	}
	if n := r.PreambleLength(); n != defaultPreamble {
		t.Errorf("PreambleLength() == %d, want %d", n, defaultPreamble)
	}
	if m := r.ModemConfig(); m != Bw125Cr45Sf128 {
		t.Errorf("ModemConfig() == %+v, want %+v", m, Bw125Cr45Sf128)
	}
	if f := r.Frequency(); f != defaultFrequency {
		t.Errorf("Frequency() == %d, want %d", f, defaultFrequency)
	}
}

func TestInitFailure(t *testing.T) {
	chip := newFakeChip()
	chip.stuckFSK = true
	r := newRadio(testConfig(1), chip, nil)
	if err := r.Error(); !errors.Is(err, ErrInitFailed) {
		t.Errorf("Error() == %v, want %v", err, ErrInitFailed)
	}
}

func TestReset(t *testing.T) {
	pin := &fakePin{}
	r := newRadio(testConfig(1), newFakeChip(), pin)
	if err := r.Error(); err != nil {
		t.Fatal(err)
	}
	want := []bool{true, false}
	if len(pin.writes) != len(want) || pin.writes[0] != want[0] || pin.writes[1] != want[1] {
		t.Errorf("reset pin writes == %v, want %v", pin.writes, want)
	}
}

func TestFlavor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SPIDevice = "/dev/spidev1.0"
	cfg.SPISpeed = 8000000
	cfg.CustomCS = 7
	cfg.InterruptPin = 22
	var f radio.HardwareFlavor = flavor{config: cfg}
	if f.SPIDevice() != cfg.SPIDevice || f.Speed() != cfg.SPISpeed || f.CustomCS() != 7 || f.InterruptPin() != 22 {
		t.Errorf("flavor does not follow the configuration")
	}
	cases := []struct {
		addr        byte
		read, write byte
	}{
		{RegFifo, 0x00, 0x80},
		{RegOpMode, 0x01, 0x81},
		{RegVersion, 0x42, 0xC2},
		{0xC2, 0x42, 0xC2},
	}
	for _, c := range cases {
		if v := f.ReadSingleAddress(c.addr); v != c.read {
			t.Errorf("ReadSingleAddress(%02X) == %02X, want %02X", c.addr, v, c.read)
		}
		if v := f.ReadBurstAddress(c.addr); v != c.read {
			t.Errorf("ReadBurstAddress(%02X) == %02X, want %02X", c.addr, v, c.read)
		}
		if v := f.WriteSingleAddress(c.addr); v != c.write {
			t.Errorf("WriteSingleAddress(%02X) == %02X, want %02X", c.addr, v, c.write)
		}
		if v := f.WriteBurstAddress(c.addr); v != c.write {
			t.Errorf("WriteBurstAddress(%02X) == %02X, want %02X", c.addr, v, c.write)
		}
	}
}

func TestOpenWithoutInterruptPin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InterruptPin = -1
	r := Open(cfg)
	if r.Error() == nil {
		t.Error("Open succeeded without an interrupt pin")
	}
	if r.Hardware() != nil {
		t.Error("Hardware() != nil after failed Open")
	}
}

func TestHardwareError(t *testing.T) {
	r, chip := openTest(t, testConfig(1))
	failure := errors.New("spi: transfer failed")
	chip.SetError(failure)
	r.WriteRegister(RegFifoAddrPtr, 0)
	if err := r.Error(); !errors.Is(err, failure) {
		t.Fatalf("Error() == %v, want %v", err, failure)
	}
	chip.SetError(nil)
	if v := r.ReadRegister(RegVersion); v != 0 {
		t.Errorf("ReadRegister after failure == %02X, want 0", v)
	}
	if f := r.Frequency(); f != 0 {
		t.Errorf("Frequency() after failure == %d, want 0", f)
	}
	chip.SetError(failure)
	r.SetError(nil)
	if v := r.Version(); v != chipVersion {
		t.Errorf("Version() after SetError(nil) == %02X, want %02X", v, chipVersion)
	}
}

func TestClose(t *testing.T) {
	r, chip := openTest(t, testConfig(1))
	r.Close()
	if err := r.Error(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !chip.closed {
		t.Error("SPI device not closed")
	}
	if Mode(chip.reg(RegOpMode)&modeMask) != ModeSleep {
		t.Errorf("radio not asleep after Close")
	}
	r.ReadRegister(RegVersion)
	if err := r.Error(); !errors.Is(err, ErrClosed) {
		t.Errorf("Error() after Close == %v, want %v", err, ErrClosed)
	}
}

func TestSetFrequency(t *testing.T) {
	cases := []struct {
		freq uint32
		frf  [3]byte
	}{
		{915000000, [3]byte{0xE4, 0xC0, 0x00}},
		{868000000, [3]byte{0xD9, 0x00, 0x00}},
		{433000000, [3]byte{0x6C, 0x40, 0x00}},
		{434000000, [3]byte{0x6C, 0x80, 0x00}},
	}
	r, chip := openTest(t, testConfig(1))
	for _, c := range cases {
		if err := r.SetFrequency(c.freq); err != nil {
			t.Fatal(err)
		}
		frf := [3]byte{chip.reg(RegFrfMsb), chip.reg(RegFrfMid), chip.reg(RegFrfLsb)}
		if frf != c.frf {
			t.Errorf("SetFrequency(%d) wrote % X, want % X", c.freq, frf, c.frf)
		}
		if f := r.Frequency(); f != c.freq {
			t.Errorf("Frequency() == %d, want %d", f, c.freq)
		}
	}
	for _, f := range []uint32{0, 136999999, 1020000001} {
		if err := r.SetFrequency(f); !errors.Is(err, ErrFrequencyRange) {
			t.Errorf("SetFrequency(%d) == %v, want %v", f, err, ErrFrequencyRange)
		}
	}
	if err := r.Error(); err != nil {
		t.Errorf("out of range frequency set device error %v", err)
	}
}

func TestSetTxPower(t *testing.T) {
	cases := []struct {
		power    int
		useRFO   bool
		paConfig byte
		paDac    byte
	}{
		{13, false, 0x88, paDacDisable},
		{20, false, 0x8F, paDacDisable},
		{23, false, 0x8F, paDacEnable},
		{30, false, 0x8F, paDacEnable},
		{0, false, 0x80, paDacDisable},
		{14, true, 0x7F, paDacDisable},
		{-5, true, 0x70, paDacDisable},
	}
	r, chip := openTest(t, testConfig(1))
	for _, c := range cases {
		chip.mu.Lock()
		chip.regs[RegPaDac] = paDacDisable
		chip.mu.Unlock()
		r.SetTxPower(c.power, c.useRFO)
		if v := chip.reg(RegPaConfig); v != c.paConfig {
			t.Errorf("SetTxPower(%d, %v): RegPaConfig == %02X, want %02X", c.power, c.useRFO, v, c.paConfig)
		}
		if v := chip.reg(RegPaDac); v != c.paDac {
			t.Errorf("SetTxPower(%d, %v): RegPaDac == %02X, want %02X", c.power, c.useRFO, v, c.paDac)
		}
	}
}

func TestSetModemConfig(t *testing.T) {
	r, chip := openTest(t, testConfig(1))
	if err := r.SetModemConfig(Bw125Cr48Sf4096); err != nil {
		t.Fatal(err)
	}
	regs := [3]byte{chip.reg(RegModemConfig1), chip.reg(RegModemConfig2), chip.reg(RegModemConfig3)}
	if regs != [3]byte{0x78, 0xC4, 0x0C} {
		t.Errorf("modem registers == % X", regs)
	}
	if err := r.SetModemConfig(ModemConfig{Bandwidth: BW125, SpreadingFactor: 13, CodingRate: CR4_5}); err == nil {
		t.Error("SetModemConfig accepted spreading factor 13")
	}
}

func TestFrequencyError(t *testing.T) {
	cases := []struct {
		fei [3]byte
		hz  int
	}{
		{[3]byte{0x00, 0x10, 0x00}, 536},
		{[3]byte{0x0F, 0xF0, 0x00}, -536},
		{[3]byte{0x00, 0x00, 0x00}, 0},
	}
	r, chip := openTest(t, testConfig(1))
	for _, c := range cases {
		chip.mu.Lock()
		copy(chip.regs[RegFeiMsb:], c.fei[:])
		chip.mu.Unlock()
		if hz := r.FrequencyError(); hz != c.hz {
			t.Errorf("FrequencyError() with % X == %d, want %d", c.fei, hz, c.hz)
		}
	}
}

func TestRSSI(t *testing.T) {
	cases := []struct {
		raw  byte
		snr  int
		freq uint32
		rssi int
	}{
		{100, 10, 915000000, 106 - 157},
		{100, -8, 915000000, 92 - 157},
		{100, 10, 433000000, 106 - 164},
		{60, 0, 868000000, 64 - 157},
	}
	for _, c := range cases {
		if rssi := packetRSSI(c.raw, c.snr, c.freq); rssi != c.rssi {
			t.Errorf("packetRSSI(%d, %d, %d) == %d, want %d", c.raw, c.snr, c.freq, rssi, c.rssi)
		}
	}
	r, chip := openTest(t, testConfig(1))
	chip.mu.Lock()
	chip.regs[RegRssiValue] = 50
	chip.mu.Unlock()
	if rssi := r.RSSI(); rssi != 50-157 {
		t.Errorf("RSSI() == %d, want %d", rssi, 50-157)
	}
}

func TestModeString(t *testing.T) {
	if s := ModeRXContinuous.String(); s != "RXContinuous" {
		t.Errorf("String() == %q", s)
	}
	if s := Mode(0x0F).String(); s != "Mode(0F)" {
		t.Errorf("String() == %q", s)
	}
}
