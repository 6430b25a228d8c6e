package rfm9x

import (
	"crypto/cipher"
	"hash"
	"log"
	"sync"
	"time"

	"github.com/ecc1/gpio"
	"github.com/ecc1/radio"
	"github.com/pkg/errors"
)

const (
	defaultTimeout = 50 * time.Millisecond
	pollInterval   = 1 * time.Millisecond

	verboseSPI = false
)

// hardware is the part of *radio.Hardware used by the driver.
type hardware interface {
	ReadRegister(byte) byte
	WriteRegister(byte, byte)
	ReadBurst(byte, int) []byte
	WriteBurst(byte, []byte)
	AwaitInterrupt(time.Duration)
	Error() error
	SetError(error)
	Close()
}

var (
	_ hardware             = (*radio.Hardware)(nil)
	_ radio.HardwareFlavor = flavor{}
)

// flavor tells radio.Open how to reach an SX127x:
// bit 7 of the address byte selects a write.
type flavor struct {
	config Config
}

func (f flavor) SPIDevice() string { return f.config.SPIDevice }
func (f flavor) Speed() int        { return f.config.SPISpeed }
func (f flavor) CustomCS() int     { return f.config.CustomCS }
func (f flavor) InterruptPin() int { return f.config.InterruptPin }

func (flavor) ReadSingleAddress(addr byte) byte  { return addr & SPIReadMode }
func (flavor) ReadBurstAddress(addr byte) byte   { return addr & SPIReadMode }
func (flavor) WriteSingleAddress(addr byte) byte { return addr | SPIWriteMode }
func (flavor) WriteBurstAddress(addr byte) byte  { return addr | SPIWriteMode }

// Statistics holds the packet and byte counts of a radio device.
type Statistics struct {
	Packets struct {
		Sent     int
		Received int
	}
	Bytes struct {
		Sent     int
		Received int
	}
}

// Radio represents an open radio device.
type Radio struct {
	config    Config
	hw        hardware
	resetPin  gpio.OutputPin
	interrupt bool

	// txMu serializes transmissions and channel activity detection.
	txMu sync.Mutex

	// mu guards the hardware and everything below.
	mu        sync.Mutex
	mode      Mode
	rxEnabled bool
	frequency uint32
	modem     ModemConfig
	preamble  uint16
	lastRSSI  int
	lastSNR   int
	lastID    byte
	seen      map[byte]byte
	unread    []*frame
	pending   []*Packet
	acks      map[uint16]*ackWait
	block     cipher.Block
	mac       hash.Hash
	stats     Statistics
	err       error
}

// Open opens the radio device described by cfg and initializes it.
// Check Error() on the result before using it.
func Open(cfg Config) *Radio {
	r := &Radio{config: cfg}
	if r.err = cfg.Validate(); r.err != nil {
		return r
	}
	if cfg.InterruptPin < 0 {
		r.err = errors.New("no interrupt pin configured")
		return r
	}
	if cfg.Verbose {
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.LUTC)
	}
	hw := radio.Open(flavor{config: cfg})
	if err := hw.Error(); err != nil {
		r.err = errors.Wrapf(err, "opening %s", cfg.SPIDevice)
		return r
	}
	var reset gpio.OutputPin
	if cfg.ResetPin >= 0 {
		var err error
		reset, err = gpio.Output(cfg.ResetPin, true, false)
		if err != nil {
			hw.Close()
			r.err = errors.Wrapf(err, "reset pin %d", cfg.ResetPin)
			return r
		}
	}
	r = newRadio(cfg, hw, reset)
	if r.err != nil {
		r.closeWith(r.err)
	}
	return r
}

// newRadio wraps already opened hardware.
func newRadio(cfg Config, hw hardware, reset gpio.OutputPin) *Radio {
	r := &Radio{
		config:    cfg,
		hw:        hw,
		resetPin:  reset,
		interrupt: cfg.InterruptPin >= 0 && !cfg.Poll,
	}
	r.init()
	return r
}

func (r *Radio) init() {
	r.seen = make(map[byte]byte)
	r.acks = make(map[uint16]*ackWait)
	r.Reset()
	r.mu.Lock()
	defer r.mu.Unlock()
	// LoRa mode can only be selected while the chip is asleep.
	r.writeRegister(RegOpMode, LongRangeMode|byte(ModeSleep))
	time.Sleep(10 * time.Millisecond)
	if r.err == nil && r.readRegister(RegOpMode) != LongRangeMode|byte(ModeSleep) {
		r.err = ErrInitFailed
		return
	}
	r.mode = ModeSleep
	r.writeRegister(RegFifoTxBaseAddr, 0)
	r.writeRegister(RegFifoRxBaseAddr, 0)
	r.setMode(ModeStandby)

	modem, err := LookupModemConfig(r.config.Modem)
	if err != nil {
		r.err = err
		return
	}
	r.setModemConfig(modem)
	r.setPreambleLength(r.config.Preamble)
	if r.err == nil {
		r.err = r.setFrequency(r.config.Frequency)
	}
	r.setTxPower(r.config.TxPower, r.config.UseRFO)
	if r.err == nil {
		r.err = r.setKeys()
	}
	if r.config.Verbose {
		log.Printf("%s: version %02X, %d Hz, %s", r.Name(), r.readRegister(RegVersion), r.frequency, modem.Name)
	}
}

// Close puts the radio to sleep and closes the radio device.
func (r *Radio) Close() {
	r.closeWith(nil)
}

func (r *Radio) closeWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hw == nil {
		if err != nil {
			r.err = err
		}
		return
	}
	if r.err == nil {
		r.setMode(ModeSleep)
	}
	r.hw.Close()
	cerr := r.hw.Error()
	r.hw = nil
	switch {
	case err != nil:
		r.err = err
	case cerr != nil:
		r.err = cerr
	}
}

// Name returns the radio's name.
func (r *Radio) Name() string {
	return "RFM9x"
}

// Device returns the pathname of the radio's device.
func (r *Radio) Device() string {
	return r.config.SPIDevice
}

// Address returns this node's address.
func (r *Radio) Address() byte {
	return r.config.Address
}

// Version returns the contents of the chip version register.
func (r *Radio) Version() byte {
	return r.ReadRegister(RegVersion)
}

// Mode returns the radio's operating mode.
func (r *Radio) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Mode(r.readRegister(RegOpMode) & modeMask)
}

// State returns the radio's operating mode as a string.
func (r *Radio) State() string {
	return r.Mode().String()
}

// Reset pulses the (active low) reset line, if one is wired.
func (r *Radio) Reset() {
	if r.Error() != nil || r.resetPin == nil {
		return
	}
	_ = r.resetPin.Write(true)
	time.Sleep(100 * time.Microsecond)
	r.SetError(r.resetPin.Write(false))
	time.Sleep(5 * time.Millisecond)
}

// Init sets the radio frequency.
func (r *Radio) Init(frequency uint32) {
	if err := r.SetFrequency(frequency); err != nil {
		r.SetError(err)
	}
}

// Statistics returns the byte and packet counts for the radio device.
func (r *Radio) Statistics() Statistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Hardware returns the radio's hardware information,
// or nil if the radio was not opened with Open.
func (r *Radio) Hardware() *radio.Hardware {
	r.mu.Lock()
	defer r.mu.Unlock()
	hw, _ := r.hw.(*radio.Hardware)
	return hw
}

// Error returns the error state of the radio device.
func (r *Radio) Error() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// SetError sets the error state of the radio device.
func (r *Radio) SetError(err error) {
	r.mu.Lock()
	r.err = err
	if r.hw != nil {
		r.hw.SetError(err)
	}
	r.mu.Unlock()
}

// ReadRegister returns the value of an SX127x register.
func (r *Radio) ReadRegister(addr byte) byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readRegister(addr)
}

// WriteRegister writes a value to an SX127x register.
func (r *Radio) WriteRegister(addr byte, value byte) {
	r.mu.Lock()
	r.writeRegister(addr, value)
	r.mu.Unlock()
}

// ReadBurst reads n consecutive registers, or n bytes from the FIFO.
func (r *Radio) ReadBurst(addr byte, n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readBurst(addr, n)
}

// WriteBurst writes consecutive registers, or data to the FIFO.
func (r *Radio) WriteBurst(addr byte, data []byte) {
	r.mu.Lock()
	r.writeBurst(addr, data)
	r.mu.Unlock()
}

// Sleep puts the radio in its lowest power mode.
func (r *Radio) Sleep() {
	r.mu.Lock()
	r.rxEnabled = false
	r.setMode(ModeSleep)
	r.mu.Unlock()
}

// Standby stops reception and leaves the radio idle.
func (r *Radio) Standby() {
	r.mu.Lock()
	r.rxEnabled = false
	r.setMode(ModeStandby)
	r.mu.Unlock()
}

// StartReceive puts the radio in continuous receive mode.
// The radio returns to it after each transmission until Standby or Sleep is called.
func (r *Radio) StartReceive() {
	r.mu.Lock()
	r.rxEnabled = true
	if !r.busy() {
		r.startRX()
	}
	r.mu.Unlock()
}

// The methods below expect r.mu to be held.

// ready reports whether the hardware can be used.
func (r *Radio) ready() bool {
	if r.err != nil {
		return false
	}
	if r.hw == nil {
		r.err = ErrClosed
		return false
	}
	return true
}

func (r *Radio) readRegister(addr byte) byte {
	if !r.ready() {
		return 0
	}
	v := r.hw.ReadRegister(addr)
	r.err = r.hw.Error()
	if verboseSPI {
		log.Printf("read %02X -> %02X", addr, v)
	}
	return v
}

func (r *Radio) writeRegister(addr byte, value byte) {
	if !r.ready() {
		return
	}
	if verboseSPI {
		log.Printf("write %02X <- %02X", addr, value)
	}
	r.hw.WriteRegister(addr, value)
	r.err = r.hw.Error()
}

// readBurst always returns n bytes, zeros after an error.
func (r *Radio) readBurst(addr byte, n int) []byte {
	buf := make([]byte, n)
	if !r.ready() {
		return buf
	}
	copy(buf, r.hw.ReadBurst(addr, n))
	r.err = r.hw.Error()
	if verboseSPI {
		log.Printf("read %02X -> % X", addr, buf)
	}
	return buf
}

func (r *Radio) writeBurst(addr byte, data []byte) {
	if !r.ready() {
		return
	}
	if verboseSPI {
		log.Printf("write %02X <- % X", addr, data)
	}
	r.hw.WriteBurst(addr, data)
	r.err = r.hw.Error()
}

// awaitInterrupt waits up to d for DIO0 to go high.
// A timeout is not an error: the caller reads the flags again either way.
func (r *Radio) awaitInterrupt(d time.Duration) {
	if !r.ready() {
		return
	}
	r.hw.AwaitInterrupt(d)
	err := r.hw.Error()
	var timeout gpio.TimeoutError
	if errors.As(err, &timeout) {
		r.hw.SetError(nil)
		return
	}
	r.err = err
}

func (r *Radio) setMode(m Mode) {
	if r.mode == m && m != ModeTX && m != ModeCAD {
		return
	}
	r.writeRegister(RegOpMode, LongRangeMode|byte(m))
	r.mode = m
}

// busy reports whether a transmission or channel activity detection is in progress.
func (r *Radio) busy() bool {
	return r.mode == ModeTX || r.mode == ModeCAD
}

func (r *Radio) startRX() {
	if r.mode == ModeRXContinuous {
		return
	}
	r.writeRegister(RegDioMapping1, dio0RxDone)
	r.setMode(ModeRXContinuous)
}

func (r *Radio) logf(format string, args ...interface{}) {
	if r.config.Verbose {
		log.Printf(format, args...)
	}
}
