package rfm9x

import (
	"sync"
	"testing"
	"time"

	"github.com/ecc1/gpio"
)

// fakeChip emulates the SX127x registers, FIFO and the mode transitions
// the driver depends on. Transmitted frames are handed to the ether,
// which queues them for every other chip until that chip is receiving.
type fakeChip struct {
	mu       sync.Mutex
	regs     [numRegisters]byte
	fifo     [256]byte
	incoming [][]byte
	sent     [][]byte
	ether    *ether

	rssi      byte
	snr       int8
	crcError  bool
	cadActive bool
	stuckFSK  bool
	closed    bool
	waits     int
	err       error
}

func newFakeChip() *fakeChip {
	c := &fakeChip{rssi: 100, snr: 40}
	c.regs[RegVersion] = chipVersion
	c.regs[RegOpMode] = byte(ModeStandby)
	return c
}

func (c *fakeChip) ReadRegister(addr byte) byte {
	return c.ReadBurst(addr, 1)[0]
}

func (c *fakeChip) ReadBurst(addr byte, n int) []byte {
	buf := make([]byte, n)
	c.access(addr, buf, false)
	return buf
}

func (c *fakeChip) WriteRegister(addr byte, value byte) {
	c.access(addr, []byte{value}, true)
}

func (c *fakeChip) WriteBurst(addr byte, data []byte) {
	c.access(addr, append([]byte(nil), data...), true)
}

// access reads or writes consecutive registers, or the FIFO.
func (c *fakeChip) access(addr byte, buf []byte, write bool) {
	c.mu.Lock()
	var out []byte
	for i := range buf {
		if write {
			if f := c.write(addr, buf[i]); f != nil {
				out = f
			}
		} else {
			buf[i] = c.read(addr)
		}
		if addr != RegFifo {
			addr++
		}
	}
	c.mu.Unlock()
	if out != nil && c.ether != nil {
		c.ether.send(c, out)
	}
}

// AwaitInterrupt never sees an edge: like a real pin that stays low,
// it reports a timeout after waiting at most a millisecond.
func (c *fakeChip) AwaitInterrupt(d time.Duration) {
	c.mu.Lock()
	c.waits++
	c.mu.Unlock()
	if d > time.Millisecond {
		d = time.Millisecond
	}
	time.Sleep(d)
	c.SetError(gpio.TimeoutError{})
}

func (c *fakeChip) Error() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeChip) SetError(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *fakeChip) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeChip) read(addr byte) byte {
	if addr == RegFifo {
		v := c.fifo[c.regs[RegFifoAddrPtr]]
		c.regs[RegFifoAddrPtr]++
		return v
	}
	return c.regs[addr]
}

// write returns a frame when the write started a transmission.
func (c *fakeChip) write(addr byte, v byte) []byte {
	switch addr {
	case RegFifo:
		c.fifo[c.regs[RegFifoAddrPtr]] = v
		c.regs[RegFifoAddrPtr]++
	case RegIrqFlags:
		c.regs[RegIrqFlags] &^= v
		c.deliver()
	case RegOpMode:
		if c.stuckFSK {
			v &^= LongRangeMode
		}
		c.regs[RegOpMode] = v
		return c.modeChanged()
	default:
		c.regs[addr] = v
	}
	return nil
}

func (c *fakeChip) mode() Mode {
	return Mode(c.regs[RegOpMode] & modeMask)
}

func (c *fakeChip) setMode(m Mode) {
	c.regs[RegOpMode] = c.regs[RegOpMode]&^modeMask | byte(m)
}

func (c *fakeChip) modeChanged() []byte {
	switch c.mode() {
	case ModeTX:
		base := c.regs[RegFifoTxBaseAddr]
		n := int(c.regs[RegPayloadLength])
		f := make([]byte, n)
		for i := range f {
			f[i] = c.fifo[byte(int(base)+i)]
		}
		c.sent = append(c.sent, f)
		c.regs[RegIrqFlags] |= IrqTxDone
		c.setMode(ModeStandby)
		return f
	case ModeCAD:
		c.regs[RegIrqFlags] |= IrqCadDone
		if c.cadActive {
			c.regs[RegIrqFlags] |= IrqCadDetected
		}
		c.setMode(ModeStandby)
	case ModeRXContinuous:
		c.deliver()
	}
	return nil
}

// deliver moves the next queued frame into the FIFO if the chip is
// receiving and the previous frame has been read.
func (c *fakeChip) deliver() {
	if c.mode() != ModeRXContinuous || len(c.incoming) == 0 {
		return
	}
	if c.regs[RegIrqFlags]&(IrqRxDone|IrqPayloadCrcError) != 0 {
		return
	}
	f := c.incoming[0]
	c.incoming = c.incoming[1:]
	base := c.regs[RegFifoRxBaseAddr]
	for i, b := range f {
		c.fifo[byte(int(base)+i)] = b
	}
	c.regs[RegFifoRxCurrentAddr] = base
	c.regs[RegRxNbBytes] = byte(len(f))
	c.regs[RegPktRssiValue] = c.rssi
	c.regs[RegPktSnrValue] = byte(c.snr)
	c.regs[RegIrqFlags] |= IrqRxDone | IrqValidHeader
	if c.crcError {
		c.regs[RegIrqFlags] |= IrqPayloadCrcError
	}
}

func (c *fakeChip) inject(f []byte) {
	c.mu.Lock()
	c.incoming = append(c.incoming, append([]byte(nil), f...))
	c.deliver()
	c.mu.Unlock()
}

func (c *fakeChip) reg(addr byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[addr]
}

func (c *fakeChip) sentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

type ether struct {
	mu    sync.Mutex
	chips []*fakeChip
}

func (e *ether) attach(c *fakeChip) {
	e.mu.Lock()
	e.chips = append(e.chips, c)
	e.mu.Unlock()
	c.ether = e
}

func (e *ether) send(from *fakeChip, f []byte) {
	e.mu.Lock()
	chips := append([]*fakeChip(nil), e.chips...)
	e.mu.Unlock()
	for _, c := range chips {
		if c != from {
			c.inject(f)
		}
	}
}

type fakePin struct {
	mu     sync.Mutex
	writes []bool
}

func (p *fakePin) Write(v bool) error {
	p.mu.Lock()
	p.writes = append(p.writes, v)
	p.mu.Unlock()
	return nil
}

func testConfig(addr byte) Config {
	cfg := DefaultConfig()
	cfg.InterruptPin = -1
	cfg.ResetPin = -1
	cfg.Address = addr
	cfg.RetryTimeout = 20 * time.Millisecond
	return cfg
}

func openTest(t *testing.T, cfg Config) (*Radio, *fakeChip) {
	t.Helper()
	chip := newFakeChip()
	r := newRadio(cfg, chip, nil)
	if err := r.Error(); err != nil {
		t.Fatalf("newRadio: %v", err)
	}
	return r, chip
}
