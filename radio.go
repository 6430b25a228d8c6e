package rfm9x

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// SX127x hardware-related constants.
const (
	FXOSC = 32000000 // Crystal frequency in Hz

	frfShift = 19 // Frf = f * 2^19 / FXOSC

	minFrequency    = 137000000
	maxFrequency    = 1020000000
	hfPortThreshold = 779000000

	interruptWait = 10 * time.Millisecond
)

func checkFrequency(freq uint32) error {
	if freq < minFrequency || freq > maxFrequency {
		return errors.Wrapf(ErrFrequencyRange, "%d Hz", freq)
	}
	return nil
}

// Frequency returns the radio's current frequency, in Hertz.
func (r *Radio) Frequency() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	frf := unmarshalUint24(r.readBurst(RegFrfMsb, 3))
	return uint32((uint64(frf)*FXOSC + 1<<(frfShift-1)) >> frfShift)
}

// SetFrequency sets the radio to the given frequency, in Hertz.
func (r *Radio) SetFrequency(freq uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setFrequency(freq)
}

func (r *Radio) setFrequency(freq uint32) error {
	if err := checkFrequency(freq); err != nil {
		return err
	}
	frf := (uint64(freq)<<frfShift + FXOSC/2) / FXOSC
	r.writeBurst(RegFrfMsb, marshalUint24(uint32(frf)))
	r.frequency = freq
	return r.err
}

// SetTxPower sets the transmitter output power in dBm.
// With the PA_BOOST pin (RFM95/96/97/98 modules) the range is 5 to 23;
// with the RFO pin it is -1 to 14. Values outside the range are clamped.
func (r *Radio) SetTxPower(power int, useRFO bool) {
	r.mu.Lock()
	r.setTxPower(power, useRFO)
	r.mu.Unlock()
}

func (r *Radio) setTxPower(power int, useRFO bool) {
	if useRFO {
		power = clamp(power, -1, 14)
		r.writeRegister(RegPaConfig, paRFOBase|byte(power+1))
		return
	}
	power = clamp(power, 5, 23)
	// Above 20 dBm the high power DAC adds 3 dB.
	if power > 20 {
		r.writeRegister(RegPaDac, paDacEnable)
		power -= 3
	} else {
		r.writeRegister(RegPaDac, paDacDisable)
	}
	r.writeRegister(RegPaConfig, PaSelect|byte(power-5))
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// ModemConfig returns the modem settings read back from the radio.
func (r *Radio) ModemConfig() ModemConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	var regs [3]byte
	copy(regs[:2], r.readBurst(RegModemConfig1, 2))
	regs[2] = r.readRegister(RegModemConfig3)
	return modemConfigFromRegisters(regs)
}

// SetModemConfig changes the modem settings.
func (r *Radio) SetModemConfig(c ModemConfig) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setModemConfig(c)
	return r.err
}

func (r *Radio) setModemConfig(c ModemConfig) {
	regs := c.Registers()
	r.writeRegister(RegModemConfig1, regs[0])
	r.writeRegister(RegModemConfig2, regs[1])
	r.writeRegister(RegModemConfig3, regs[2])
	r.modem = c
}

// SetPreambleLength sets the number of preamble symbols.
func (r *Radio) SetPreambleLength(n uint16) {
	r.mu.Lock()
	r.setPreambleLength(n)
	r.mu.Unlock()
}

func (r *Radio) setPreambleLength(n uint16) {
	r.writeBurst(RegPreambleMsb, marshalUint16(n))
	r.preamble = n
}

// PreambleLength returns the number of preamble symbols.
func (r *Radio) PreambleLength() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return unmarshalUint16(r.readBurst(RegPreambleMsb, 2))
}

// RSSI returns the current received signal strength in dBm.
func (r *Radio) RSSI() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.readRegister(RegRssiValue)) - rssiOffset(r.frequency)
}

// LastRSSI returns the signal strength of the last received frame in dBm.
func (r *Radio) LastRSSI() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRSSI
}

// LastSNR returns the signal to noise ratio of the last received frame in dB.
func (r *Radio) LastSNR() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSNR
}

// FrequencyError returns the estimated offset, in Hertz, between the
// transmitter of the last received frame and this radio's frequency.
func (r *Radio) FrequencyError() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	fei := unmarshalUint24(r.readBurst(RegFeiMsb, 3)) & 0xFFFFF
	v := int64(fei)
	// 20-bit two's complement
	if fei&0x80000 != 0 {
		v -= 1 << 20
	}
	bw := Bandwidth(r.readRegister(RegModemConfig1) >> 4).Hz()
	return int(float64(v) * (1 << 24) / FXOSC * float64(bw) / 500000)
}

// waitIRQ waits until one of the IRQ flags in mask is set or ctx is done.
// It returns the flags last read.
func (r *Radio) waitIRQ(ctx context.Context, mask byte) (byte, error) {
	for {
		r.mu.Lock()
		flags := r.readRegister(RegIrqFlags)
		err := r.err
		r.mu.Unlock()
		if err != nil {
			return flags, err
		}
		if flags&mask != 0 {
			return flags, nil
		}
		if err := ctx.Err(); err != nil {
			return flags, err
		}
		r.waitInterrupt(ctx)
	}
}

// waitInterrupt blocks until DIO0 rises or a short interval passes.
// Without an interrupt line it just sleeps for the poll interval.
func (r *Radio) waitInterrupt(ctx context.Context) {
	d := pollInterval
	if r.interrupt {
		d = interruptWait
	}
	if deadline, ok := ctx.Deadline(); ok {
		if rem := time.Until(deadline); rem < d {
			d = rem
		}
	}
	if d <= 0 {
		return
	}
	if !r.interrupt {
		time.Sleep(d)
		return
	}
	// radio.Hardware is not safe for concurrent use.
	r.mu.Lock()
	r.awaitInterrupt(d)
	r.mu.Unlock()
}

// SendTo transmits data to the node with the given address,
// using the given header ID and flags.
func (r *Radio) SendTo(to byte, data []byte, id byte, flags byte) error {
	h := Header{To: to, From: r.config.Address, ID: id, Flags: flags}
	r.mu.Lock()
	frame, err := r.encodeFrame(h, data)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.logf("sending %d-byte frame % X", len(frame), frame)
	return r.transmit(frame)
}

// Send broadcasts data to all nodes.
func (r *Radio) Send(data []byte) error {
	return r.SendTo(Broadcast, data, r.NextID(), 0)
}

func (r *Radio) transmit(frame []byte) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	if r.config.CADTimeout > 0 {
		if err := r.waitChannelClear(); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.setMode(ModeStandby)
	// The TX and RX buffers share the FIFO, so a received frame
	// still waiting there must be read before it is overwritten.
	if r.readRegister(RegIrqFlags)&(IrqRxDone|IrqPayloadCrcError) != 0 {
		if f := r.readFrame(); f != nil {
			r.unread = append(r.unread, f)
		}
	}
	r.writeRegister(RegFifoAddrPtr, 0)
	r.writeBurst(RegFifo, frame)
	r.writeRegister(RegPayloadLength, byte(len(frame)))
	r.writeRegister(RegDioMapping1, dio0TxDone)
	r.setMode(ModeTX)
	timeout := 2*r.modem.TimeOnAir(len(frame), r.preamble) + defaultTimeout
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	flags, err := r.waitIRQ(ctx, IrqTxDone)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeRegister(RegIrqFlags, IrqTxDone)
	// The chip drops back to standby by itself once the frame is sent;
	// after a timeout this aborts the transmission.
	r.setMode(ModeStandby)
	if r.rxEnabled {
		r.startRX()
	}
	if r.err != nil {
		return r.err
	}
	if flags&IrqTxDone == 0 {
		if err != nil && err != context.DeadlineExceeded {
			return err
		}
		return errors.Wrapf(ErrTxTimeout, "after %v", timeout)
	}
	r.stats.Packets.Sent++
	r.stats.Bytes.Sent += len(frame)
	return nil
}

// Receive waits for a datagram addressed to this node, or to any node
// when ReceiveAll is configured. Acknowledgements are handled internally
// and never returned. Receive returns ctx.Err() when ctx is done first.
func (r *Radio) Receive(ctx context.Context) (*Packet, error) {
	for {
		if p := r.popPending(); p != nil {
			return p, nil
		}
		p, err := r.receiveFrame(ctx)
		if p != nil {
			return p, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Listen calls handler for every datagram received until ctx is done.
func (r *Radio) Listen(ctx context.Context, handler func(*Packet)) error {
	for {
		p, err := r.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		handler(p)
	}
}

type frame struct {
	data     []byte
	rssi     int
	snr      int
	received time.Time
}

// receiveFrame waits for one frame and processes it.
// It returns nil if the frame was dropped or consumed internally.
func (r *Radio) receiveFrame(ctx context.Context) (*Packet, error) {
	r.mu.Lock()
	if len(r.unread) != 0 {
		f := r.unread[0]
		r.unread = r.unread[1:]
		r.mu.Unlock()
		return r.handleFrame(f), nil
	}
	r.rxEnabled = true
	if !r.busy() {
		r.startRX()
	}
	r.mu.Unlock()
	flags, err := r.waitIRQ(ctx, IrqRxDone|IrqPayloadCrcError)
	if flags&(IrqRxDone|IrqPayloadCrcError) == 0 {
		return nil, err
	}
	r.mu.Lock()
	f := r.readFrame()
	err = r.err
	r.mu.Unlock()
	if err != nil || f == nil {
		return nil, err
	}
	return r.handleFrame(f), nil
}

// readFrame copies a received frame out of the FIFO and clears the RX flags.
// Another goroutine may have taken the frame already, in which case it returns nil.
func (r *Radio) readFrame() *frame {
	flags := r.readRegister(RegIrqFlags)
	if flags&(IrqRxDone|IrqPayloadCrcError) == 0 {
		return nil
	}
	r.writeRegister(RegIrqFlags, irqRxMask)
	if flags&IrqPayloadCrcError != 0 {
		r.logf("dropping frame with CRC error")
		return nil
	}
	n := int(r.readRegister(RegRxNbBytes))
	r.writeRegister(RegFifoAddrPtr, r.readRegister(RegFifoRxCurrentAddr))
	data := r.readBurst(RegFifo, n)
	snr := int(int8(r.readRegister(RegPktSnrValue))) / 4
	rssi := packetRSSI(r.readRegister(RegPktRssiValue), snr, r.frequency)
	r.lastRSSI = rssi
	r.lastSNR = snr
	r.stats.Packets.Received++
	r.stats.Bytes.Received += n
	r.logf("received %d-byte frame % X (RSSI %d, SNR %d)", n, data, rssi, snr)
	return &frame{data: data, rssi: rssi, snr: snr, received: time.Now()}
}

func (r *Radio) handleFrame(f *frame) *Packet {
	if len(f.data) < HeaderLen {
		r.logf("dropping %d-byte frame", len(f.data))
		return nil
	}
	h := unmarshalHeader(f.data)
	addr := r.config.Address
	if h.To != addr && h.To != Broadcast && !r.config.ReceiveAll {
		return nil
	}
	r.mu.Lock()
	payload, err := r.decodePayload(f.data)
	r.mu.Unlock()
	if err != nil {
		r.logf("dropping frame %d from %d: %v", h.ID, h.From, err)
		return nil
	}
	if h.IsAck() {
		if h.To == addr {
			r.deliverAck(h)
		}
		return nil
	}
	if h.To == addr && r.config.Acks {
		r.sendAck(h)
		if r.duplicate(h) {
			r.logf("dropping duplicate frame %d from %d", h.ID, h.From)
			return nil
		}
	}
	return &Packet{
		Header:   h,
		Payload:  payload,
		RSSI:     f.rssi,
		SNR:      f.snr,
		Received: f.received,
	}
}

// ChannelActive runs channel activity detection and reports
// whether a LoRa preamble was heard.
func (r *Radio) ChannelActive(ctx context.Context) (bool, error) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return r.channelActive(ctx)
}

func (r *Radio) channelActive(ctx context.Context) (bool, error) {
	r.mu.Lock()
	r.setMode(ModeStandby)
	r.writeRegister(RegIrqFlags, irqCadMask)
	r.writeRegister(RegDioMapping1, dio0CadDone)
	r.setMode(ModeCAD)
	r.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	flags, err := r.waitIRQ(ctx, IrqCadDone)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeRegister(RegIrqFlags, irqCadMask)
	r.setMode(ModeStandby)
	if r.rxEnabled {
		r.startRX()
	}
	if r.err != nil {
		return false, r.err
	}
	if flags&IrqCadDone == 0 {
		if err != nil && err != context.DeadlineExceeded {
			return false, err
		}
		return false, ErrCADTimeout
	}
	return flags&IrqCadDetected != 0, nil
}

// waitChannelClear backs off while other traffic is detected,
// giving up after the configured CAD timeout.
func (r *Radio) waitChannelClear() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.CADTimeout)
	defer cancel()
	for {
		active, err := r.channelActive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ErrChannelBusy
			}
			return err
		}
		if !active {
			return nil
		}
		backoff := time.Duration(1+rand.Intn(10)) * 10 * time.Millisecond
		select {
		case <-ctx.Done():
			return ErrChannelBusy
		case <-time.After(backoff):
		}
	}
}
