package rfm9x

import (
	"fmt"
	"time"
)

// RadioHead-compatible framing: every frame starts with a 4-byte header.
const (
	HeaderLen     = 4
	MaxFrameLen   = 255
	MaxPayloadLen = MaxFrameLen - HeaderLen

	// Broadcast is the destination address every node accepts.
	Broadcast = 0xFF

	// FlagAck marks an acknowledgement frame.
	FlagAck = 0x80
)

// Header is the RadioHead datagram header.
type Header struct {
	To    byte
	From  byte
	ID    byte
	Flags byte
}

func (h Header) marshal() []byte {
	return []byte{h.To, h.From, h.ID, h.Flags}
}

func unmarshalHeader(b []byte) Header {
	return Header{To: b[0], From: b[1], ID: b[2], Flags: b[3]}
}

// IsAck reports whether the frame is an acknowledgement.
func (h Header) IsAck() bool {
	return h.Flags&FlagAck != 0
}

// Packet is a received datagram.
type Packet struct {
	Header
	Payload  []byte
	RSSI     int // dBm
	SNR      int // dB
	Received time.Time
}

func (p *Packet) String() string {
	return fmt.Sprintf("from %d to %d id %d flags %02X rssi %d snr %d: % X",
		p.From, p.To, p.ID, p.Flags, p.RSSI, p.SNR, p.Payload)
}

// packetRSSI converts RegPktRssiValue to dBm, as in data sheet section 5.5.5.
func packetRSSI(raw byte, snr int, frequency uint32) int {
	rssi := int(raw)
	if snr < 0 {
		rssi += snr
	} else {
		rssi = rssi * 16 / 15
	}
	return rssi - rssiOffset(frequency)
}

func rssiOffset(frequency uint32) int {
	if frequency >= hfPortThreshold {
		return 157
	}
	return 164
}
