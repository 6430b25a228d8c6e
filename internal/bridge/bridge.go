// Package bridge relays newline-terminated lines between a serial port
// and an RFM9x radio.
package bridge

import (
	"bytes"
	"context"
	"log"
	"time"

	"github.com/ecc1/rfm9x"
	"github.com/pkg/errors"
)

// Port is the part of *serial.Port used by the bridge.
type Port interface {
	ReadAvailable([]byte) (int, error)
	Write([]byte) error
}

// Link is the part of *rfm9x.Radio used by the bridge.
type Link interface {
	SendTo(to byte, data []byte, id byte, flags byte) error
	SendToWait(ctx context.Context, to byte, data []byte, flags byte) error
	Receive(ctx context.Context) (*rfm9x.Packet, error)
}

const defaultPoll = 20 * time.Millisecond

// Bridge copies each line read from Port to Dest over the radio,
// and writes the payload of each received datagram to Port as a line.
type Bridge struct {
	Port Port
	Link Link

	// Dest is the destination address of outgoing lines.
	Dest byte
	// Reliable sends each line with SendToWait.
	Reliable bool
	// Poll is how long each receive attempt lasts before the
	// serial port is checked again.
	Poll    time.Duration
	Verbose bool

	buf []byte
	id  byte
}

// Run relays traffic until ctx is done or a device fails.
func (b *Bridge) Run(ctx context.Context) error {
	poll := b.Poll
	if poll <= 0 {
		poll = defaultPoll
	}
	for ctx.Err() == nil {
		if err := b.readSerial(ctx); err != nil {
			return err
		}
		if err := b.receive(ctx, poll); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) readSerial(ctx context.Context) error {
	tmp := make([]byte, 256)
	n, err := b.Port.ReadAvailable(tmp)
	if err != nil {
		return errors.Wrap(err, "serial read")
	}
	b.buf = append(b.buf, tmp[:n]...)
	for {
		i := bytes.IndexByte(b.buf, '\n')
		var line []byte
		switch {
		case i >= 0:
			line = bytes.TrimSuffix(b.buf[:i], []byte{'\r'})
			b.buf = b.buf[i+1:]
		case len(b.buf) >= rfm9x.MaxPayloadLen:
			// No terminator yet; send what fits.
			line = b.buf[:rfm9x.MaxPayloadLen]
			b.buf = b.buf[rfm9x.MaxPayloadLen:]
		default:
			return nil
		}
		if len(line) == 0 {
			continue
		}
		if err := b.send(ctx, append([]byte(nil), line...)); err != nil {
			return err
		}
	}
}

func (b *Bridge) send(ctx context.Context, data []byte) error {
	var err error
	if b.Reliable && b.Dest != rfm9x.Broadcast {
		err = b.Link.SendToWait(ctx, b.Dest, data, 0)
	} else {
		b.id++
		err = b.Link.SendTo(b.Dest, data, b.id, 0)
	}
	switch {
	case err == nil:
		if b.Verbose {
			log.Printf("sent %d bytes to %d", len(data), b.Dest)
		}
		return nil
	case errors.Is(err, rfm9x.ErrNoAck),
		errors.Is(err, rfm9x.ErrChannelBusy),
		errors.Is(err, rfm9x.ErrPayloadTooLong):
		log.Printf("dropping %d-byte line: %v", len(data), err)
		return nil
	case ctx.Err() != nil:
		return nil
	}
	return errors.Wrap(err, "radio send")
}

func (b *Bridge) receive(ctx context.Context, poll time.Duration) error {
	rctx, cancel := context.WithTimeout(ctx, poll)
	defer cancel()
	p, err := b.Link.Receive(rctx)
	if err != nil {
		if rctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "radio receive")
	}
	if b.Verbose {
		log.Print(p)
	}
	line := append(append([]byte(nil), p.Payload...), '\n')
	return errors.Wrap(b.Port.Write(line), "serial write")
}
