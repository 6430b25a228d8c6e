package rfm9x

import (
	"context"
	"time"

	"github.com/ecc1/radio"
)

// Generic adapts a Radio to radio.Interface, the contract shared by the
// ecc1 radio drivers. Failures are recorded in the Radio's error state
// instead of being returned.
type Generic struct {
	*Radio
}

var _ radio.Interface = Generic{}

// Generic returns r as a radio.Interface.
func (r *Radio) Generic() Generic {
	return Generic{r}
}

// SetFrequency sets the radio to the given frequency, in Hertz.
func (g Generic) SetFrequency(freq uint32) {
	if err := g.Radio.SetFrequency(freq); err != nil {
		g.SetError(err)
	}
}

// Send broadcasts the given packet.
func (g Generic) Send(data []byte) {
	if g.Error() != nil {
		return
	}
	if err := g.Radio.Send(data); err != nil {
		g.SetError(err)
	}
}

// Receive listens with the given timeout for an incoming packet.
// It returns the payload and the associated RSSI.
func (g Generic) Receive(timeout time.Duration) ([]byte, int) {
	if g.Error() != nil {
		return nil, 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	p, err := g.Radio.Receive(ctx)
	if err != nil {
		if ctx.Err() == nil {
			g.SetError(err)
		}
		return nil, -128
	}
	return p.Payload, p.RSSI
}

// SendAndReceive sends the given packet,
// then listens with the given timeout for an incoming packet.
func (g Generic) SendAndReceive(data []byte, timeout time.Duration) ([]byte, int) {
	g.Send(data)
	if g.Error() != nil {
		return nil, 0
	}
	return g.Receive(timeout)
}
