package rfm9x

import (
	"context"
	"math/rand"
	"time"
)

// ackPayload is what RadioHead sends in an acknowledgement.
var ackPayload = []byte("!")

type ackWait struct {
	done   chan struct{}
	cancel context.CancelFunc
}

func ackKey(from, id byte) uint16 {
	return uint16(from)<<8 | uint16(id)
}

// NextID returns the header ID for the next outgoing datagram.
func (r *Radio) NextID() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	return r.lastID
}

// SetHeaderID sets the ID that the next datagram's ID follows.
// Programs that send a few datagrams per run can seed it so that
// receivers do not mistake a new datagram for a retransmission.
func (r *Radio) SetHeaderID(id byte) {
	r.mu.Lock()
	r.lastID = id
	r.mu.Unlock()
}

// SendToWait sends data to the given node and waits for an acknowledgement,
// retransmitting up to Config.Retries times. Broadcasts are sent once and
// never acknowledged. It returns ErrNoAck when all attempts go unanswered.
func (r *Radio) SendToWait(ctx context.Context, to byte, data []byte, flags byte) error {
	id := r.NextID()
	r.mu.Lock()
	r.rxEnabled = true
	r.mu.Unlock()
	if to == Broadcast {
		return r.SendTo(to, data, id, flags)
	}
	w := &ackWait{done: make(chan struct{}, 1)}
	key := ackKey(to, id)
	r.mu.Lock()
	r.acks[key] = w
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.acks, key)
		r.mu.Unlock()
	}()
	for attempt := 0; attempt <= r.config.Retries; attempt++ {
		if attempt > 0 {
			r.logf("retransmitting frame %d to %d (attempt %d)", id, to, attempt+1)
		}
		if err := r.SendTo(to, data, id, flags); err != nil {
			return err
		}
		if r.waitAck(ctx, w, r.retryTimeout()) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrNoAck
}

// waitAck receives frames until w is acknowledged or the timeout expires.
// Datagrams that arrive in the meantime are kept for Receive.
func (r *Radio) waitAck(ctx context.Context, w *ackWait, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	r.mu.Lock()
	w.cancel = cancel
	r.mu.Unlock()
	for {
		select {
		case <-w.done:
			return true
		default:
		}
		p, err := r.receiveFrame(ctx)
		if p != nil {
			r.mu.Lock()
			r.pending = append(r.pending, p)
			r.mu.Unlock()
		}
		if err != nil {
			select {
			case <-w.done:
				return true
			default:
				return false
			}
		}
	}
}

// retryTimeout returns a random interval in [RetryTimeout, 2*RetryTimeout)
// so that colliding senders drift apart.
func (r *Radio) retryTimeout() time.Duration {
	t := r.config.RetryTimeout
	if t <= 0 {
		t = defaultTimeout
	}
	return t + time.Duration(rand.Int63n(int64(t)))
}

func (r *Radio) deliverAck(h Header) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := r.acks[ackKey(h.From, h.ID)]
	if w == nil {
		r.logf("unexpected ack %d from %d", h.ID, h.From)
		return
	}
	select {
	case w.done <- struct{}{}:
	default:
	}
	if w.cancel != nil {
		w.cancel()
	}
}

func (r *Radio) sendAck(h Header) {
	if err := r.SendTo(h.From, ackPayload, h.ID, h.Flags|FlagAck); err != nil {
		r.logf("ack %d to %d: %v", h.ID, h.From, err)
	}
}

// duplicate records h as the latest frame from its sender and reports
// whether the same ID was already seen, as happens when an ack is lost.
func (r *Radio) duplicate(h Header) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.seen[h.From]
	r.seen[h.From] = h.ID
	return ok && prev == h.ID
}

func (r *Radio) popPending() *Packet {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	p := r.pending[0]
	r.pending = r.pending[1:]
	return p
}
