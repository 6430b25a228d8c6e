package rfm9x

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"

	"github.com/jacobsa/crypto/cmac"
	"github.com/pkg/errors"
)

// micLen is the number of CMAC bytes appended to each frame.
const micLen = 4

// SetCipher encrypts every payload with b, block by block,
// after prefixing a length byte and padding with zeros.
// A nil block disables encryption.
func (r *Radio) SetCipher(b cipher.Block) {
	r.mu.Lock()
	r.block = b
	r.mu.Unlock()
}

// SetAuthKey appends a truncated AES-CMAC of the header and payload to
// every frame and drops received frames whose MIC does not match.
// An empty key disables the check.
func (r *Radio) SetAuthKey(key []byte) error {
	if len(key) == 0 {
		r.mu.Lock()
		r.mac = nil
		r.mu.Unlock()
		return nil
	}
	h, err := cmac.New(key)
	if err != nil {
		return errors.Wrap(err, "CMAC key")
	}
	r.mu.Lock()
	r.mac = h
	r.mu.Unlock()
	return nil
}

// setKeys installs the keys from the configuration. r.mu must be held.
func (r *Radio) setKeys() error {
	key, err := r.config.key(r.config.Key)
	if err != nil {
		return errors.Wrap(err, "key")
	}
	if key != nil {
		if r.block, err = aes.NewCipher(key); err != nil {
			return errors.Wrap(err, "key")
		}
	}
	auth, err := r.config.key(r.config.AuthKey)
	if err != nil {
		return errors.Wrap(err, "auth key")
	}
	if auth != nil {
		if r.mac, err = cmac.New(auth); err != nil {
			return errors.Wrap(err, "auth key")
		}
	}
	return nil
}

// encodeFrame builds the bytes to be written to the FIFO. r.mu must be held.
func (r *Radio) encodeFrame(h Header, data []byte) ([]byte, error) {
	if len(data) > MaxPayloadLen {
		return nil, errors.Wrapf(ErrPayloadTooLong, "%d bytes", len(data))
	}
	payload := data
	if r.block != nil {
		payload = encryptPayload(r.block, data)
	}
	frame := append(h.marshal(), payload...)
	if r.mac != nil {
		frame = append(frame, r.mic(frame)...)
	}
	if len(frame) > MaxFrameLen {
		return nil, errors.Wrapf(ErrPayloadTooLong, "%d-byte frame", len(frame))
	}
	return frame, nil
}

// decodePayload checks and strips the MIC and decrypts the payload
// of a received frame. r.mu must be held.
func (r *Radio) decodePayload(frame []byte) ([]byte, error) {
	if r.mac != nil {
		n := len(frame) - micLen
		if n < HeaderLen {
			return nil, ErrBadMIC
		}
		if !bytes.Equal(r.mic(frame[:n]), frame[n:]) {
			return nil, ErrBadMIC
		}
		frame = frame[:n]
	}
	payload := frame[HeaderLen:]
	if r.block != nil {
		return decryptPayload(r.block, payload)
	}
	return append([]byte(nil), payload...), nil
}

func (r *Radio) mic(b []byte) []byte {
	r.mac.Reset()
	_, _ = r.mac.Write(b)
	return r.mac.Sum(nil)[:micLen]
}

func encryptPayload(b cipher.Block, data []byte) []byte {
	bs := b.BlockSize()
	n := (1 + len(data) + bs - 1) / bs * bs
	buf := make([]byte, n)
	buf[0] = byte(len(data))
	copy(buf[1:], data)
	for i := 0; i < n; i += bs {
		b.Encrypt(buf[i:i+bs], buf[i:i+bs])
	}
	return buf
}

func decryptPayload(b cipher.Block, data []byte) ([]byte, error) {
	bs := b.BlockSize()
	if len(data) == 0 || len(data)%bs != 0 {
		return nil, ErrBadCiphertext
	}
	buf := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		b.Decrypt(buf[i:i+bs], data[i:i+bs])
	}
	n := int(buf[0])
	if n > len(buf)-1 {
		return nil, ErrBadCiphertext
	}
	return buf[1 : 1+n], nil
}
