package rfm9x

import (
	"bytes"
	"context"
	"crypto/aes"
	"errors"
	"testing"
	"time"
)

const (
	testKey     = "000102030405060708090a0b0c0d0e0f"
	testAuthKey = "0f0e0d0c0b0a09080706050403020100"
)

func TestEncryptPayload(t *testing.T) {
	block, err := aes.NewCipher(make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		data []byte
		size int
	}{
		{nil, 16},
		{[]byte("x"), 16},
		{make([]byte, 15), 16},
		{make([]byte, 16), 32},
		{make([]byte, 200), 208},
	}
	for _, c := range cases {
		enc := encryptPayload(block, c.data)
		if len(enc) != c.size {
			t.Errorf("encryptPayload(%d bytes) is %d bytes, want %d", len(c.data), len(enc), c.size)
		}
		dec, err := decryptPayload(block, enc)
		if err != nil {
			t.Errorf("decryptPayload(%d bytes): %v", len(c.data), err)
			continue
		}
		if !bytes.Equal(dec, c.data) {
			t.Errorf("decryptPayload == % X, want % X", dec, c.data)
		}
	}
}

func TestDecryptPayloadErrors(t *testing.T) {
	block, err := aes.NewCipher(make([]byte, 16))
	if err != nil {
		t.Fatal(err)
	}
	bad := make([]byte, 16)
	bad[0] = 16
	block.Encrypt(bad, bad)
	cases := map[string][]byte{
		"empty":      nil,
		"partial":    make([]byte, 17),
		"bad length": bad,
	}
	for name, data := range cases {
		if _, err := decryptPayload(block, data); !errors.Is(err, ErrBadCiphertext) {
			t.Errorf("%s: decryptPayload == %v, want %v", name, err, ErrBadCiphertext)
		}
	}
}

func TestEncryptedLink(t *testing.T) {
	cfgA, cfgB := testConfig(1), testConfig(2)
	cfgA.Key, cfgB.Key = testKey, testKey
	cfgA.AuthKey, cfgB.AuthKey = testAuthKey, testAuthKey
	ra, ca, rb, _ := openPair(t, cfgA, cfgB)
	msg := []byte("attack at dawn")
	if err := ra.SendTo(2, msg, 1, 0); err != nil {
		t.Fatal(err)
	}
	f := ca.sentFrames()[0]
	if bytes.Contains(f, msg) {
		t.Error("payload sent in the clear")
	}
	if len(f) != HeaderLen+16+micLen {
		t.Errorf("%d-byte frame, want %d", len(f), HeaderLen+16+micLen)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := rb.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p.Payload, msg) {
		t.Errorf("received %q, want %q", p.Payload, msg)
	}
}

func TestAuthKeyMismatch(t *testing.T) {
	cases := []struct {
		name   string
		sender string
	}{
		{"wrong key", testKey},
		{"no MIC", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfgA, cfgB := testConfig(1), testConfig(2)
			cfgA.AuthKey = c.sender
			cfgB.AuthKey = testAuthKey
			ra, _, rb, _ := openPair(t, cfgA, cfgB)
			if err := ra.SendTo(2, []byte("forged"), 1, 0); err != nil {
				t.Fatal(err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			if p, err := rb.Receive(ctx); err == nil {
				t.Errorf("received %v", p)
			}
		})
	}
}

func TestSetAuthKey(t *testing.T) {
	r, chip := openTest(t, testConfig(1))
	if err := r.SetAuthKey(make([]byte, 5)); err == nil {
		t.Error("SetAuthKey accepted a 5-byte key")
	}
	if err := r.SetAuthKey(make([]byte, 16)); err != nil {
		t.Fatal(err)
	}
	if err := r.Send([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := r.SetAuthKey(nil); err != nil {
		t.Fatal(err)
	}
	if err := r.Send([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	sent := chip.sentFrames()
	if len(sent[0]) != HeaderLen+3+micLen || len(sent[1]) != HeaderLen+3 {
		t.Errorf("frame lengths %d and %d", len(sent[0]), len(sent[1]))
	}
}
