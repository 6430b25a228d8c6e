package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/ecc1/radio"
	"github.com/ecc1/rfm9x"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"github.com/pkg/errors"
)

type printer struct {
	w     io.Writer
	color bool
}

func newPrinter() *printer {
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return &printer{w: colorable.NewColorableStdout(), color: true}
	}
	return &printer{w: os.Stdout}
}

func (p *printer) paint(s string, style string) string {
	if !p.color {
		return s
	}
	return ansi.Color(s, style)
}

func (p *printer) field(name string, format string, args ...interface{}) {
	fmt.Fprintf(p.w, "%s %s\n", p.paint(name+":", "cyan"), fmt.Sprintf(format, args...))
}

func (p *printer) packet(pkt *rfm9x.Packet) {
	ts := pkt.Received.Format("15:04:05.000")
	hdr := fmt.Sprintf("%d -> %d id %d", pkt.From, pkt.To, pkt.ID)
	if pkt.Flags != 0 {
		hdr += fmt.Sprintf(" flags %02X", pkt.Flags)
	}
	sig := fmt.Sprintf("%d dBm %d dB", pkt.RSSI, pkt.SNR)
	fmt.Fprintf(p.w, "%s %s %s %s\n",
		p.paint(ts, "black+h"),
		p.paint(hdr, "green"),
		p.paint(sig, "yellow"),
		formatPayload(pkt.Payload))
}

// formatPayload quotes printable payloads and shows others in hex.
func formatPayload(b []byte) string {
	s := string(b)
	for _, c := range s {
		if c == unicode.ReplacementChar || !unicode.IsPrint(c) {
			return fmt.Sprintf("% X", b)
		}
	}
	return strconv.Quote(s)
}

func formatFrequency(hz uint32) string {
	return strings.TrimSpace(radio.MegaHertz(hz)) + " MHz"
}

// parseAddress accepts a node address in decimal or 0x hex, or "broadcast".
func parseAddress(s string) (byte, error) {
	if strings.EqualFold(s, "broadcast") {
		return rfm9x.Broadcast, nil
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, errors.Errorf("invalid node address %q", s)
	}
	return byte(v), nil
}

// dumpRegisters writes regs, which start at register base, 16 to a line.
func dumpRegisters(w io.Writer, base byte, regs []byte) {
	for i := 0; i < len(regs); i += 16 {
		end := i + 16
		if end > len(regs) {
			end = len(regs)
		}
		fmt.Fprintf(w, "%02X: % X\n", int(base)+i, regs[i:end])
	}
}
