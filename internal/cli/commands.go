package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ecc1/rfm9x"
	"github.com/spf13/cobra"
)

func probeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Show the radio's identity and settings",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			r, err := opts.open()
			if err != nil {
				return err
			}
			defer r.Close()
			p := newPrinter()
			m := r.ModemConfig()
			p.field("device", "%s", r.Device())
			p.field("version", "%02X", r.Version())
			p.field("state", "%s", r.State())
			p.field("frequency", "%s", formatFrequency(r.Frequency()))
			p.field("modem", "%s (bw %s, sf %d, cr %s)", m.Name, m.Bandwidth, m.SpreadingFactor, m.CodingRate)
			p.field("preamble", "%d", r.PreambleLength())
			p.field("address", "%d", r.Address())
			p.field("rssi", "%d dBm", r.RSSI())
			return r.Error()
		},
	}
}

func sendCmd(opts *options) *cobra.Command {
	var (
		to   string
		wait bool
	)
	c := &cobra.Command{
		Use:   "send MESSAGE...",
		Short: "Send a datagram",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := parseAddress(to)
			if err != nil {
				return err
			}
			r, err := opts.open()
			if err != nil {
				return err
			}
			defer r.Close()
			data := []byte(strings.Join(args, " "))
			start := time.Now()
			r.SetHeaderID(byte(start.UnixNano() / int64(time.Millisecond)))
			if wait {
				err = r.SendToWait(cmd.Context(), dest, data, 0)
			} else {
				err = r.SendTo(dest, data, r.NextID(), 0)
			}
			if err != nil {
				return err
			}
			newPrinter().field("sent", "%d bytes to %d in %v", len(data), dest, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	c.Flags().StringVarP(&to, "to", "t", "broadcast", "destination address")
	c.Flags().BoolVarP(&wait, "wait", "w", false, "wait for an acknowledgement, retrying as configured")
	return c
}

func listenCmd(opts *options) *cobra.Command {
	var (
		count   int
		timeout time.Duration
	)
	c := &cobra.Command{
		Use:   "listen",
		Short: "Print received datagrams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := opts.open()
			if err != nil {
				return err
			}
			defer r.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			p := newPrinter()
			n := 0
			err = r.Listen(ctx, func(pkt *rfm9x.Packet) {
				p.packet(pkt)
				n++
				if count > 0 && n >= count {
					cancel()
				}
			})
			stats := r.Statistics()
			p.field("received", "%d packets, %d bytes", stats.Packets.Received, stats.Bytes.Received)
			return err
		},
	}
	c.Flags().IntVarP(&count, "count", "n", 0, "stop after this many datagrams")
	c.Flags().DurationVar(&timeout, "timeout", 0, "stop after this long")
	return c
}

func dumpCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the chip's configuration registers",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			r, err := opts.open()
			if err != nil {
				return err
			}
			defer r.Close()
			// Register 0 is the FIFO; reading it would disturb the buffer pointer.
			regs := make([]byte, 0x7F)
			for i := range regs {
				regs[i] = r.ReadRegister(byte(i + 1))
			}
			if err := r.Error(); err != nil {
				return err
			}
			dumpRegisters(newPrinter().w, 1, regs)
			return nil
		},
	}
}
