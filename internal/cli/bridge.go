package cli

import (
	"os"
	"os/signal"
	"time"

	"github.com/ecc1/rfm9x/internal/bridge"
	"github.com/ecc1/serial"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// serialPort is the part of *serial.Port used by the bridge command.
type serialPort interface {
	bridge.Port
	Close() error
}

var openSerial = func(device string, speed int) (serialPort, error) {
	return serial.Open(device, speed)
}

func bridgeCmd(opts *options) *cobra.Command {
	var (
		device   string
		speed    int
		to       string
		reliable bool
		poll     time.Duration
	)
	c := &cobra.Command{
		Use:   "bridge",
		Short: "Relay lines between a serial port and the radio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dest, err := parseAddress(to)
			if err != nil {
				return err
			}
			port, err := openSerial(device, speed)
			if err != nil {
				return errors.Wrapf(err, "opening %s", device)
			}
			defer func() { _ = port.Close() }()
			r, err := opts.open()
			if err != nil {
				return err
			}
			defer r.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			b := &bridge.Bridge{
				Port:     port,
				Link:     r,
				Dest:     dest,
				Reliable: reliable,
				Poll:     poll,
				Verbose:  opts.verbose,
			}
			newPrinter().field("bridge", "%s at %d baud <-> node %d", device, speed, r.Address())
			return b.Run(ctx)
		},
	}
	c.Flags().StringVarP(&device, "serial", "s", "/dev/serial0", "serial device")
	c.Flags().IntVar(&speed, "speed", 115200, "serial speed in baud")
	c.Flags().StringVarP(&to, "to", "t", "broadcast", "destination address for lines read from the serial port")
	c.Flags().BoolVar(&reliable, "reliable", false, "wait for an acknowledgement of each line")
	c.Flags().DurationVar(&poll, "poll", 20*time.Millisecond, "serial polling interval")
	return c
}
