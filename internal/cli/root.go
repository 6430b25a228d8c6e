// Package cli implements the lora command.
package cli

import (
	"context"
	"os"

	"github.com/ecc1/rfm9x"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Execute runs the lora command and exits on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type options struct {
	configFile string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "lora",
		Short:        "Send, receive and inspect LoRa datagrams with an RFM9x radio",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "radio configuration file (YAML)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log radio activity")
	cmd.AddCommand(
		probeCmd(opts),
		sendCmd(opts),
		listenCmd(opts),
		bridgeCmd(opts),
		dumpCmd(opts),
	)
	return cmd
}

func (o *options) config() (rfm9x.Config, error) {
	cfg := rfm9x.DefaultConfig()
	if o.configFile != "" {
		var err error
		if cfg, err = rfm9x.LoadConfig(o.configFile); err != nil {
			return cfg, err
		}
	}
	if o.verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

func (o *options) open() (*rfm9x.Radio, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	r := rfm9x.Open(cfg)
	if err := r.Error(); err != nil {
		return nil, errors.Wrapf(err, "opening %s", cfg.SPIDevice)
	}
	return r, nil
}
