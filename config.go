package rfm9x

import (
	"encoding/hex"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config describes how the radio is wired and how it should be set up.
// The zero value is not useful; start from DefaultConfig.
type Config struct {
	SPIDevice    string `yaml:"spi_device"`
	SPISpeed     int    `yaml:"spi_speed"` // Hz
	CustomCS     int    `yaml:"custom_cs"`
	InterruptPin int    `yaml:"interrupt_pin"` // DIO0; required by Open
	ResetPin     int    `yaml:"reset_pin"`     // negative means not wired
	// Poll reads the IRQ flags every millisecond instead of waiting on DIO0.
	Poll bool `yaml:"poll"`

	Frequency uint32 `yaml:"frequency"` // Hz
	TxPower   int    `yaml:"tx_power"`  // dBm
	UseRFO    bool   `yaml:"use_rfo"`
	Modem     string `yaml:"modem"`
	Preamble  uint16 `yaml:"preamble"`

	Address      byte          `yaml:"address"`
	ReceiveAll   bool          `yaml:"receive_all"`
	Acks         bool          `yaml:"acks"`
	Retries      int           `yaml:"retries"`
	RetryTimeout time.Duration `yaml:"retry_timeout"`
	CADTimeout   time.Duration `yaml:"cad_timeout"`

	// Hex-encoded AES keys. Key enables payload encryption,
	// AuthKey enables a CMAC integrity check on every frame.
	Key     string `yaml:"key"`
	AuthKey string `yaml:"auth_key"`

	Verbose bool `yaml:"verbose"`
}

const (
	defaultSPISpeed     = 5000000
	defaultFrequency    = 915000000
	defaultTxPower      = 13
	defaultPreamble     = 8
	defaultRetries      = 3
	defaultRetryTimeout = 200 * time.Millisecond
)

// DefaultConfig returns the configuration for the board this package
// was built for, with RadioHead's default modem settings.
func DefaultConfig() Config {
	return Config{
		SPIDevice:    spiDevice,
		SPISpeed:     defaultSPISpeed,
		CustomCS:     customCS,
		InterruptPin: interruptPin,
		ResetPin:     resetPin,
		Frequency:    defaultFrequency,
		TxPower:      defaultTxPower,
		Modem:        Bw125Cr45Sf128.Name,
		Preamble:     defaultPreamble,
		Address:      1,
		Retries:      defaultRetries,
		RetryTimeout: defaultRetryTimeout,
	}
}

// LoadConfig reads a YAML configuration file.
// Settings missing from the file keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading radio config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Validate checks the configuration for values the hardware cannot use.
func (c Config) Validate() error {
	if c.SPIDevice == "" {
		return errors.New("no SPI device")
	}
	if c.SPISpeed <= 0 || c.SPISpeed > 10000000 {
		return errors.Errorf("SPI speed %d Hz out of range", c.SPISpeed)
	}
	if err := checkFrequency(c.Frequency); err != nil {
		return err
	}
	if _, err := LookupModemConfig(c.Modem); err != nil {
		return err
	}
	if c.Preamble < 6 {
		return errors.Errorf("preamble length %d too short", c.Preamble)
	}
	if c.Address == Broadcast {
		return errors.New("node address cannot be the broadcast address")
	}
	if c.Retries < 0 {
		return errors.Errorf("negative retry count %d", c.Retries)
	}
	if c.Acks && c.RetryTimeout <= 0 {
		return errors.New("acknowledgements need a positive retry timeout")
	}
	if _, err := c.key(c.Key); err != nil {
		return errors.Wrap(err, "key")
	}
	if _, err := c.key(c.AuthKey); err != nil {
		return errors.Wrap(err, "auth_key")
	}
	return nil
}

func (c Config) key(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	k, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	switch len(k) {
	case 16, 24, 32:
		return k, nil
	}
	return nil, errors.Errorf("%d-byte AES key", len(k))
}
