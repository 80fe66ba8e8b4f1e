package xmodem

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds engine and session configuration.
type Config struct {
	// PrimeInterval is how often the receiver repeats its NAK until the
	// sender starts talking. The first NAK is sent immediately.
	PrimeInterval time.Duration

	// ProgressInterval rate-limits ProgressTracker updates
	ProgressInterval time.Duration

	// ReadSize is the size of a single transport read
	ReadSize int

	// LogFile, when set, is opened by the CLIs as a FileLogger
	LogFile string

	// Trace records the sequence numbers accepted by the receiver
	Trace bool

	// Logger receives engine diagnostics. Nil means NoopLogger.
	Logger Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		PrimeInterval:    3 * time.Second,
		ProgressInterval: 100 * time.Millisecond,
		ReadSize:         defaultReadSize,
	}
}

// fileConfig is the on-disk shape of a Config.
type fileConfig struct {
	PrimeInterval    string `toml:"prime_interval"`
	ProgressInterval string `toml:"progress_interval"`
	ReadSize         int    `toml:"read_size"`
	LogFile          string `toml:"log_file"`
	Trace            bool   `toml:"trace"`
}

// LoadConfig reads a TOML file and overlays it on DefaultConfig.
//
// Example:
//
//	prime_interval = "3s"
//	progress_interval = "250ms"
//	log_file = "/tmp/xmodem.log"
//	trace = true
func LoadConfig(path string) (*Config, error) {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, errors.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	config := DefaultConfig()
	if err := fc.apply(config); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return config, nil
}

func (fc *fileConfig) apply(c *Config) error {
	if fc.PrimeInterval != "" {
		d, err := time.ParseDuration(fc.PrimeInterval)
		if err != nil {
			return errors.Wrap(err, "prime_interval")
		}
		if d <= 0 {
			return errors.New("prime_interval must be positive")
		}
		c.PrimeInterval = d
	}
	if fc.ProgressInterval != "" {
		d, err := time.ParseDuration(fc.ProgressInterval)
		if err != nil {
			return errors.Wrap(err, "progress_interval")
		}
		c.ProgressInterval = d
	}
	if fc.ReadSize < 0 {
		return errors.New("read_size must not be negative")
	}
	if fc.ReadSize > 0 {
		c.ReadSize = fc.ReadSize
	}
	c.LogFile = fc.LogFile
	c.Trace = fc.Trace
	return nil
}

// withDefaults fills zero fields so engines never see an unusable config.
func (c *Config) withDefaults() *Config {
	out := DefaultConfig()
	if c == nil {
		out.Logger = NoopLogger{}
		return out
	}
	*out = *c
	if out.PrimeInterval <= 0 {
		out.PrimeInterval = 3 * time.Second
	}
	if out.ReadSize <= 0 {
		out.ReadSize = defaultReadSize
	}
	if out.Logger == nil {
		out.Logger = NoopLogger{}
	}
	return out
}
