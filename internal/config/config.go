// Package config loads the TOML configuration of the cobsdump command.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dcreager/cobs-ring-go/serialport"
	"github.com/pkg/errors"
)

// Config holds every setting of a cobsdump run.
type Config struct {
	// Port is the serial device to read from.  Exactly one of Port and File
	// must be set.
	Port string
	// File is a capture of encoded bytes to read instead of a device; "-"
	// means standard input.
	File   string
	Serial serialport.Options

	BufferSize int
	MaxPacket  int
	ReadChunk  int
	Resume     bool
	// ZeroRestore decodes chunk boundaries as 0x00 bytes.
	ZeroRestore bool
	// Overwrite lets incoming bytes overwrite undecoded ones instead of
	// throttling reads while the buffer is full.
	Overwrite bool

	PollInterval time.Duration
	Throttle     time.Duration

	LogLevel    string
	MetricsAddr string
}

// Default returns the settings used for anything a config file leaves out.
// The buffer and chunk sizes match the firmware's USB receive path.
func Default() Config {
	return Config{
		Serial:       serialport.DefaultOptions(),
		BufferSize:   1024,
		MaxPacket:    256,
		ReadChunk:    64,
		PollInterval: 10 * time.Millisecond,
		Throttle:     50 * time.Millisecond,
		LogLevel:     "info",
	}
}

type fileConfig struct {
	Port         string             `toml:"port"`
	File         string             `toml:"file"`
	Serial       serialport.Options `toml:"serial"`
	ReadTimeout  string             `toml:"serial_read_timeout"`
	BufferSize   int                `toml:"buffer_size"`
	MaxPacket    int                `toml:"max_packet"`
	ReadChunk    int                `toml:"read_chunk"`
	Resume       bool               `toml:"resume"`
	ZeroRestore  bool               `toml:"zero_restore"`
	Overwrite    bool               `toml:"overwrite"`
	PollInterval string             `toml:"poll_interval"`
	Throttle     string             `toml:"throttle"`
	LogLevel     string             `toml:"log_level"`
	MetricsAddr  string             `toml:"metrics_addr"`
}

// Load reads the file at path on top of Default.  The result is not
// validated, since command-line flags may still override it.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("file") {
		cfg.File = strings.TrimSpace(raw.File)
	}
	if meta.IsDefined("serial", "baud_rate") {
		cfg.Serial.BaudRate = raw.Serial.BaudRate
	}
	if meta.IsDefined("serial", "data_bits") {
		cfg.Serial.DataBits = raw.Serial.DataBits
	}
	if meta.IsDefined("serial", "stop_bits") {
		cfg.Serial.StopBits = raw.Serial.StopBits
	}
	if meta.IsDefined("serial", "parity") {
		cfg.Serial.Parity = raw.Serial.Parity
	}
	if meta.IsDefined("serial_read_timeout") {
		if cfg.Serial.ReadTimeout, err = parseDuration("serial_read_timeout", raw.ReadTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("max_packet") {
		cfg.MaxPacket = raw.MaxPacket
	}
	if meta.IsDefined("read_chunk") {
		cfg.ReadChunk = raw.ReadChunk
	}
	if meta.IsDefined("resume") {
		cfg.Resume = raw.Resume
	}
	if meta.IsDefined("zero_restore") {
		cfg.ZeroRestore = raw.ZeroRestore
	}
	if meta.IsDefined("overwrite") {
		cfg.Overwrite = raw.Overwrite
	}
	if meta.IsDefined("poll_interval") {
		if cfg.PollInterval, err = parseDuration("poll_interval", raw.PollInterval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("throttle") {
		if cfg.Throttle, err = parseDuration("throttle", raw.Throttle); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}

// Validate checks that cfg describes a runnable configuration.
func (cfg Config) Validate() error {
	if cfg.Port == "" && cfg.File == "" {
		return errors.New("config: one of port or file is required")
	}
	if cfg.Port != "" && cfg.File != "" {
		return errors.New("config: port and file are mutually exclusive")
	}
	if cfg.BufferSize < 2 {
		return errors.Errorf("config: buffer_size %d must be at least 2", cfg.BufferSize)
	}
	if cfg.MaxPacket < 1 {
		return errors.Errorf("config: max_packet %d must be positive", cfg.MaxPacket)
	}
	if cfg.ReadChunk < 1 {
		return errors.Errorf("config: read_chunk %d must be positive", cfg.ReadChunk)
	}
	if cfg.PollInterval <= 0 {
		return errors.Errorf("config: poll_interval %s must be positive", cfg.PollInterval)
	}
	if cfg.Throttle <= 0 {
		return errors.Errorf("config: throttle %s must be positive", cfg.Throttle)
	}
	if _, err := cfg.Serial.Normalize(); err != nil {
		return errors.Wrap(err, "config: serial")
	}
	return nil
}
