// Package serialport opens the serial or USB CDC device that feeds encoded
// bytes into a framed.Stream.
package serialport

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// Port is the minimal interface needed from an open serial port.
type Port interface {
	io.ReadWriteCloser
}

// timeoutPort is implemented by ports that support read timeouts.
type timeoutPort interface {
	SetReadTimeout(t time.Duration) error
}

// Options describes the serial connection parameters.
type Options struct {
	BaudRate    int           `toml:"baud_rate"`
	DataBits    int           `toml:"data_bits"`
	StopBits    int           `toml:"stop_bits"`
	Parity      string        `toml:"parity"`
	ReadTimeout time.Duration `toml:"-"`
}

// DefaultOptions returns 115200 8N1 with a 100ms read timeout.
func DefaultOptions() Options {
	return Options{
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      "N",
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Normalize validates the options and fills in defaults for unset values.
func (o Options) Normalize() (Options, error) {
	opts := o
	def := DefaultOptions()

	if opts.BaudRate == 0 {
		opts.BaudRate = def.BaudRate
	}
	if opts.BaudRate < 0 {
		return opts, errors.Errorf("invalid baud rate %d", opts.BaudRate)
	}

	if opts.DataBits == 0 {
		opts.DataBits = def.DataBits
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, errors.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = def.StopBits
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, errors.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	if opts.ReadTimeout < 0 {
		return opts, errors.Errorf("invalid read timeout %s", opts.ReadTimeout)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	case "M", "MARK":
		opts.Parity = "M"
	case "S", "SPACE":
		opts.Parity = "S"
	default:
		return opts, errors.Errorf("unsupported parity %q: expected N, E, O, M or S", opts.Parity)
	}

	return opts, nil
}

// Mode converts the options into the serial.Mode used to open a port.
func (o Options) Mode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	case "M":
		mode.Parity = serial.MarkParity
	case "S":
		mode.Parity = serial.SpaceParity
	}
	return mode, nil
}

// Opener opens the port at path.
type Opener func(path string, mode *serial.Mode) (Port, error)

// DefaultOpener opens a real device with go.bug.st/serial.
func DefaultOpener(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

// Open opens the device at path with DefaultOpener.
func Open(path string, opts Options) (Port, error) {
	return OpenWith(DefaultOpener, path, opts)
}

// OpenWith opens the device at path using open, and applies the read timeout
// if the port supports one.
func OpenWith(open Opener, path string, opts Options) (Port, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, errors.Wrap(err, "serial options")
	}
	mode, err := opts.Mode()
	if err != nil {
		return nil, errors.Wrap(err, "serial options")
	}

	port, err := open(path, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	if opts.ReadTimeout > 0 {
		if tp, ok := port.(timeoutPort); ok {
			if err := tp.SetReadTimeout(opts.ReadTimeout); err != nil {
				port.Close()
				return nil, errors.Wrapf(err, "set read timeout on %s", path)
			}
		}
	}
	return port, nil
}

// List returns the names of the serial ports present on the system.
func List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "list serial ports")
	}
	return ports, nil
}
