package serialport_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/dcreager/cobs-ring-go/serialport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type fakePort struct {
	bytes.Buffer
	timeout    time.Duration
	timeoutErr error
	closed     bool
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return p.timeoutErr
}

func TestNormalizeDefaults(t *testing.T) {
	opts, err := serialport.Options{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 115200, opts.BaudRate)
	assert.Equal(t, 8, opts.DataBits)
	assert.Equal(t, 1, opts.StopBits)
	assert.Equal(t, "N", opts.Parity)
}

func TestNormalizeParity(t *testing.T) {
	cases := map[string]string{
		"none":  "N",
		" e ":   "E",
		"Odd":   "O",
		"mark":  "M",
		"SPACE": "S",
	}
	for input, expected := range cases {
		opts, err := serialport.Options{Parity: input}.Normalize()
		require.NoError(t, err, input)
		assert.Equal(t, expected, opts.Parity, input)
	}
}

func TestNormalizeInvalid(t *testing.T) {
	invalid := []serialport.Options{
		{BaudRate: -1},
		{DataBits: 4},
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "X"},
		{ReadTimeout: -time.Second},
	}
	for _, opts := range invalid {
		_, err := opts.Normalize()
		assert.Error(t, err, "%+v", opts)
	}
}

func TestMode(t *testing.T) {
	mode, err := serialport.Options{BaudRate: 9600, StopBits: 2, Parity: "E"}.Mode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.EvenParity,
		StopBits: serial.TwoStopBits,
	}, mode)

	mode, err = serialport.Options{}.Mode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}

func TestOpenWith(t *testing.T) {
	port := &fakePort{}
	var gotPath string
	var gotMode *serial.Mode
	opener := func(path string, mode *serial.Mode) (serialport.Port, error) {
		gotPath, gotMode = path, mode
		return port, nil
	}

	opened, err := serialport.OpenWith(opener, "/dev/ttyACM0", serialport.DefaultOptions())
	require.NoError(t, err)
	assert.Same(t, port, opened)
	assert.Equal(t, "/dev/ttyACM0", gotPath)
	assert.Equal(t, 115200, gotMode.BaudRate)
	assert.Equal(t, 100*time.Millisecond, port.timeout)
}

func TestOpenWithErrors(t *testing.T) {
	failing := func(path string, mode *serial.Mode) (serialport.Port, error) {
		return nil, errors.New("no such device")
	}
	_, err := serialport.OpenWith(failing, "/dev/missing", serialport.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/missing")
	assert.Contains(t, err.Error(), "no such device")

	port := &fakePort{timeoutErr: errors.New("unsupported")}
	opener := func(path string, mode *serial.Mode) (serialport.Port, error) {
		return port, nil
	}
	_, err = serialport.OpenWith(opener, "/dev/ttyACM0", serialport.DefaultOptions())
	require.Error(t, err)
	assert.True(t, port.closed)

	_, err = serialport.OpenWith(opener, "/dev/ttyACM0", serialport.Options{Parity: "?"})
	assert.Error(t, err)
}
