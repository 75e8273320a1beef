package ports

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.bug.st/serial"
)

// ReadTimeout bounds every read so one sweep never blocks on a quiet port.
const ReadTimeout = time.Millisecond

// Device is an open serial device handle.
type Device interface {
	io.ReadWriteCloser
}

// Driver opens and enumerates serial devices.
type Driver interface {
	Open(name string) (Device, error)
	List() ([]string, error)
}

// Fixed line settings: 115200 8N1.
var serialMode = serial.Mode{
	BaudRate: 115200,
	DataBits: 8,
	Parity:   serial.NoParity,
	StopBits: serial.OneStopBit,
}

// SerialDriver talks to real hardware through go.bug.st/serial.
type SerialDriver struct{}

// allow tests to override the library entry points
var (
	openSerial = func(name string, mode *serial.Mode) (serial.Port, error) { return serial.Open(name, mode) }
	listSerial = serial.GetPortsList
)

func (SerialDriver) Open(name string) (Device, error) {
	mode := serialMode
	port, err := openSerial(name, &mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", name, err)
	}
	return port, nil
}

func (SerialDriver) List() ([]string, error) {
	names, err := listSerial()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return names, nil
}

// isTimeout reports whether err only means "no data yet".
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// isEOF reports whether the device went away underneath us.
func isEOF(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var portErr *serial.PortError
	return errors.As(err, &portErr) && portErr.Code() == serial.PortClosed
}
