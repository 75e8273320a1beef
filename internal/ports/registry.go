// Package ports owns the open serial devices of the bridge.
//
// A Registry is not safe for concurrent use; it is confined to the arbiter
// goroutine.
package ports

import (
	"io"
	"sort"

	"github.com/codefionn/wsserial/internal/consts"
	"github.com/codefionn/wsserial/internal/logger"
	"github.com/codefionn/wsserial/internal/protocol"
)

// ReadResult is the outcome of one read attempt on one port.
// Exactly one of Data or Err is set. Err is a protocol PortEOF or
// PortReadError error.
type ReadResult struct {
	Data []byte
	Err  error
}

// Registry tracks open ports by name.
type Registry struct {
	driver Driver
	open   map[string]Device
	buf    []byte
	log    *logger.Logger
}

// NewRegistry creates an empty registry backed by driver.
func NewRegistry(driver Driver) *Registry {
	return &Registry{
		driver: driver,
		open:   make(map[string]Device),
		buf:    make([]byte, consts.ReadBufferSize),
		log:    logger.Global().WithPrefix("ports"),
	}
}

func (r *Registry) IsOpen(name string) bool {
	_, ok := r.open[name]
	return ok
}

// Open opens name with the fixed line settings. Opening an open port is a no-op.
func (r *Registry) Open(name string) error {
	if r.IsOpen(name) {
		return nil
	}
	dev, err := r.driver.Open(name)
	if err != nil {
		return protocol.Wrap(err)
	}
	r.open[name] = dev
	r.log.Info("Opened port %s", name)
	return nil
}

// Close drops the handle. Callers check interest first.
func (r *Registry) Close(name string) {
	dev, ok := r.open[name]
	if !ok {
		return
	}
	delete(r.open, name)
	if err := dev.Close(); err != nil {
		r.log.Warn("Error closing port %s: %v", name, err)
	}
	r.log.Info("Closed port %s", name)
}

// CloseAll closes every open port.
func (r *Registry) CloseAll() {
	for _, name := range r.Names() {
		r.Close(name)
	}
}

// Write writes all of data to the open port name.
func (r *Registry) Write(name string, data []byte) error {
	dev, ok := r.open[name]
	if !ok {
		return protocol.OpenPortNotFound(name)
	}
	for len(data) > 0 {
		n, err := dev.Write(data)
		if err != nil {
			return protocol.PortWriteError(name, err)
		}
		if n == 0 {
			return protocol.PortWriteError(name, io.ErrShortWrite)
		}
		data = data[n:]
	}
	return nil
}

// ReadAll makes one bounded read attempt per open port. Ports with nothing
// to read this tick are absent from the result.
func (r *Registry) ReadAll() map[string]ReadResult {
	results := make(map[string]ReadResult)
	for name, dev := range r.open {
		n, err := dev.Read(r.buf)
		switch {
		case n > 0:
			data := make([]byte, n)
			copy(data, r.buf[:n])
			results[name] = ReadResult{Data: data}
			if err != nil && !isTimeout(err) {
				r.log.Debug("Read on %s returned data with error: %v", name, err)
			}
		case err == nil, isTimeout(err):
			// nothing this tick
		case isEOF(err):
			r.log.Info("Received EOF reading from port %s", name)
			results[name] = ReadResult{Err: protocol.PortEOF(name)}
		default:
			r.log.Warn("Error reading from port %s: %v", name, err)
			results[name] = ReadResult{Err: protocol.PortReadError(name, err)}
		}
	}
	return results
}

// ListAvailable enumerates ports visible to the host, open or not.
func (r *Registry) ListAvailable() ([]string, error) {
	names, err := r.driver.List()
	if err != nil {
		return nil, protocol.Wrap(err)
	}
	sort.Strings(names)
	return names, nil
}

// Names returns the open port names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.open))
	for name := range r.open {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	return len(r.open)
}
