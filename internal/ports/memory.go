package ports

import (
	"fmt"
	"io"
	"sort"
	"sync"
)

// MemoryDriver is an in-process Driver. It backs the --loopback mode and the
// tests of everything above the port registry.
type MemoryDriver struct {
	mu       sync.Mutex
	devices  map[string]*MemoryDevice
	openErrs map[string]error
	listErr  error
	loopback bool
}

// NewMemoryDriver creates a driver exposing the named devices.
func NewMemoryDriver(names ...string) *MemoryDriver {
	d := &MemoryDriver{
		devices:  make(map[string]*MemoryDevice),
		openErrs: make(map[string]error),
	}
	for _, name := range names {
		d.Add(name)
	}
	return d
}

// NewLoopbackDriver creates a driver whose devices echo every write back as
// readable data.
func NewLoopbackDriver(names ...string) *MemoryDriver {
	d := &MemoryDriver{
		devices:  make(map[string]*MemoryDevice),
		openErrs: make(map[string]error),
		loopback: true,
	}
	for _, name := range names {
		d.Add(name)
	}
	return d
}

// Add exposes a new device, or returns the existing one.
func (d *MemoryDriver) Add(name string) *MemoryDevice {
	d.mu.Lock()
	defer d.mu.Unlock()

	if dev, ok := d.devices[name]; ok {
		return dev
	}
	dev := &MemoryDevice{name: name, loopback: d.loopback, closed: true}
	d.devices[name] = dev
	return dev
}

// Device returns the named device or nil.
func (d *MemoryDriver) Device(name string) *MemoryDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices[name]
}

// FailOpen makes every following Open of name fail with err. A nil err clears it.
func (d *MemoryDriver) FailOpen(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.openErrs, name)
		return
	}
	d.openErrs[name] = err
}

// FailList makes List fail with err. A nil err clears it.
func (d *MemoryDriver) FailList(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listErr = err
}

func (d *MemoryDriver) Open(name string) (Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.openErrs[name]; ok {
		return nil, err
	}
	dev, ok := d.devices[name]
	if !ok {
		return nil, fmt.Errorf("failed to open %s: no such device", name)
	}

	dev.mu.Lock()
	dev.closed = false
	dev.opens++
	dev.mu.Unlock()
	return dev, nil
}

func (d *MemoryDriver) List() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.listErr != nil {
		return nil, d.listErr
	}
	names := make([]string, 0, len(d.devices))
	for name := range d.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// MemoryDevice is a fake serial device. Reads with nothing pending return
// (0, nil) like a hardware read timeout.
type MemoryDevice struct {
	mu       sync.Mutex
	name     string
	loopback bool
	pending  []byte
	written  []byte
	readErr  error
	writeErr error
	closed   bool
	opens    int
}

// Feed queues data to be returned by the next reads.
func (m *MemoryDevice) Feed(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, data...)
}

// FailReads makes every following read fail with err. Use io.EOF to simulate
// an unplugged device.
func (m *MemoryDevice) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailWrites makes every following write fail with err.
func (m *MemoryDevice) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Written returns a copy of everything written so far.
func (m *MemoryDevice) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written...)
}

func (m *MemoryDevice) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Opens returns how many times the device was opened.
func (m *MemoryDevice) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

func (m *MemoryDevice) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.ErrClosedPipe
	}
	if m.readErr != nil {
		return 0, m.readErr
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *MemoryDevice) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.ErrClosedPipe
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	m.written = append(m.written, p...)
	if m.loopback {
		m.pending = append(m.pending, p...)
	}
	return len(p), nil
}

func (m *MemoryDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
