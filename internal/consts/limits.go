package consts

import "time"

// Buffer sizes
const (
	// ReadBufferSize bounds a single read from one serial port per sweep
	ReadBufferSize = 4096
	// MaxMessageSize is the largest WebSocket frame accepted from a client
	MaxMessageSize = 64 * 1024
	// SessionSendBuffer is the number of responses queued per session before
	// the session counts as gone
	SessionSendBuffer = 256
)

// Arbiter defaults
const (
	// CycleRateHz is the target rate of the arbiter service loop
	CycleRateHz = 30
	// MaxRegistrationsPerCycle caps how many new sessions are registered per cycle
	MaxRegistrationsPerCycle = 50
	// DefaultCommandQueueSize is the default capacity of the command queue
	DefaultCommandQueueSize = 1024
	// DefaultRegistrationQueueSize is the default capacity of the registration queue
	DefaultRegistrationQueueSize = 256
	// RegistrationWaitCycles is how many cycles a command from a not yet
	// registered session is held back before it fails
	RegistrationWaitCycles = 3
	// QueueDegradedRatio marks the arbiter degraded above this command queue usage
	QueueDegradedRatio = 0.8
)

// Server defaults
const (
	// DefaultMaxConnections caps concurrent client sessions
	DefaultMaxConnections = 64
	// DefaultHeartbeatInterval is how often sessions ping their client
	DefaultHeartbeatInterval = 5 * time.Second
	// DefaultClientTimeout drops a session that sent nothing for this long
	DefaultClientTimeout = 10 * time.Second
	// WriteWait is the time allowed to write one frame to a client
	WriteWait = 10 * time.Second
	// ShutdownTimeout bounds graceful HTTP shutdown
	ShutdownTimeout = 5 * time.Second
)
