package arbiter

import (
	"time"

	"github.com/codefionn/wsserial/internal/consts"
)

// HealthStatus is the coarse state reported in a Status.
type HealthStatus string

const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusStopped  HealthStatus = "stopped"
)

// Status is a point-in-time view of the coordinator, published after each
// cycle.
type Status struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`

	Subscriptions int               `json:"subscriptions"`
	OpenPorts     []string          `json:"open_ports"`
	WriteLocks    map[string]string `json:"write_locks"`
	// subscription id to the ports it listens to
	Interests map[string][]string `json:"interests"`

	CommandQueueDepth      int     `json:"command_queue_depth"`
	CommandQueueCapacity   int     `json:"command_queue_capacity"`
	CommandQueueUsage      float64 `json:"command_queue_usage"`
	RegistrationQueueDepth int     `json:"registration_queue_depth"`
	DeferredCommands       int     `json:"deferred_commands"`

	Cycles    uint64        `json:"cycles"`
	Slips     int           `json:"slips_last_window"`
	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime"`
	Timestamp time.Time     `json:"timestamp"`
}

func (c *Coordinator) publishStatus() {
	now := time.Now()
	s := &Status{
		Status:                 HealthStatusHealthy,
		Subscriptions:          c.subs.Len(),
		OpenPorts:              c.ports.Names(),
		WriteLocks:             c.locks.Owners(),
		Interests:              c.subs.AllInterests(),
		CommandQueueDepth:      len(c.commands),
		CommandQueueCapacity:   cap(c.commands),
		RegistrationQueueDepth: len(c.registrations),
		DeferredCommands:       len(c.deferred),
		Cycles:                 c.cycles,
		Slips:                  c.pacer.lastWindow,
		StartTime:              c.started,
		Uptime:                 now.Sub(c.started),
		Timestamp:              now,
	}
	if s.CommandQueueCapacity > 0 {
		s.CommandQueueUsage = float64(s.CommandQueueDepth) / float64(s.CommandQueueCapacity)
	}

	c.mu.RLock()
	stopped := c.stopped
	c.mu.RUnlock()

	switch {
	case stopped:
		s.Status = HealthStatusStopped
		s.Message = "arbiter is stopped"
	case s.CommandQueueUsage > consts.QueueDegradedRatio:
		s.Status = HealthStatusDegraded
		s.Message = "command queue is nearly full"
	}
	c.status.Store(s)
}
