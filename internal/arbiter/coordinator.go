// Package arbiter runs the single goroutine that owns every open serial
// port, every write lock and every subscription of the bridge.
//
// Sessions talk to the Coordinator through two bounded queues: Register
// announces a new subscription, Submit hands over a decoded request. Neither
// call blocks. Hangup reports a vanished session and never fails. Responses
// flow back through the subscription's Route.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codefionn/wsserial/internal/consts"
	"github.com/codefionn/wsserial/internal/logger"
	"github.com/codefionn/wsserial/internal/ports"
	"github.com/codefionn/wsserial/internal/protocol"
	"github.com/codefionn/wsserial/internal/subscription"
	"github.com/codefionn/wsserial/internal/writelock"
)

var (
	// ErrQueueFull is returned by Submit and Register when the queue has no room.
	ErrQueueFull = errors.New("arbiter queue is full")
	// ErrStopped is returned once the coordinator has been stopped.
	ErrStopped = errors.New("arbiter is stopped")
)

// Command pairs a request with the subscription it came from.
type Command struct {
	SubscriptionID string
	Request        protocol.Request

	waited int
}

type registration struct {
	id    string
	route subscription.Route
}

// Options sizes the coordinator queues.
type Options struct {
	CommandQueueSize      int
	RegistrationQueueSize int
	CycleRateHz           int
}

// DefaultOptions returns the built-in queue sizes and cycle rate.
func DefaultOptions() Options {
	return Options{
		CommandQueueSize:      consts.DefaultCommandQueueSize,
		RegistrationQueueSize: consts.DefaultRegistrationQueueSize,
		CycleRateHz:           consts.CycleRateHz,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CommandQueueSize <= 0 {
		o.CommandQueueSize = d.CommandQueueSize
	}
	if o.RegistrationQueueSize <= 0 {
		o.RegistrationQueueSize = d.RegistrationQueueSize
	}
	if o.CycleRateHz <= 0 {
		o.CycleRateHz = d.CycleRateHz
	}
	return o
}

// Coordinator is the single owner of the port, write lock and subscription
// registries. Only the run loop touches them.
type Coordinator struct {
	ports *ports.Registry
	locks *writelock.Registry
	subs  *subscription.Registry

	commands      chan Command
	registrations chan registration
	deferred      []Command

	// sessionMu guards hangups and queued. hangups is unbounded; at most
	// one entry per session ever lands here.
	sessionMu sync.Mutex
	hangups   []string
	queued    map[string]struct{}
	// sessions that hung up before their registration was drained
	gone map[string]struct{}

	// delivery failures observed during the current cycle
	failed []error

	pacer   *pacer
	cycles  uint64
	started time.Time
	status  atomic.Pointer[Status]

	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	log *logger.Logger
}

// New creates a coordinator that opens ports through driver.
func New(driver ports.Driver, opts Options) *Coordinator {
	opts = opts.withDefaults()
	log := logger.Global().WithPrefix("arbiter")
	c := &Coordinator{
		ports:         ports.NewRegistry(driver),
		locks:         writelock.NewRegistry(),
		subs:          subscription.NewRegistry(),
		commands:      make(chan Command, opts.CommandQueueSize),
		registrations: make(chan registration, opts.RegistrationQueueSize),
		queued:        make(map[string]struct{}),
		gone:          make(map[string]struct{}),
		pacer:         newPacer(opts.CycleRateHz, log),
		started:       time.Now(),
		log:           log,
	}
	c.publishStatus()
	return c
}

// Submit queues cmd for the run loop without blocking.
func (c *Coordinator) Submit(cmd Command) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return ErrStopped
	}

	select {
	case c.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("command from %s dropped: %w", cmd.SubscriptionID, ErrQueueFull)
	}
}

// Register queues a new subscription without blocking.
func (c *Coordinator) Register(id string, route subscription.Route) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return ErrStopped
	}

	c.sessionMu.Lock()
	c.queued[id] = struct{}{}
	c.sessionMu.Unlock()

	select {
	case c.registrations <- registration{id: id, route: route}:
		return nil
	default:
		c.sessionMu.Lock()
		delete(c.queued, id)
		c.sessionMu.Unlock()
		return fmt.Errorf("registration of %s refused: %w", id, ErrQueueFull)
	}
}

// Hangup reports that the session behind id is gone. The next cycle ends its
// subscription, releases its write locks and closes ports nobody needs.
func (c *Coordinator) Hangup(id string) {
	c.sessionMu.Lock()
	c.hangups = append(c.hangups, id)
	c.sessionMu.Unlock()
}

// Start launches the run loop. The loop lives until ctx is cancelled or Stop
// is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	if c.cancel != nil {
		return fmt.Errorf("arbiter already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = time.Now()

	c.wg.Add(1)
	go c.run(ctx)
	c.log.Info("Arbiter started at %d cycles/s", c.pacer.hz)
	return nil
}

// Stop cancels the run loop and waits for it to close every port.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info("Arbiter stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.ports.CloseAll()
		c.publishStatus()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		c.cycle()
		if !c.pacer.wait(ctx) {
			return
		}
	}
}

// cycle performs one pass of the service loop.
func (c *Coordinator) cycle() {
	c.failed = c.failed[:0]

	c.processCommand()
	bad := c.sweep()
	c.drainRegistrations()
	c.processHangups()
	c.quarantine(bad)
	c.dropFailed()

	for i := range c.deferred {
		c.deferred[i].waited++
	}
	c.cycles++
	c.publishStatus()
}

// processCommand handles at most one command. Commands from subscriptions
// whose registration has not been drained yet are held back for a few
// cycles, in submission order.
func (c *Coordinator) processCommand() {
	cmd, ok := c.nextCommand()
	if !ok {
		return
	}
	if c.subs.Exists(cmd.SubscriptionID) != nil && cmd.waited < consts.RegistrationWaitCycles {
		c.log.Debug("Deferring %s from unregistered subscription %s", cmd.Request.Type(), cmd.SubscriptionID)
		c.deferred = append(c.deferred, cmd)
		return
	}
	c.dispatch(cmd)
}

func (c *Coordinator) nextCommand() (Command, bool) {
	for i, cmd := range c.deferred {
		if c.subs.Exists(cmd.SubscriptionID) == nil || cmd.waited >= consts.RegistrationWaitCycles {
			c.deferred = slices.Delete(c.deferred, i, i+1)
			return cmd, true
		}
	}

	select {
	case cmd := <-c.commands:
		if c.hasDeferred(cmd.SubscriptionID) {
			c.deferred = append(c.deferred, cmd)
			return Command{}, false
		}
		return cmd, true
	default:
		return Command{}, false
	}
}

func (c *Coordinator) hasDeferred(id string) bool {
	for _, cmd := range c.deferred {
		if cmd.SubscriptionID == id {
			return true
		}
	}
	return false
}

// sweep reads every open port once, forwards data to interested
// subscriptions and returns the ports that failed.
func (c *Coordinator) sweep() []string {
	results := c.ports.ReadAll()
	var bad []string
	for _, name := range c.ports.Names() {
		res, ok := results[name]
		if !ok {
			continue
		}
		if res.Err != nil {
			bad = append(bad, name)
			continue
		}
		c.failed = append(c.failed, c.subs.BroadcastForPort(name, protocol.NewReadResponse(name, res.Data))...)
	}
	return bad
}

func (c *Coordinator) drainRegistrations() {
	for i := 0; i < consts.MaxRegistrationsPerCycle; i++ {
		select {
		case reg := <-c.registrations:
			c.sessionMu.Lock()
			delete(c.queued, reg.id)
			c.sessionMu.Unlock()

			if _, ok := c.gone[reg.id]; ok {
				delete(c.gone, reg.id)
				c.log.Debug("Discarding registration of %s, session already gone", reg.id)
				continue
			}
			c.subs.Register(reg.id, reg.route)
			c.log.Debug("Registered subscription %s", reg.id)
		default:
			return
		}
	}
}

// processHangups ends the subscriptions of sessions that went away. A session
// whose registration is still queued is remembered so the registration is
// discarded when it arrives.
func (c *Coordinator) processHangups() {
	c.sessionMu.Lock()
	ids := c.hangups
	c.hangups = nil
	var early []string
	for _, id := range ids {
		if _, ok := c.queued[id]; ok {
			early = append(early, id)
		}
	}
	c.sessionMu.Unlock()
	if len(ids) == 0 {
		return
	}

	for _, id := range early {
		c.gone[id] = struct{}{}
	}
	for _, id := range ids {
		c.deferred = slices.DeleteFunc(c.deferred, func(cmd Command) bool {
			return cmd.SubscriptionID == id
		})
		if c.subs.Exists(id) != nil {
			continue
		}
		c.log.Debug("Subscription %s hung up", id)
		c.endSubscription(id)
	}
	if closed := c.closeOrphans(); len(closed) > 0 {
		c.log.Debug("Closed unused ports %v", closed)
	}
}

// quarantine tells interested subscriptions that each bad port failed and
// was closed, then forgets the port everywhere.
func (c *Coordinator) quarantine(bad []string) {
	for _, name := range bad {
		c.log.Warn("Quarantining port %s", name)
		c.failed = append(c.failed, c.subs.BroadcastForPort(name, protocol.NewErrorResponse(protocol.PortReadError(name, nil)))...)
		c.failed = append(c.failed, c.subs.BroadcastForPort(name, &protocol.ClosedResponse{Port: name})...)
		c.ports.Close(name)
		c.locks.Clear(name)
		c.subs.RemovePortFromAll(name)
	}
}

// dropFailed ends every subscription a delivery failed for this cycle.
func (c *Coordinator) dropFailed() {
	if len(c.failed) == 0 {
		return
	}
	for _, err := range c.failed {
		var bridgeErr *protocol.Error
		if !errors.As(err, &bridgeErr) || bridgeErr.SubscriptionID == "" {
			continue
		}
		id := bridgeErr.SubscriptionID
		if c.subs.Exists(id) != nil {
			continue
		}
		c.log.Info("Dropping subscription %s: %v", id, err)
		c.endSubscription(id)
	}
	c.closeOrphans()
	c.failed = c.failed[:0]
}

func (c *Coordinator) endSubscription(id string) {
	c.subs.End(id)
	if freed := c.locks.UnlockAllFor(id); len(freed) > 0 {
		c.log.Debug("Released write locks of %s: %v", id, freed)
	}
}

// closeOrphans closes every open port nobody is interested in and returns
// their names.
func (c *Coordinator) closeOrphans() []string {
	var closed []string
	for _, name := range c.ports.Names() {
		if c.subs.HasInterest(name) {
			continue
		}
		c.ports.Close(name)
		c.locks.Clear(name)
		closed = append(closed, name)
	}
	return closed
}

// Status returns the snapshot published after the most recent cycle.
func (c *Coordinator) Status() Status {
	return *c.status.Load()
}
