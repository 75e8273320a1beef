package arbiter

import (
	"errors"

	"github.com/codefionn/wsserial/internal/protocol"
)

// dispatch routes cmd to its handler. A handler error is answered with an
// Error response to the origin.
func (c *Coordinator) dispatch(cmd Command) {
	id := cmd.SubscriptionID

	var err error
	switch req := cmd.Request.(type) {
	case *protocol.OpenRequest:
		err = c.handleOpen(id, req)
	case *protocol.WriteLockRequest:
		err = c.handleWriteLock(id, req)
	case *protocol.ReleaseWriteLockRequest:
		err = c.handleReleaseWriteLock(id, req)
	case *protocol.WriteRequest:
		err = c.handleWrite(id, req)
	case *protocol.CloseRequest:
		err = c.handleClose(id, req)
	case *protocol.ListRequest:
		err = c.handleList(id)
	default:
		err = protocol.UnknownRequest(nil)
	}

	if err != nil {
		c.log.Warn("Error '%v' handling request from %s", err, id)
		c.reply(id, protocol.NewErrorResponse(err))
	}
}

func (c *Coordinator) handleOpen(id string, req *protocol.OpenRequest) error {
	if err := c.subs.Exists(id); err != nil {
		return err
	}
	if err := c.ports.Open(req.Port); err != nil {
		return err
	}
	if err := c.subs.AddPortInterest(id, req.Port); err != nil {
		return err
	}
	c.reply(id, &protocol.OpenedResponse{Port: req.Port})
	return nil
}

func (c *Coordinator) handleWriteLock(id string, req *protocol.WriteLockRequest) error {
	if err := c.subs.Exists(id); err != nil {
		return err
	}
	if err := c.locks.TryLock(req.Port, id); err != nil {
		return err
	}
	c.reply(id, &protocol.WriteLockedResponse{Port: req.Port})
	return nil
}

func (c *Coordinator) handleReleaseWriteLock(id string, req *protocol.ReleaseWriteLockRequest) error {
	if err := c.subs.Exists(id); err != nil {
		return err
	}
	if req.Port == nil {
		c.locks.UnlockAllFor(id)
		c.reply(id, &protocol.WriteLockReleasedResponse{})
		return nil
	}
	if err := c.locks.Unlock(*req.Port, id); err != nil {
		return err
	}
	c.reply(id, &protocol.WriteLockReleasedResponse{Port: protocol.Ptr(*req.Port)})
	return nil
}

func (c *Coordinator) handleWrite(id string, req *protocol.WriteRequest) error {
	if err := c.subs.Exists(id); err != nil {
		return err
	}
	if err := c.locks.CheckOwned(req.Port, id); err != nil {
		return err
	}
	data, err := protocol.DecodeData(req.Data, req.Base64)
	if err != nil {
		return err
	}
	if err := c.ports.Write(req.Port, data); err != nil {
		return err
	}
	c.reply(id, &protocol.WroteResponse{Port: req.Port})
	return nil
}

// handleClose drops interest in one port, or in all ports when none is named.
// Hardware ports nobody listens to any more are closed and unlocked.
func (c *Coordinator) handleClose(id string, req *protocol.CloseRequest) error {
	if req.Port != nil {
		port := *req.Port
		if err := c.subs.RemovePortInterest(id, port); err != nil {
			return err
		}
		c.locks.UnlockIfOwnedBy(port, id)
		if c.ports.IsOpen(port) && !c.subs.HasInterest(port) {
			c.ports.Close(port)
			c.locks.Clear(port)
		}
		c.reply(id, &protocol.ClosedResponse{Port: port})
		return nil
	}

	c.subs.ClearInterests(id)
	c.locks.UnlockAllFor(id)
	for _, port := range c.closeOrphans() {
		c.reply(id, &protocol.ClosedResponse{Port: port})
	}
	return nil
}

func (c *Coordinator) handleList(id string) error {
	if err := c.subs.Exists(id); err != nil {
		return err
	}
	names, err := c.ports.ListAvailable()
	if err != nil {
		return err
	}
	c.reply(id, &protocol.ListResponse{Ports: names})
	return nil
}

// reply unicasts msg to id. A failed delivery is resolved at the end of the
// cycle; a vanished subscription is only logged.
func (c *Coordinator) reply(id string, msg protocol.Response) {
	err := c.subs.Unicast(id, msg)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrSubscriptionNotFound):
		c.log.Debug("Dropped %s for unknown subscription %s", msg.Type(), id)
	default:
		c.log.Warn("Error sending %s to %s: %v", msg.Type(), id, err)
		c.failed = append(c.failed, err)
	}
}
