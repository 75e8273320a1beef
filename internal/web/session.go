package web

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codefionn/wsserial/internal/arbiter"
	"github.com/codefionn/wsserial/internal/consts"
	"github.com/codefionn/wsserial/internal/logger"
	"github.com/codefionn/wsserial/internal/protocol"
)

var (
	errSessionClosed  = errors.New("session closed")
	errSendBufferFull = errors.New("session send buffer full")
	errServerBusy     = errors.New("server busy, request dropped")
	errBinaryFrame    = errors.New("binary frames are not supported, send JSON text")
)

// Session is one WebSocket client. It implements subscription.Route so the
// arbiter can deliver responses to it.
type Session struct {
	ID        string
	conn      *websocket.Conn
	send      chan protocol.Response
	quit      chan struct{}
	closeOnce sync.Once
	reason    string
	arbiter   Arbiter
	hub       *Hub
	heartbeat time.Duration
	timeout   time.Duration
	log       *logger.Logger
}

// NewSession wraps an upgraded connection.
func NewSession(conn *websocket.Conn, arb Arbiter, hub *Hub, heartbeat, timeout time.Duration) *Session {
	id := uuid.NewString()
	return &Session{
		ID:        id,
		conn:      conn,
		send:      make(chan protocol.Response, consts.SessionSendBuffer),
		quit:      make(chan struct{}),
		arbiter:   arb,
		hub:       hub,
		heartbeat: heartbeat,
		timeout:   timeout,
		log:       logger.Global().WithPrefix("web").WithPrefix(id[:8]),
	}
}

// Send queues msg for the write pump. It never blocks: a gone or slow client
// makes it fail.
func (s *Session) Send(msg protocol.Response) error {
	select {
	case <-s.quit:
		return errSessionClosed
	default:
	}

	select {
	case s.send <- msg:
		return nil
	case <-s.quit:
		return errSessionClosed
	default:
		return errSendBufferFull
	}
}

// Shutdown stops both pumps. The write pump sends a close frame with reason.
func (s *Session) Shutdown(reason string) {
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.quit)
	})
}

func (s *Session) reply(msg protocol.Response) {
	if err := s.Send(msg); err != nil {
		s.log.Debug("Dropping %s reply: %v", msg.Type(), err)
	}
}

func (s *Session) replyError(err error) {
	s.reply(protocol.NewErrorResponse(err))
}

func (s *Session) extendDeadline() {
	if s.timeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	}
}

// ReadPump decodes client frames and hands requests to the arbiter. When the
// connection ends it reports the hangup so the arbiter frees what it held.
func (s *Session) ReadPump() {
	defer func() {
		s.arbiter.Hangup(s.ID)
		s.Shutdown("")
		s.hub.Remove(s)
	}()

	s.conn.SetReadLimit(consts.MaxMessageSize)
	s.extendDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.extendDeadline()
		return nil
	})
	s.conn.SetPingHandler(func(appData string) error {
		s.extendDeadline()
		err := s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(consts.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Info("WebSocket read error: %v", err)
			}
			return
		}
		s.extendDeadline()

		if messageType != websocket.TextMessage {
			s.replyError(protocol.UnknownRequest(errBinaryFrame))
			continue
		}

		req, err := protocol.DecodeRequest(data)
		if err != nil {
			s.log.Debug("Rejected frame: %v", err)
			s.replyError(err)
			continue
		}

		err = s.arbiter.Submit(arbiter.Command{SubscriptionID: s.ID, Request: req})
		switch {
		case err == nil:
		case errors.Is(err, arbiter.ErrQueueFull):
			s.log.Warn("%v", err)
			s.replyError(protocol.Wrap(errServerBusy))
		default:
			s.replyError(protocol.Wrap(err))
			return
		}
	}
}

// WritePump encodes queued responses onto the connection and pings the
// client every heartbeat interval.
func (s *Session) WritePump() {
	var ping <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer s.conn.Close()

	for {
		select {
		case msg := <-s.send:
			data, err := protocol.Encode(msg)
			if err != nil {
				s.log.Error("Failed to encode %s: %v", msg.Type(), err)
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(consts.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug("Failed to write message: %v", err)
				s.Shutdown("")
				return
			}

		case <-ping:
			_ = s.conn.SetWriteDeadline(time.Now().Add(consts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Shutdown("")
				return
			}

		case <-s.quit:
			s.drain()
			closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, s.reason)
			_ = s.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(consts.WriteWait))
			return
		}
	}
}

// drain writes whatever is still queued, best effort.
func (s *Session) drain() {
	for {
		select {
		case msg := <-s.send:
			data, err := protocol.Encode(msg)
			if err != nil {
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(consts.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
