package web

import (
	"context"
	"sync"

	"github.com/codefionn/wsserial/internal/logger"
)

// Hub maintains the set of live sessions so shutdown can close them.
type Hub struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup
	closed   bool
	log      *logger.Logger
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		log:      logger.Global().WithPrefix("web"),
	}
}

// Add tracks s. It returns false once the hub has been closed.
func (h *Hub) Add(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.sessions[s.ID] = s
	h.wg.Add(1)
	h.log.Debug("Session registered: %s", s.ID)
	return true
}

func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.ID]; ok {
		delete(h.sessions, s.ID)
		h.wg.Done()
		h.log.Debug("Session unregistered: %s", s.ID)
	}
}

// CloseAll asks every session to say goodbye and stops accepting new ones.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Shutdown(reason)
	}
}

// Wait blocks until every session has been removed or ctx is done.
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionCount returns the number of connected sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
