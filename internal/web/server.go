// Package web exposes the arbiter over WebSocket and serves the landing page
// and status endpoint over plain HTTP.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/codefionn/wsserial/internal/arbiter"
	"github.com/codefionn/wsserial/internal/consts"
	"github.com/codefionn/wsserial/internal/logger"
	"github.com/codefionn/wsserial/internal/protocol"
	"github.com/codefionn/wsserial/internal/subscription"
)

//go:embed static/*
var StaticFiles embed.FS

// Arbiter is the part of the coordinator the web layer talks to.
type Arbiter interface {
	Submit(arbiter.Command) error
	Register(id string, route subscription.Route) error
	Hangup(id string)
	Status() arbiter.Status
}

// Options configures the listeners and session behaviour.
type Options struct {
	HTTPAddr          string
	WSAddr            string
	MaxConnections    int
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
}

// Server represents the web server
type Server struct {
	opts     Options
	arbiter  Arbiter
	hub      *Hub
	sem      *semaphore.Weighted
	upgrader websocket.Upgrader
	page     *template.Template

	httpServer *http.Server
	wsServer   *http.Server
	httpLn     net.Listener
	wsLn       net.Listener

	log *logger.Logger
}

// StatusReport is the JSON body of GET /status.
type StatusReport struct {
	arbiter.Status
	Sessions       int `json:"sessions"`
	MaxConnections int `json:"max_connections"`
}

type pageData struct {
	WSPort      int
	SubProtocol string
}

// NewServer creates a new web server
func NewServer(arb Arbiter, opts Options) (*Server, error) {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = consts.DefaultMaxConnections
	}

	page, err := template.ParseFS(StaticFiles, "static/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse landing page: %w", err)
	}

	s := &Server{
		opts:    opts,
		arbiter: arb,
		hub:     NewHub(),
		sem:     semaphore.NewWeighted(int64(opts.MaxConnections)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{protocol.SubProtocol},
			CheckOrigin: func(r *http.Request) bool {
				return true // the landing page is served from another port
			},
		},
		page: page,
		log:  logger.Global().WithPrefix("web"),
	}

	errorLog := logger.StdLogger(s.log, slog.LevelWarn)
	s.httpServer = &http.Server{
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          errorLog,
	}
	s.wsServer = &http.Server{
		Handler:           s.WSHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          errorLog,
	}
	return s, nil
}

// HTTPHandler serves the landing page and the status endpoint.
func (s *Server) HTTPHandler() http.Handler {
	router := httprouter.New()
	router.GET("/", s.handleIndex)
	router.GET("/index.html", s.handleIndex)
	router.GET("/status", s.handleStatus)
	return router
}

// WSHandler accepts WebSocket sessions on / and /ws.
func (s *Server) WSHandler() http.Handler {
	router := httprouter.New()
	router.GET("/", s.handleWebSocket)
	router.GET("/ws", s.handleWebSocket)
	return router
}

// Listen binds both listeners. Bind failures are reported here so the
// caller can fail before anything is served.
func (s *Server) Listen() error {
	httpLn, err := net.Listen("tcp", s.opts.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.HTTPAddr, err)
	}
	wsLn, err := net.Listen("tcp", s.opts.WSAddr)
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.opts.WSAddr, err)
	}
	s.httpLn = httpLn
	s.wsLn = wsLn
	return nil
}

// Serve runs both servers until ctx is cancelled, then shuts them down and
// closes every session.
func (s *Server) Serve(ctx context.Context) error {
	if s.httpLn == nil || s.wsLn == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("Landing page on http://%s/", s.httpLn.Addr())
		return ignoreClosed(s.httpServer.Serve(s.httpLn))
	})
	g.Go(func() error {
		s.log.Info("WebSocket endpoint on ws://%s/", s.wsLn.Addr())
		return ignoreClosed(s.wsServer.Serve(s.wsLn))
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})
	return g.Wait()
}

func (s *Server) shutdown() error {
	s.log.Info("Stopping web server...")
	ctx, cancel := context.WithTimeout(context.Background(), consts.ShutdownTimeout)
	defer cancel()

	s.hub.CloseAll("server shutting down")

	var errs []error
	if err := s.wsServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown websocket server: %w", err))
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown HTTP server: %w", err))
	}
	if err := s.hub.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("sessions did not finish: %w", err))
	}
	return errors.Join(errs...)
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// HTTPAddr returns the bound landing page address.
func (s *Server) HTTPAddr() string {
	if s.httpLn != nil {
		return s.httpLn.Addr().String()
	}
	return s.opts.HTTPAddr
}

// WSAddr returns the bound WebSocket address.
func (s *Server) WSAddr() string {
	if s.wsLn != nil {
		return s.wsLn.Addr().String()
	}
	return s.opts.WSAddr
}

func (s *Server) wsPort() int {
	_, port, err := net.SplitHostPort(s.WSAddr())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

// handleWebSocket upgrades clients that speak the bridge sub-protocol
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !slices.Contains(websocket.Subprotocols(r), protocol.SubProtocol) {
		s.log.Debug("Rejected %s: missing sub-protocol", r.RemoteAddr)
		http.Error(w, "sub-protocol "+protocol.SubProtocol+" required", http.StatusBadRequest)
		return
	}

	if !s.sem.TryAcquire(1) {
		s.log.Warn("Rejected %s: connection limit %d reached", r.RemoteAddr, s.opts.MaxConnections)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.sem.Release(1)
		s.log.Warn("Failed to upgrade WebSocket: %v", err)
		return
	}

	session := NewSession(conn, s.arbiter, s.hub, s.opts.HeartbeatInterval, s.opts.ClientTimeout)
	if !s.hub.Add(session) {
		s.refuse(conn, websocket.CloseGoingAway, "server shutting down")
		return
	}
	if err := s.arbiter.Register(session.ID, session); err != nil {
		s.log.Warn("Refusing %s: %v", r.RemoteAddr, err)
		s.hub.Remove(session)
		s.refuse(conn, websocket.CloseTryAgainLater, "server busy")
		return
	}

	s.log.Info("Connection from %s as %s", r.RemoteAddr, session.ID)
	go session.WritePump()
	go func() {
		defer s.sem.Release(1)
		session.ReadPump()
		s.log.Info("Client %s disconnected", session.ID)
	}()
}

// refuse closes an upgraded connection that never became a session.
func (s *Server) refuse(conn *websocket.Conn, code int, reason string) {
	closeMsg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(consts.WriteWait))
	conn.Close()
	s.sem.Release(1)
}

// handleIndex renders the landing page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := pageData{WSPort: s.wsPort(), SubProtocol: protocol.SubProtocol}
	if err := s.page.Execute(w, data); err != nil {
		s.log.Error("Failed to render page: %v", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	report := StatusReport{
		Status:         s.arbiter.Status(),
		Sessions:       s.hub.SessionCount(),
		MaxConnections: s.opts.MaxConnections,
	}
	w.Header().Set("Content-Type", "application/json")
	if report.Status.Status == arbiter.HealthStatusStopped {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(report); err != nil {
		s.log.Error("Failed to write status: %v", err)
	}
}
