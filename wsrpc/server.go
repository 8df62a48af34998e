// Package wsrpc serves RPC requests over websocket connections.
//
// Each message carries one request. Text messages are decoded as JSON and
// binary messages as CBOR; the reply uses the same message type. Requests on
// one connection are dispatched concurrently, up to WithMaxInFlight at a
// time, so replies may arrive out of order and clients match them by id.
package wsrpc

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/mnehpets/typedrpc/rpc"
)

const (
	defaultReadLimit   = 1 << 20
	defaultMaxInFlight = 32
	writeWait          = 10 * time.Second
)

// Server upgrades HTTP requests and dispatches every message to a Dispatcher.
type Server struct {
	dispatcher  *rpc.Dispatcher
	upgrader    websocket.Upgrader
	logger      *slog.Logger
	readLimit   int64
	maxInFlight int
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the origins allowed to open connections. "*" allows
// any origin. Without this option only same-host origins are accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) == 0 {
			s.upgrader.CheckOrigin = nil
			return
		}
		allowed := slices.Clone(origins)
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
		}
	}
}

// WithLogger sets the logger for connection errors. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReadLimit sets the maximum message size in bytes. Larger messages close
// the connection. Defaults to 1 MiB.
func WithReadLimit(n int64) Option {
	return func(s *Server) { s.readLimit = n }
}

// WithMaxInFlight limits how many requests from one connection are dispatched
// at once. When the limit is reached the connection is not read until a
// request completes. n <= 0 removes the limit. Defaults to 32.
func WithMaxInFlight(n int) Option {
	return func(s *Server) { s.maxInFlight = n }
}

// New returns a Server dispatching to d.
func New(d *rpc.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher:  d,
		logger:      slog.Default(),
		readLimit:   defaultReadLimit,
		maxInFlight: defaultMaxInFlight,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request and serves the connection until the client
// disconnects. It returns after in-flight requests have been answered or
// their replies have failed.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Connection", "Upgrade")
		w.Header().Set("Upgrade", "websocket")
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.DebugContext(r.Context(), "wsrpc: upgrade", "remote", r.RemoteAddr, "error", err)
		return
	}
	if s.readLimit > 0 {
		ws.SetReadLimit(s.readLimit)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ctx = rpc.WithPeer(ctx, rpc.Peer{
		Transport:  "websocket",
		RemoteAddr: r.RemoteAddr,
		Header:     r.Header,
	})
	s.serve(ctx, newConn(ws))
}

func (s *Server) serve(ctx context.Context, c *conn) {
	var g errgroup.Group
	if s.maxInFlight > 0 {
		g.SetLimit(s.maxInFlight)
	}
	defer func() {
		_ = g.Wait()
		c.Close()
	}()

	for {
		mt, payload, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WarnContext(ctx, "wsrpc: read", "error", err)
			}
			return
		}
		codec := rpc.JSON
		if mt == websocket.BinaryMessage {
			codec = rpc.CBOR
		}
		// Go blocks while the connection is at its limit.
		g.Go(func() error {
			out := s.dispatcher.ServeCodec(ctx, codec, payload)
			if err := c.WriteMessage(mt, out); err != nil {
				s.logger.WarnContext(ctx, "wsrpc: write", "error", err)
			}
			return nil
		})
	}
}

// conn serialises writes on a websocket connection. Reads happen on a single
// goroutine and are not locked.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func newConn(ws *websocket.Conn) *conn {
	return &conn{ws: ws}
}

func (c *conn) ReadMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

func (c *conn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Close()
}

var _ http.Handler = (*Server)(nil)
