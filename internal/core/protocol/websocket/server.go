// Package websocket carries protocol envelopes over gorilla/websocket. Each
// text frame holds one envelope; requests on a connection are served
// concurrently and matched to responses by ID.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
)

// Server upgrades HTTP requests and serves protocol calls on them.
type Server struct {
	handler  protocol.Handler
	watcher  protocol.Watcher
	config   Config
	upgrader websocket.Upgrader
	logger   log.Log

	mu     sync.Mutex
	conns  map[string]*conn
	closed bool
	wg     sync.WaitGroup

	accepted atomic.Uint64
}

// NewServer creates a Server. watcher may be nil, in which case Watch
// requests are refused.
func NewServer(handler protocol.Handler, watcher protocol.Watcher, config Config, logger log.Log) *Server {
	config = config.withDefaults()
	return &Server{
		handler: handler,
		watcher: watcher,
		config:  config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    config.BufferSize,
			WriteBufferSize:   config.BufferSize,
			EnableCompression: config.EnableCompression,
			CheckOrigin:       func(*http.Request) bool { return true },
		},
		conns:  make(map[string]*conn),
		logger: logger.With(log.String("component", "websocket")),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed",
			log.String("remote_addr", r.RemoteAddr), log.Error(err))
		return
	}

	c := &conn{
		id:     uuid.NewString(),
		ws:     ws,
		server: s,
		send:   make(chan *protocol.Message, s.config.SendQueue),
		done:   make(chan struct{}),
	}
	c.logger = s.logger.With(log.String("conn_id", c.id), log.String("remote_addr", r.RemoteAddr))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	s.mu.Unlock()
	s.accepted.Add(1)

	c.logger.Debug("Websocket client connected")
	go c.serve()
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every client and waits for their goroutines.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close("server shutting down")
	}
	s.wg.Wait()
	s.logger.Info("Websocket server closed", log.Uint64("accepted", s.accepted.Load()))
	return nil
}

func (s *Server) remove(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.wg.Done()
}

type conn struct {
	id     string
	ws     *websocket.Conn
	server *Server
	logger log.Log

	writeMu sync.Mutex
	send    chan *protocol.Message

	closeOnce sync.Once
	done      chan struct{}

	watchMu     sync.Mutex
	cancelWatch func()
}

func (c *conn) serve() {
	defer c.server.remove(c)

	var calls sync.WaitGroup
	defer calls.Wait()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer c.close("")

	cfg := c.server.config
	c.ws.SetReadLimit(cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	go c.pump()

	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Websocket read failed", log.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))

		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}

		req, err := protocol.Decode(data)
		if err != nil {
			_ = c.write(protocol.NewError(nil, protocol.CodeInvalidRequest, err.Error()))
			continue
		}
		if req.Type != protocol.TypeRequest {
			_ = c.write(protocol.NewError(req, protocol.CodeInvalidRequest, "expected a request"))
			continue
		}

		if req.Method == protocol.MethodWatch {
			_ = c.write(c.watch(req))
			continue
		}

		calls.Add(1)
		go func() {
			defer calls.Done()
			if err := c.write(c.server.handler.Handle(ctx, req)); err != nil {
				c.logger.Debug("Failed to write response",
					log.String("method", string(req.Method)), log.Error(err))
			}
		}()
	}
}

// watch registers the connection for per-tick pushes. A second Watch on the
// same connection replaces the first.
func (c *conn) watch(req *protocol.Message) *protocol.Message {
	if c.server.watcher == nil {
		return protocol.NewError(req, protocol.CodeUnknownMethod, protocol.ErrWatchUnsupported.Error())
	}

	watchID := req.ID
	cancel, err := c.server.watcher.Watch(func(snap protocol.SnapshotResult) {
		push, err := protocol.NewPush(watchID, snap)
		if err != nil {
			c.logger.Warn("Failed to build push", log.Error(err))
			return
		}
		select {
		case c.send <- push:
		case <-c.done:
		default:
			c.logger.Debug("Push dropped, client is slow", log.Uint64("tick", snap.Tick))
		}
	})
	if err != nil {
		return protocol.NewError(req, protocol.CodeInternal, err.Error())
	}

	c.watchMu.Lock()
	prev := c.cancelWatch
	c.cancelWatch = cancel
	c.watchMu.Unlock()
	if prev != nil {
		prev()
	}

	return protocol.NewResult(req, nil)
}

// pump writes queued pushes and keeps the connection alive with pings.
func (c *conn) pump() {
	ticker := time.NewTicker(c.server.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.close("")
				return
			}
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.server.config.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.close("")
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *conn) write(msg *protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout))
	if err = c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

func (c *conn) close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)

		c.watchMu.Lock()
		if c.cancelWatch != nil {
			c.cancelWatch()
			c.cancelWatch = nil
		}
		c.watchMu.Unlock()

		if reason != "" {
			c.writeMu.Lock()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			c.writeMu.Unlock()
		}
		_ = c.ws.Close()
		c.logger.Debug("Websocket client disconnected")
	})
}
