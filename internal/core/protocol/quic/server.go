// Package quic carries protocol envelopes over QUIC. Every call uses its own
// bidirectional stream: the client writes one request and closes its side,
// the server answers with one response and closes its side.
package quic

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
)

const (
	codeNoError    quic.ApplicationErrorCode = 0
	codeGoingAway  quic.ApplicationErrorCode = 1
	streamCanceled quic.StreamErrorCode      = 0
)

type Server struct {
	handler protocol.Handler
	tls     *tls.Config
	config  Config
	logger  log.Log

	mu       sync.Mutex
	listener *quic.Listener
	conns    map[*quic.Conn]struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool

	calls atomic.Uint64
}

func NewServer(handler protocol.Handler, tlsConfig *tls.Config, config Config, logger log.Log) *Server {
	return &Server{
		handler: handler,
		tls:     tlsConfig,
		config:  config.withDefaults(),
		conns:   make(map[*quic.Conn]struct{}),
		logger:  logger.With(log.String("component", "quic")),
	}
}

// Listen binds addr. Serve must be called to accept connections.
func (s *Server) Listen(addr string) error {
	l, err := quic.ListenAddr(addr, s.tls, s.config.quicConfig())
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	s.logger.Info("QUIC listener started", log.String("addr", l.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("quic server is not listening")
	}

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if s.closed.Load() || ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to accept QUIC connection")
		}

		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			_ = conn.CloseWithError(codeGoingAway, "server shutting down")
			return nil
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn *quic.Conn) {
	logger := s.logger.With(log.String("remote_addr", conn.RemoteAddr().String()))
	logger.Debug("QUIC client connected")

	var streams sync.WaitGroup
	defer func() {
		streams.Wait()
		_ = conn.CloseWithError(codeNoError, "")

		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()

		logger.Debug("QUIC client disconnected")
	}()

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		streams.Add(1)
		go func() {
			defer streams.Done()
			s.serveStream(ctx, stream, logger)
		}()
	}
}

func (s *Server) serveStream(ctx context.Context, stream *quic.Stream, logger log.Log) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()
	_ = stream.SetDeadline(time.Now().Add(s.config.RequestTimeout))

	s.calls.Add(1)
	resp := s.answer(ctx, stream)

	data, err := protocol.Encode(resp)
	if err != nil {
		data, _ = protocol.Encode(protocol.NewError(resp, protocol.CodeInternal, err.Error()))
	}
	if _, err = stream.Write(data); err != nil {
		logger.Debug("Failed to write response", log.Error(err))
		stream.CancelWrite(streamCanceled)
		return
	}
	_ = stream.Close()
}

func (s *Server) answer(ctx context.Context, stream *quic.Stream) *protocol.Message {
	data, err := io.ReadAll(io.LimitReader(stream, s.config.MaxMessageSize+1))
	if err != nil {
		return protocol.NewError(nil, protocol.CodeTransport, err.Error())
	}
	if int64(len(data)) > s.config.MaxMessageSize {
		stream.CancelRead(streamCanceled)
		return protocol.NewError(nil, protocol.CodeInvalidRequest, protocol.ErrMessageTooLarge.Error())
	}

	req, err := protocol.Decode(data)
	if err != nil {
		return protocol.NewError(nil, protocol.CodeInvalidRequest, err.Error())
	}
	if req.Type != protocol.TypeRequest {
		return protocol.NewError(req, protocol.CodeInvalidRequest, "expected a request")
	}
	if req.Method == protocol.MethodWatch {
		return protocol.NewError(req, protocol.CodeUnknownMethod, protocol.ErrWatchUnsupported.Error())
	}
	return s.handler.Handle(ctx, req)
}

// Calls returns the number of streams served.
func (s *Server) Calls() uint64 {
	return s.calls.Load()
}

// Close stops accepting, closes every connection and waits for in-flight
// calls.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	l := s.listener
	conns := make([]*quic.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if l != nil {
		err = l.Close()
	}
	for _, c := range conns {
		_ = c.CloseWithError(codeGoingAway, "server shutting down")
	}
	s.wg.Wait()

	s.logger.Info("QUIC server closed", log.Uint64("calls", s.calls.Load()))
	return err
}
