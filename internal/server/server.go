// Package server runs the sprite service behind its network listeners:
// websocket RPC, an HTTP JSON API and QUIC RPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
	"github.com/zeusync/spriteserver/internal/core/protocol/middlewares"
	"github.com/zeusync/spriteserver/internal/core/protocol/quic"
	"github.com/zeusync/spriteserver/internal/core/protocol/websocket"
	"github.com/zeusync/spriteserver/internal/service"
)

// RPCPath is where the websocket endpoint is mounted on ListenAddr.
const RPCPath = "/ws"

// Stats is what /stats reports.
type Stats struct {
	Service     service.Stats                               `json:"service"`
	Calls       map[protocol.Method]middlewares.MethodStats `json:"calls"`
	Connections int                                         `json:"websocket_connections"`
	Watchers    uint64                                      `json:"watchers"`
	QUICCalls   uint64                                      `json:"quic_calls"`
	Uptime      string                                      `json:"uptime"`
}

// Server represents a running sprite server
type Server struct {
	config Config
	svc    *service.Service
	logger log.Log

	dispatcher *Dispatcher
	metrics    *middlewares.Metrics
	watcher    *TickWatcher
	ws         *websocket.Server
	quic       *quic.Server

	rpcHTTP *http.Server
	apiHTTP *http.Server

	mu        sync.Mutex
	running   int32 // atomic bool
	stopped   bool
	startedAt time.Time
	addrs     Addrs
	group     *errgroup.Group
	cancel    context.CancelFunc
}

// Addrs are the bound listener addresses. Disabled listeners are empty.
type Addrs struct {
	RPC  string
	HTTP string
	QUIC string
}

// New assembles a server around svc.
func New(config Config, svc *service.Service, logger log.Log) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger = logger.With(log.String("component", "server"))
	s := &Server{
		config: config,
		svc:    svc,
		logger: logger,
	}
	s.dispatcher = NewDispatcher(svc, logger)
	s.metrics = middlewares.NewMetrics()
	handler := middlewares.Chain(s.dispatcher,
		middlewares.Recover(logger),
		middlewares.Logging(logger),
		s.metrics.Middleware,
	)
	s.watcher = NewTickWatcher(svc.Events(), svc, logger)
	s.ws = websocket.NewServer(handler, s.watcher, config.WebSocket, logger)

	if config.QUICAddr != "" {
		tlsConf, err := quic.ServerTLS(config.TLSCertFile, config.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		s.quic = quic.NewServer(handler, tlsConf, config.QUIC, logger)
	}

	return s, nil
}

// Start loads the world, starts the simulation and binds every listener. Any
// failure here is fatal and leaves nothing running. A stopped server cannot be
// started again.
func (s *Server) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}
	defer func() {
		if err != nil {
			atomic.StoreInt32(&s.running, 0)
		}
	}()

	if err = s.svc.Start(ctx); err != nil {
		return err
	}

	var listeners []net.Listener
	closeAll := func() {
		for _, l := range listeners {
			_ = l.Close()
		}
		if s.quic != nil {
			_ = s.quic.Close()
		}
		_ = s.svc.Stop()
	}

	rpcLn, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		closeAll()
		return fmt.Errorf("%w: rpc %s: %v", ErrListenerFailed, s.config.ListenAddr, err)
	}
	listeners = append(listeners, rpcLn)
	s.addrs = Addrs{RPC: rpcLn.Addr().String()}

	var apiLn net.Listener
	if s.config.HTTPAddr != "" {
		if apiLn, err = net.Listen("tcp", s.config.HTTPAddr); err != nil {
			closeAll()
			return fmt.Errorf("%w: http %s: %v", ErrListenerFailed, s.config.HTTPAddr, err)
		}
		listeners = append(listeners, apiLn)
		s.addrs.HTTP = apiLn.Addr().String()
	}

	if s.quic != nil {
		if err = s.quic.Listen(s.config.QUICAddr); err != nil {
			closeAll()
			return fmt.Errorf("%w: quic %s: %v", ErrListenerFailed, s.config.QUICAddr, err)
		}
		s.addrs.QUIC = s.quic.Addr().String()
	}

	rpcMux := http.NewServeMux()
	rpcMux.Handle(RPCPath, s.ws)
	s.rpcHTTP = &http.Server{Handler: rpcMux, ReadHeaderTimeout: 10 * time.Second}

	api := NewAPI(s.svc, s.Stats, s.Healthy, s.logger)
	s.apiHTTP = &http.Server{Handler: api.Routes(), ReadHeaderTimeout: 10 * time.Second}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	s.group = g

	s.startedAt = time.Now()

	g.Go(func() error { return serveHTTP(s.rpcHTTP, rpcLn) })
	if apiLn != nil {
		g.Go(func() error { return serveHTTP(s.apiHTTP, apiLn) })
	}
	if s.quic != nil {
		g.Go(func() error { return s.quic.Serve(gctx) })
	}
	// One failing listener takes the others down with it.
	g.Go(func() error {
		<-gctx.Done()
		_ = s.rpcHTTP.Close()
		_ = s.apiHTTP.Close()
		if s.quic != nil {
			_ = s.quic.Close()
		}
		return nil
	})

	s.logger.Info("Server started",
		log.String("rpc", s.addrs.RPC+RPCPath),
		log.String("http", s.addrs.HTTP),
		log.String("quic", s.addrs.QUIC))
	return nil
}

func serveHTTP(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Wait blocks until every listener has exited, either because one failed or
// because Stop was called, and returns the first listener error.
func (s *Server) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return ErrServerNotRunning
	}
	return g.Wait()
}

// Stop shuts every listener down and stops the simulation. The durable store
// belongs to whoever built the service.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}
	s.stopped = true

	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := s.apiHTTP.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.rpcHTTP.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("rpc shutdown: %w", err))
	}
	if err := s.ws.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.quic != nil {
		if err := s.quic.Close(); err != nil {
			errs = append(errs, fmt.Errorf("quic close: %w", err))
		}
	}
	s.cancel()
	if err := s.group.Wait(); err != nil {
		errs = append(errs, err)
	}

	if err := s.svc.Stop(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("Server stopped", log.Duration("uptime", time.Since(s.startedAt)))
	return errors.Join(errs...)
}

// Addrs returns the bound addresses of a started server.
func (s *Server) Addrs() Addrs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addrs
}

func (s *Server) Healthy() bool {
	return atomic.LoadInt32(&s.running) == 1 && s.svc.Stats().Loop.Running
}

func (s *Server) Stats() Stats {
	st := Stats{
		Service:     s.svc.Stats(),
		Calls:       s.metrics.Snapshot(),
		Connections: s.ws.Connections(),
		Watchers:    s.watcher.Watchers(),
	}
	if s.quic != nil {
		st.QUICCalls = s.quic.Calls()
	}
	if atomic.LoadInt32(&s.running) == 1 {
		st.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	}
	return st
}
