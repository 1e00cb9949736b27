// Package client is the Go SDK for the sprite server. It speaks the
// websocket transport by default and QUIC on request.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
	"github.com/zeusync/spriteserver/internal/core/protocol/quic"
	"github.com/zeusync/spriteserver/internal/core/protocol/websocket"
)

// Transport selects the wire protocol.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportQUIC      Transport = "quic"
)

// Config holds configuration for the client
type Config struct {
	ServerAddr string
	Transport  Transport
	// WebSocketPath is the endpoint path for TransportWebSocket.
	WebSocketPath string

	ConnectTimeout time.Duration
	CallTimeout    time.Duration

	// InsecureSkipVerify accepts the server's self-signed QUIC certificate.
	InsecureSkipVerify bool

	LogLevel log.Level
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerAddr:         "localhost:8089",
		Transport:          TransportWebSocket,
		WebSocketPath:      "/ws",
		ConnectTimeout:     10 * time.Second,
		CallTimeout:        5 * time.Second,
		InsecureSkipVerify: true,
		LogLevel:           log.LevelInfo,
	}
}

func (c Config) validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("%w: server address is required", ErrInvalidConfig)
	}
	switch c.Transport {
	case TransportWebSocket, TransportQUIC:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	return nil
}

type caller interface {
	Call(ctx context.Context, method protocol.Method, params, result any) error
	Done() <-chan struct{}
	Close() error
}

// Client represents a sprite server connection
type Client struct {
	config Config
	logger log.Log

	mu   sync.Mutex
	conn caller
	ws   *websocket.Client

	connected int32 // atomic bool
	closed    int32 // atomic bool
}

// NewClient creates a client. Call Connect before anything else.
func NewClient(config Config) *Client {
	return NewClientWithLogger(config, log.New(config.LogLevel))
}

func NewClientWithLogger(config Config, logger log.Log) *Client {
	def := DefaultClientConfig()
	if config.WebSocketPath == "" {
		config.WebSocketPath = def.WebSocketPath
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = def.ConnectTimeout
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = def.CallTimeout
	}
	if config.Transport == "" {
		config.Transport = def.Transport
	}
	return &Client{
		config: config,
		logger: logger.With(log.String("component", "client"), log.String("transport", string(config.Transport))),
	}
}

// Connect establishes connection to the sprite server
func (c *Client) Connect(ctx context.Context) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClientClosed
	}
	if err := c.config.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if atomic.LoadInt32(&c.connected) == 1 {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	switch c.config.Transport {
	case TransportQUIC:
		qc, err := quic.Dial(ctx, c.config.ServerAddr, quic.ClientTLS(c.config.InsecureSkipVerify), quic.DefaultConfig(), c.logger)
		if err != nil {
			return &TransportError{Op: "connect", Err: err}
		}
		c.conn, c.ws = qc, nil
	default:
		url := "ws://" + c.config.ServerAddr + c.config.WebSocketPath
		wc, err := websocket.Dial(ctx, url, websocket.DefaultConfig(), c.logger)
		if err != nil {
			return &TransportError{Op: "connect", Err: err}
		}
		c.conn, c.ws = wc, wc
	}

	atomic.StoreInt32(&c.connected, 1)
	c.logger.Info("Connected to server", log.String("addr", c.config.ServerAddr))
	return nil
}

// Disconnect closes the connection. The client may Connect again.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !atomic.CompareAndSwapInt32(&c.connected, 1, 0) {
		return ErrNotConnected
	}
	err := c.conn.Close()
	c.conn, c.ws = nil, nil

	c.logger.Info("Disconnected from server")
	return err
}

// Close disconnects and makes the client unusable.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if err := c.Disconnect(); err != nil && err != ErrNotConnected {
		return err
	}
	return nil
}

// Done is closed when the current connection drops. It is nil when not
// connected.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Done()
}

func (c *Client) Width(ctx context.Context) (int, error) {
	var w int
	err := c.call(ctx, protocol.MethodGetWidth, nil, &w)
	return w, err
}

func (c *Client) Height(ctx context.Context) (int, error) {
	var h int
	err := c.call(ctx, protocol.MethodGetHeight, nil, &h)
	return h, err
}

// CreateEntity asks the server to add a sprite at (x, y). The server picks its
// color and velocity.
func (c *Client) CreateEntity(ctx context.Context, x, y int) error {
	return c.call(ctx, protocol.MethodCreateEntity, protocol.CreateParams{X: x, Y: y}, nil)
}

// ListEntities returns every sprite as of one instant on the server.
func (c *Client) ListEntities(ctx context.Context) ([]models.Sprite, error) {
	snap, err := c.Snapshot(ctx)
	return snap.Sprites, err
}

// Snapshot is ListEntities with the tick number and content hash.
func (c *Client) Snapshot(ctx context.Context) (protocol.SnapshotResult, error) {
	var snap protocol.SnapshotResult
	err := c.call(ctx, protocol.MethodListEntities, nil, &snap)
	return snap, err
}

// Watch registers fn for a snapshot after every server tick. fn runs on the
// connection's read goroutine and must not call back into the client.
func (c *Client) Watch(ctx context.Context, fn func(protocol.SnapshotResult)) error {
	c.mu.Lock()
	ws := c.ws
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	if ws == nil {
		return ErrWatchUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()
	return classify(string(protocol.MethodWatch), ws.Watch(ctx, fn))
}

func (c *Client) call(ctx context.Context, method protocol.Method, params, result any) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClientClosed
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	err := classify(string(method), conn.Call(ctx, method, params, result))
	if err != nil && IsTransport(err) {
		c.logger.Debug("Call failed", log.String("method", string(method)), log.Error(err))
	}
	return err
}
