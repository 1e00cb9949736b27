package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
)

// Client is a single websocket connection to a sprite server. It is safe for
// concurrent use.
type Client struct {
	ws     *websocket.Conn
	config Config
	logger log.Log

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uuid.UUID]chan *protocol.Message
	watches map[uuid.UUID]func(protocol.SnapshotResult)
	err     error

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to url, e.g. ws://localhost:8089/ws.
func Dial(ctx context.Context, url string, config Config, logger log.Log) (*Client, error) {
	config = config.withDefaults()

	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  config.WriteTimeout,
		ReadBufferSize:    config.BufferSize,
		WriteBufferSize:   config.BufferSize,
		EnableCompression: config.EnableCompression,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", url)
	}
	ws.SetReadLimit(config.MaxMessageSize)

	c := &Client{
		ws:      ws,
		config:  config,
		logger:  logger.With(log.String("component", "websocket_client"), log.String("url", url)),
		pending: make(map[uuid.UUID]chan *protocol.Message),
		watches: make(map[uuid.UUID]func(protocol.SnapshotResult)),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// Call sends one request and decodes its result into result, which may be
// nil. Remote failures come back as *protocol.Error.
func (c *Client) Call(ctx context.Context, method protocol.Method, params, result any) error {
	resp, err := c.roundTrip(ctx, method, params, nil)
	if err != nil {
		return err
	}
	return resp.DecodeResult(result)
}

// Watch asks the server for a snapshot after every tick. fn runs on the
// client's read goroutine and must not call back into the client.
func (c *Client) Watch(ctx context.Context, fn func(protocol.SnapshotResult)) error {
	resp, err := c.roundTrip(ctx, protocol.MethodWatch, nil, fn)
	if err != nil {
		return err
	}
	return resp.DecodeResult(nil)
}

func (c *Client) roundTrip(ctx context.Context, method protocol.Method, params any, watch func(protocol.SnapshotResult)) (*protocol.Message, error) {
	req, err := protocol.NewRequest(method, params)
	if err != nil {
		return nil, err
	}
	data, err := protocol.Encode(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan *protocol.Message, 1)
	c.mu.Lock()
	if c.err != nil {
		err = c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[req.ID] = ch
	if watch != nil {
		c.watches[req.ID] = watch
	}
	c.mu.Unlock()

	forget := func(keepWatch bool) {
		c.mu.Lock()
		delete(c.pending, req.ID)
		if !keepWatch {
			delete(c.watches, req.ID)
		}
		c.mu.Unlock()
	}

	if err = c.write(data); err != nil {
		forget(false)
		return nil, err
	}

	select {
	case resp := <-ch:
		forget(resp.Error == nil)
		return resp, nil
	case <-ctx.Done():
		forget(false)
		return nil, errors.Wrapf(ctx.Err(), "%s call abandoned", method)
	case <-c.done:
		forget(false)
		return nil, c.Err()
	}
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "failed to write request")
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(errors.Wrap(err, "failed to read message"))
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("Dropping undecodable message", log.Error(err))
			continue
		}

		switch msg.Type {
		case protocol.TypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			c.mu.Unlock()
			if ok {
				ch <- msg
			} else {
				c.logger.Debug("Response for unknown request", log.String("id", msg.ID.String()))
			}
		case protocol.TypePush:
			c.mu.Lock()
			fn := c.watches[msg.ID]
			c.mu.Unlock()
			if fn == nil {
				continue
			}
			var snap protocol.SnapshotResult
			if err = msg.DecodeResult(&snap); err != nil {
				c.logger.Warn("Dropping malformed push", log.Error(err))
				continue
			}
			fn(snap)
		}
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = errors.Wrap(protocol.ErrConnectionClosed, err.Error())
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.mu.Lock()
	if c.err == nil {
		c.err = protocol.ErrConnectionClosed
	}
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })

	return c.ws.Close()
}
