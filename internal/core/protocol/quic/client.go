package quic

import (
	"context"
	"crypto/tls"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol"
)

// Client holds one QUIC connection. Calls may run concurrently, each on its
// own stream.
type Client struct {
	conn   *quic.Conn
	config Config
	logger log.Log
}

func Dial(ctx context.Context, addr string, tlsConfig *tls.Config, config Config, logger log.Log) (*Client, error) {
	config = config.withDefaults()

	conn, err := quic.DialAddr(ctx, addr, tlsConfig, config.quicConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", addr)
	}

	return &Client{
		conn:   conn,
		config: config,
		logger: logger.With(log.String("component", "quic_client"), log.String("addr", addr)),
	}, nil
}

// Call sends one request and decodes its result into result, which may be
// nil. Remote failures come back as *protocol.Error.
func (c *Client) Call(ctx context.Context, method protocol.Method, params, result any) error {
	if method == protocol.MethodWatch {
		return protocol.ErrWatchUnsupported
	}

	req, err := protocol.NewRequest(method, params)
	if err != nil {
		return err
	}
	data, err := protocol.Encode(req)
	if err != nil {
		return err
	}

	stream, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return c.transportErr(err, "failed to open stream")
	}
	stop := context.AfterFunc(ctx, func() {
		stream.CancelRead(streamCanceled)
		stream.CancelWrite(streamCanceled)
	})
	defer stop()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.RequestTimeout)
	}
	_ = stream.SetDeadline(deadline)

	if _, err = stream.Write(data); err != nil {
		return c.transportErr(err, "failed to write request")
	}
	if err = stream.Close(); err != nil {
		return c.transportErr(err, "failed to close request stream")
	}

	raw, err := io.ReadAll(io.LimitReader(stream, c.config.MaxMessageSize+1))
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "%s call abandoned", method)
		}
		return c.transportErr(err, "failed to read response")
	}
	if int64(len(raw)) > c.config.MaxMessageSize {
		return protocol.ErrMessageTooLarge
	}

	resp, err := protocol.Decode(raw)
	if err != nil {
		return err
	}
	if resp.Type != protocol.TypeResponse || (resp.ID != req.ID && resp.Error == nil) {
		return errors.Wrapf(protocol.ErrUnexpectedResponse, "for %s", method)
	}
	return resp.DecodeResult(result)
}

func (c *Client) transportErr(err error, msg string) error {
	if c.conn.Context().Err() != nil {
		return errors.Wrap(protocol.ErrConnectionClosed, err.Error())
	}
	return errors.Wrap(err, msg)
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.conn.Context().Done()
}

func (c *Client) Close() error {
	return c.conn.CloseWithError(codeNoError, "client closed")
}
