package quic

import (
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zeusync/spriteserver/internal/core/protocol"
)

type Config struct {
	MaxIdleTimeout     time.Duration `yaml:"max_idle_timeout"`
	KeepAlivePeriod    time.Duration `yaml:"keep_alive_period"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	MaxIncomingStreams int64         `yaml:"max_incoming_streams"`
	// RequestTimeout bounds reading a request and writing its response on one
	// stream.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

func DefaultConfig() Config {
	return Config{
		MaxIdleTimeout:     30 * time.Second,
		KeepAlivePeriod:    10 * time.Second,
		HandshakeTimeout:   5 * time.Second,
		MaxIncomingStreams: 256,
		RequestTimeout:     10 * time.Second,
		MaxMessageSize:     protocol.MaxMessageSize,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIdleTimeout <= 0 {
		c.MaxIdleTimeout = d.MaxIdleTimeout
	}
	if c.KeepAlivePeriod <= 0 {
		c.KeepAlivePeriod = d.KeepAlivePeriod
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.MaxIncomingStreams <= 0 {
		c.MaxIncomingStreams = d.MaxIncomingStreams
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	return c
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:       c.MaxIdleTimeout,
		KeepAlivePeriod:      c.KeepAlivePeriod,
		HandshakeIdleTimeout: c.HandshakeTimeout,
		MaxIncomingStreams:   c.MaxIncomingStreams,
	}
}
