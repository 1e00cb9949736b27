package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/spriteserver/internal/core/models"
	"github.com/zeusync/spriteserver/internal/core/observability/log"
	"github.com/zeusync/spriteserver/internal/core/protocol/quic"
	"github.com/zeusync/spriteserver/internal/core/protocol/websocket"
	"github.com/zeusync/spriteserver/internal/core/world"
	"github.com/zeusync/spriteserver/internal/service"
)

// Config holds server configuration
type Config struct {
	// Network settings. An empty HTTPAddr or QUICAddr disables that listener.
	ListenAddr string `yaml:"listen_addr"`
	HTTPAddr   string `yaml:"http_addr"`
	QUICAddr   string `yaml:"quic_addr"`

	// TLS for QUIC. Both empty means a generated self-signed certificate.
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	// Durable store. An empty path keeps sprites in memory only.
	DatabasePath    string        `yaml:"database_path"`
	DatabaseTimeout time.Duration `yaml:"database_timeout"`
	DatabaseNoSync  bool          `yaml:"database_no_sync"`

	// Simulation
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	SpriteSize  int           `yaml:"sprite_size"`
	MaxSpeed    int           `yaml:"max_speed"`
	TickPeriod  time.Duration `yaml:"tick_period"`
	TickTimeout time.Duration `yaml:"tick_timeout"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`

	WebSocket websocket.Config `yaml:"websocket"`
	QUIC      quic.Config      `yaml:"quic"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:8089",
		HTTPAddr:        "127.0.0.1:8090",
		QUICAddr:        "127.0.0.1:8091",
		DatabasePath:    "sprites.db",
		DatabaseTimeout: time.Second,
		Width:           models.DefaultWidth,
		Height:          models.DefaultHeight,
		SpriteSize:      models.DefaultSize,
		MaxSpeed:        models.DefaultMaxSpeed,
		TickPeriod:      world.DefaultTickPeriod,
		TickTimeout:     world.DefaultTickTimeout,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        log.LevelInfo.String(),
		WebSocket:       websocket.DefaultConfig(),
		QUIC:            quic.DefaultConfig(),
	}
}

// LoadConfigFile overlays the YAML file at path onto the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultServerConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Bounds() models.Bounds {
	return models.Bounds{Width: c.Width, Height: c.Height, Size: c.SpriteSize}
}

func (c Config) ServiceConfig() service.Config {
	cfg := service.DefaultConfig()
	cfg.World.Bounds = c.Bounds()
	cfg.World.MaxSpeed = c.MaxSpeed
	cfg.TickPeriod = c.TickPeriod
	cfg.TickTimeout = c.TickTimeout
	return cfg
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalidConfig)
	}
	if c.HTTPAddr != "" && c.HTTPAddr == c.ListenAddr && !strings.HasSuffix(c.ListenAddr, ":0") {
		return fmt.Errorf("%w: http_addr and listen_addr must differ", ErrInvalidConfig)
	}
	if err := c.Bounds().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MaxSpeed < 0 {
		return fmt.Errorf("%w: max_speed must not be negative", ErrInvalidConfig)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("%w: tick_period must be positive", ErrInvalidConfig)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("%w: tls_cert_file and tls_key_file go together", ErrInvalidConfig)
	}
	return nil
}
