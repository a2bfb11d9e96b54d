package iodispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

type Global struct {
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

type ServerConfig struct {
	IP      string `yaml:"ip" toml:"ip"`
	Port    int    `yaml:"port" toml:"port"`
	Backlog int    `yaml:"backlog" toml:"backlog"`
}

type DispatcherConfig struct {
	Capacity       int    `yaml:"capacity" toml:"capacity"`
	MaxConnections int    `yaml:"max_connections" toml:"max_connections"`
	TimeoutMs      int64  `yaml:"timeout_ms" toml:"timeout_ms"`
	PollTimeoutMs  int    `yaml:"poll_timeout_ms" toml:"poll_timeout_ms"`
	QueueCapacity  int    `yaml:"queue_capacity" toml:"queue_capacity"`
	Poller         string `yaml:"poller" toml:"poller"`
}

type BufferConfig struct {
	RequestHeaderSize   int `yaml:"request_header_size" toml:"request_header_size"`
	RequestBodySize     int `yaml:"request_body_size" toml:"request_body_size"`
	ResponseHeaderSize  int `yaml:"response_header_size" toml:"response_header_size"`
	ResponseBodySize    int `yaml:"response_body_size" toml:"response_body_size"`
	MultipartHeaderSize int `yaml:"multipart_header_size" toml:"multipart_header_size"`
	MultipartBodySize   int `yaml:"multipart_body_size" toml:"multipart_body_size"`
	SocketRcvBuf        int `yaml:"socket_rcv_buf" toml:"socket_rcv_buf"`
	SocketSndBuf        int `yaml:"socket_snd_buf" toml:"socket_snd_buf"`
}

type WorkerConfig struct {
	Count        int  `yaml:"count" toml:"count"`
	LockOsThread bool `yaml:"lock_os_thread" toml:"lock_os_thread"`
	IdleSpins    int  `yaml:"idle_spins" toml:"idle_spins"`
	IdleSleepUs  int  `yaml:"idle_sleep_us" toml:"idle_sleep_us"`
}

type TlsConfig struct {
	Enabled            bool   `yaml:"enabled" toml:"enabled"`
	CertPath           string `yaml:"cert_path" toml:"cert_path"`
	PkPath             string `yaml:"pk_path" toml:"pk_path"`
	CACertPath         string `yaml:"ca_cert_path" toml:"ca_cert_path"`
	HandshakeTimeoutMs int    `yaml:"handshake_timeout_ms" toml:"handshake_timeout_ms"`
	OcspStapleEnabled  bool   `yaml:"ocsp_staple_enabled" toml:"ocsp_staple_enabled"`
	OcspResponderUrl   string `yaml:"ocsp_responder_url" toml:"ocsp_responder_url"`
}

type EventsConfig struct {
	KafkaBrokers string `yaml:"kafka_brokers" toml:"kafka_brokers"`
	KafkaTopic   string `yaml:"kafka_topic" toml:"kafka_topic"`
}

type Config struct {
	Global     Global           `yaml:"global" toml:"global"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" toml:"dispatcher"`
	Buffers    BufferConfig     `yaml:"buffers" toml:"buffers"`
	Workers    WorkerConfig     `yaml:"workers" toml:"workers"`
	Tls        TlsConfig        `yaml:"tls" toml:"tls"`
	Events     EventsConfig     `yaml:"events" toml:"events"`
}

func DefaultConfig() *Config {
	config := &Config{Server: ServerConfig{IP: "0.0.0.0", Port: 9000}}
	config.applyDefaults()
	return config
}

// LoadConfig reads a .toml or .yaml/.yml file, fills in defaults and
// validates the result.
func LoadConfig(filePath string) (*Config, error) {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	config := &Config{}
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".toml":
		err = toml.Unmarshal(file, config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(file, config)
	default:
		return nil, fmt.Errorf("%w: unsupported config format %q", errBadConfig, filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	config.applyDefaults()
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = "info"
	}
	if c.Server.Backlog == 0 {
		c.Server.Backlog = 128
	}
	d := &c.Dispatcher
	if d.Capacity == 0 {
		d.Capacity = 1024
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = 128
	}
	if d.TimeoutMs == 0 {
		d.TimeoutMs = 5 * 60 * 1000
	}
	if d.QueueCapacity == 0 {
		d.QueueCapacity = 1024
	}
	if d.Poller == "" {
		d.Poller = PollerPoll
	}
	b := &c.Buffers
	if b.RequestHeaderSize == 0 {
		b.RequestHeaderSize = 4096
	}
	if b.RequestBodySize == 0 {
		b.RequestBodySize = 4096
	}
	if b.ResponseHeaderSize == 0 {
		b.ResponseHeaderSize = 1024
	}
	if b.ResponseBodySize == 0 {
		b.ResponseBodySize = 64 * 1024
	}
	if b.MultipartHeaderSize == 0 {
		b.MultipartHeaderSize = 512
	}
	if b.MultipartBodySize == 0 {
		b.MultipartBodySize = 8192
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = 2
	}
	if c.Workers.IdleSpins == 0 {
		c.Workers.IdleSpins = 1000
	}
	if c.Workers.IdleSleepUs == 0 {
		c.Workers.IdleSleepUs = 100
	}
	if c.Tls.HandshakeTimeoutMs == 0 {
		c.Tls.HandshakeTimeoutMs = 5000
	}
}

func (c *Config) Validate() error {
	d := c.Dispatcher
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d", errBadConfig, c.Server.Port)
	case d.Capacity <= 0:
		return fmt.Errorf("%w: dispatcher.capacity must be positive", errBadConfig)
	case d.MaxConnections <= 0:
		return fmt.Errorf("%w: dispatcher.max_connections must be positive", errBadConfig)
	case d.TimeoutMs <= 0:
		return fmt.Errorf("%w: dispatcher.timeout_ms must be positive", errBadConfig)
	case d.PollTimeoutMs < 0:
		return fmt.Errorf("%w: dispatcher.poll_timeout_ms must not be negative", errBadConfig)
	case d.QueueCapacity <= 0:
		return fmt.Errorf("%w: dispatcher.queue_capacity must be positive", errBadConfig)
	case d.QueueCapacity < d.MaxConnections:
		// A connection has at most one event on the ring, so the ring can never fill.
		return fmt.Errorf("%w: dispatcher.queue_capacity %d is below max_connections %d",
			errBadConfig, d.QueueCapacity, d.MaxConnections)
	case d.Poller != PollerPoll && d.Poller != PollerEpoll:
		return fmt.Errorf("%w: dispatcher.poller %q", errBadConfig, d.Poller)
	case c.Buffers.RequestHeaderSize <= 0 || c.Buffers.ResponseHeaderSize <= 0:
		return fmt.Errorf("%w: header buffers must be positive", errBadConfig)
	case c.Buffers.RequestBodySize < 0 || c.Buffers.ResponseBodySize < 0 ||
		c.Buffers.MultipartHeaderSize < 0 || c.Buffers.MultipartBodySize < 0:
		return fmt.Errorf("%w: buffer sizes must not be negative", errBadConfig)
	case c.Workers.Count <= 0:
		return fmt.Errorf("%w: workers.count must be positive", errBadConfig)
	}
	if c.Tls.Enabled {
		if c.Tls.CertPath == "" || c.Tls.PkPath == "" {
			return fmt.Errorf("%w: tls.cert_path and tls.pk_path are required", errBadConfig)
		}
		if c.Tls.OcspStapleEnabled && c.Tls.OcspResponderUrl == "" {
			return fmt.Errorf("%w: tls.ocsp_responder_url is required for stapling", errBadConfig)
		}
		if c.Tls.OcspStapleEnabled && c.Tls.CACertPath == "" {
			return fmt.Errorf("%w: tls.ca_cert_path is required for stapling", errBadConfig)
		}
	}
	if (c.Events.KafkaBrokers == "") != (c.Events.KafkaTopic == "") {
		return fmt.Errorf("%w: events.kafka_brokers and events.kafka_topic go together", errBadConfig)
	}
	return nil
}
