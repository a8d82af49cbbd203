package taonet

import (
	"encoding/json"
	"fmt"
	"time"
)

// ServerConfig describes a TCPServer. The zero value is not usable, start
// from DefaultServerConfig.
type ServerConfig struct {
	IP                string        `json:"ip" mapstructure:"ip"`
	Port              int           `json:"port" mapstructure:"port"`
	HeartBeat         bool          `json:"heartbeat" mapstructure:"heartbeat"`
	HeartBeatInterval time.Duration `json:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	MaxConnections    int           `json:"max_connections" mapstructure:"max_connections"`
	LogLevel          string        `json:"log_level" mapstructure:"log_level"`
	MonitorPort       int           `json:"monitor_port" mapstructure:"monitor_port"`
}

// DefaultServerConfig returns the defaults: 0.0.0.0:18341 with a 5 second
// heartbeat.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		IP:                "0.0.0.0",
		Port:              18341,
		HeartBeat:         true,
		HeartBeatInterval: 5 * time.Second,
		MaxConnections:    1000,
		LogLevel:          "info",
	}
}

// Validate checks the config for values Listen would reject.
func (c ServerConfig) Validate() error {
	if _, err := toSockaddr(c.IP, c.Port); err != nil {
		return err
	}
	if c.HeartBeat && c.HeartBeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval: %w", ErrInvalidInterval)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("max connections %d must not be negative", c.MaxConnections)
	}
	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("%w: monitor port %d", ErrInvalidAddress, c.MonitorPort)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ServerOptions converts the config into server options.
func (c ServerConfig) ServerOptions() []ServerOption {
	return []ServerOption{
		MaxConnections(c.MaxConnections),
		WithHeartBeat(c.HeartBeat, c.HeartBeatInterval),
	}
}

func (c ServerConfig) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		type plain ServerConfig
		return fmt.Sprintf("%+v", plain(c))
	}
	return string(b)
}

// ClientConfig describes a TCPClient.
type ClientConfig struct {
	Address           string        `json:"address" mapstructure:"address"`
	Port              int           `json:"port" mapstructure:"port"`
	Name              string        `json:"name" mapstructure:"name"`
	CheckInterval     time.Duration `json:"check_interval" mapstructure:"check_interval"`
	HeartBeat         bool          `json:"heartbeat" mapstructure:"heartbeat"`
	HeartBeatInterval time.Duration `json:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	InvalidInterval   time.Duration `json:"invalid_interval" mapstructure:"invalid_interval"`
	LogLevel          string        `json:"log_level" mapstructure:"log_level"`
}

// DefaultClientConfig returns a client of the default server config.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Address:           "127.0.0.1",
		Port:              18341,
		Name:              "client",
		CheckInterval:     DefaultCheckInterval,
		HeartBeat:         true,
		HeartBeatInterval: 5 * time.Second,
		InvalidInterval:   15 * time.Second,
		LogLevel:          "info",
	}
}

// Validate checks the config for values Connect would reject.
func (c ClientConfig) Validate() error {
	if _, err := toSockaddr(c.Address, c.Port); err != nil {
		return err
	}
	if c.Name == "" {
		return fmt.Errorf("client name must not be empty")
	}
	if c.HeartBeat && c.HeartBeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval: %w", ErrInvalidInterval)
	}
	if c.InvalidInterval < 0 {
		return fmt.Errorf("invalid interval: %w", ErrInvalidInterval)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// NewClient returns a client configured by c, not connected yet.
func (c ClientConfig) NewClient(loop *Loop) *TCPClient {
	client := NewTCPClient(loop, c.Name, c.CheckInterval)
	client.SetHeartBeat(c.HeartBeat, c.HeartBeatInterval, c.InvalidInterval)
	return client
}

func (c ClientConfig) String() string {
	b, err := json.Marshal(c)
	if err != nil {
		type plain ClientConfig
		return fmt.Sprintf("%+v", plain(c))
	}
	return string(b)
}
