package taonet

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestShouldValidateDefaultConfigs(t *testing.T) {
	if err := DefaultServerConfig().Validate(); err != nil {
		t.Fatalf("DefaultServerConfig().Validate() error %v", err)
	}
	if err := DefaultClientConfig().Validate(); err != nil {
		t.Fatalf("DefaultClientConfig().Validate() error %v", err)
	}
}

func TestShouldRejectInvalidServerConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		is     error
	}{
		{"bad ip", func(c *ServerConfig) { c.IP = "localhost" }, ErrInvalidAddress},
		{"bad port", func(c *ServerConfig) { c.Port = 70000 }, ErrInvalidAddress},
		{"zero heartbeat", func(c *ServerConfig) { c.HeartBeatInterval = 0 }, ErrInvalidInterval},
		{"negative max", func(c *ServerConfig) { c.MaxConnections = -1 }, nil},
		{"bad monitor", func(c *ServerConfig) { c.MonitorPort = -1 }, ErrInvalidAddress},
		{"bad level", func(c *ServerConfig) { c.LogLevel = "loud" }, nil},
	}
	for _, tt := range tests {
		c := DefaultServerConfig()
		tt.mutate(&c)
		err := c.Validate()
		if err == nil {
			t.Errorf("%s: Validate() = nil", tt.name)
			continue
		}
		if tt.is != nil && !errors.Is(err, tt.is) {
			t.Errorf("%s: Validate() error %v, want %v", tt.name, err, tt.is)
		}
	}

	c := DefaultServerConfig()
	c.HeartBeat, c.HeartBeatInterval = false, 0
	if err := c.Validate(); err != nil {
		t.Errorf("disabled heartbeat with zero interval: Validate() error %v", err)
	}
}

func TestShouldRejectInvalidClientConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientConfig)
	}{
		{"bad address", func(c *ClientConfig) { c.Address = "::1" }},
		{"empty name", func(c *ClientConfig) { c.Name = "" }},
		{"zero heartbeat", func(c *ClientConfig) { c.HeartBeatInterval = 0 }},
		{"negative invalid", func(c *ClientConfig) { c.InvalidInterval = -time.Second }},
		{"bad level", func(c *ClientConfig) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		c := DefaultClientConfig()
		tt.mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Validate() = nil", tt.name)
		}
	}
}

func TestShouldRenderConfigAsJSON(t *testing.T) {
	want := DefaultServerConfig()
	var got ServerConfig
	if err := json.Unmarshal([]byte(want.String()), &got); err != nil {
		t.Fatalf("String() is not JSON: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("String() mismatch (-want +got):\n%s", diff)
	}
}

func TestShouldBuildClientFromConfig(t *testing.T) {
	loop := runLoop(t)
	cfg := DefaultClientConfig()
	cfg.Name = "configured"
	cfg.CheckInterval = 0
	c := cfg.NewClient(loop)
	if c.Name() != "configured" || c.checkInterval != DefaultCheckInterval {
		t.Fatalf("NewClient() = %s every %s", c.Name(), c.checkInterval)
	}
	if c.invalidInterval != cfg.InvalidInterval || !c.heartBeat {
		t.Fatalf("NewClient() heartbeat %t, invalid %s", c.heartBeat, c.invalidInterval)
	}
	opts := DefaultServerConfig().ServerOptions()
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxConns != 1000 || !o.heartBeat || o.hbInterval != 5*time.Second {
		t.Fatalf("ServerOptions() = %+v", o)
	}
}
