package common

import (
	"strings"
	"testing"
	"time"
)

// TestValidate tests that out-of-range values are rejected
func TestValidate(t *testing.T) {
	valid := DefaultConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	tests := map[string]func(c *Config){
		"ticks zero":       func(c *Config) { c.TicksPerSecond = 0 },
		"ticks too high":   func(c *Config) { c.TicksPerSecond = 61 },
		"no timeout":       func(c *Config) { c.Timeout = 0 },
		"ping after idle":  func(c *Config) { c.PingRate = c.Timeout },
		"no hello":         func(c *Config) { c.MaxHelloAttempts = 0 },
		"horizon zero":     func(c *Config) { c.MaxWindowHorizon = 0 },
		"horizon too wide": func(c *Config) { c.MaxWindowHorizon = 1 << 23 },
		"no channels":      func(c *Config) { c.MaxChannels = 0 },
		"tiny packets":     func(c *Config) { c.MaxPacketSize = 10 },
		"no fragments":     func(c *Config) { c.MaxFragmentCount = 0 },
		"no messages":      func(c *Config) { c.MaxMessageSize = 0 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}

	for _, tps := range []int{1, 60} {
		c := DefaultConfig()
		c.TicksPerSecond = tps
		if err := c.Validate(); err != nil {
			t.Errorf("ticks per second %d should be valid: %v", tps, err)
		}
	}
}

// TestDerivedTicks tests conversion of durations to ticks
func TestDerivedTicks(t *testing.T) {
	c := DefaultConfig()
	c.TicksPerSecond = 20
	c.Timeout = 10 * time.Second
	c.AckRate = 10 * time.Millisecond
	c.HelloRetry = 120 * time.Millisecond

	if got := c.TimeoutTicks(); got != 200 {
		t.Errorf("expected 200 timeout ticks, got %d", got)
	}
	if got := c.AckRateTicks(); got != 1 {
		t.Errorf("durations below one tick should round up to 1, got %d", got)
	}
	if got := c.HelloRetryTicks(); got != 3 {
		t.Errorf("expected 3 hello retry ticks, got %d", got)
	}
	if got := c.TickInterval(); got != 50*time.Millisecond {
		t.Errorf("expected 50ms tick interval, got %s", got)
	}
}

// TestPacketLimit tests that the configured size only ever lowers the MTU
func TestPacketLimit(t *testing.T) {
	c := DefaultConfig()
	if got := c.PacketLimit(1200); got != 1200 {
		t.Errorf("expected MTU when unset, got %d", got)
	}
	c.MaxPacketSize = 512
	if got := c.PacketLimit(1200); got != 512 {
		t.Errorf("expected 512, got %d", got)
	}
	if got := c.PacketLimit(300); got != 300 {
		t.Errorf("limit must not exceed the MTU, got %d", got)
	}
}

// TestServerConfigString tests that secrets are masked in the printed configuration
func TestServerConfigString(t *testing.T) {
	c := ServerConfig{Config: DefaultConfig(), Endpoint: "0.0.0.0:7777", Password: "hunter2", LogLevel: "info"}
	s := c.String()
	if strings.Contains(s, "hunter2") {
		t.Error("password leaked into String()")
	}
	if !strings.Contains(s, "0.0.0.0:7777") || !strings.Contains(s, "PROTOCOL") {
		t.Errorf("unexpected output:\n%s", s)
	}
}
