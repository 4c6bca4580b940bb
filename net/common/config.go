package common

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ValentinKolb/dNet/lib/serial"
)

// --------------------------------------------------------------------------
// Protocol configuration struct
// --------------------------------------------------------------------------

// minPacketSize is the smallest packet limit that still fits every header
const minPacketSize = 64

// Config holds the protocol parameters shared by client and server.
// All timing is converted to ticks; durations are only the human-facing form.
type Config struct {
	// TicksPerSecond is the rate at which the owner calls Tick, in [1,60]
	TicksPerSecond int

	// Timeout closes a connection that did not hear from its peer for this long
	Timeout time.Duration
	// PacketTTL is how long a reliable packet waits for an ack before it is resent
	PacketTTL time.Duration
	// PingRate is the keepalive interval
	PingRate time.Duration
	// AckRate is the interval between acknowledgements of a receiving channel
	AckRate time.Duration
	// HelloRetry is the interval between Hello attempts of a client
	HelloRetry time.Duration
	// MaxHelloAttempts is how many Hellos a client sends before giving up
	MaxHelloAttempts int

	// MaxWindowHorizon bounds how far ahead of the low-water mark a reliable sequence may be
	MaxWindowHorizon uint32
	// MaxChannels is the number of channels a connection accepts (ids 0..MaxChannels-1)
	MaxChannels int
	// MaxPacketSize overrides the socket MTU when > 0
	MaxPacketSize int
	// MaxFragmentCount bounds the number of pieces of one message
	MaxFragmentCount int
	// MaxMessageSize bounds the payload of one message
	MaxMessageSize int
}

// DefaultConfig returns a configuration suitable for a 30 Hz game loop
func DefaultConfig() Config {
	return Config{
		TicksPerSecond:   30,
		Timeout:          10 * time.Second,
		PacketTTL:        250 * time.Millisecond,
		PingRate:         time.Second,
		AckRate:          100 * time.Millisecond,
		HelloRetry:       500 * time.Millisecond,
		MaxHelloAttempts: 10,
		MaxWindowHorizon: 4096,
		MaxChannels:      8,
		MaxPacketSize:    0,
		MaxFragmentCount: 1024,
		MaxMessageSize:   1 << 20,
	}
}

// Validate rejects out-of-range values
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.TicksPerSecond >= 1 && c.TicksPerSecond <= 60, "ticks per second must be in [1,60], got %d", c.TicksPerSecond)
	check(c.Timeout > 0, "timeout must be positive, got %s", c.Timeout)
	check(c.PacketTTL > 0, "packet ttl must be positive, got %s", c.PacketTTL)
	check(c.PingRate > 0, "ping rate must be positive, got %s", c.PingRate)
	check(c.AckRate > 0, "ack rate must be positive, got %s", c.AckRate)
	check(c.HelloRetry > 0, "hello retry must be positive, got %s", c.HelloRetry)
	check(c.PingRate < c.Timeout, "ping rate %s must be shorter than timeout %s", c.PingRate, c.Timeout)
	check(c.MaxHelloAttempts >= 1, "max hello attempts must be at least 1, got %d", c.MaxHelloAttempts)
	check(c.MaxWindowHorizon >= 1 && c.MaxWindowHorizon < serial.Half, "max window horizon must be in [1,%d], got %d", serial.Half-1, c.MaxWindowHorizon)
	check(c.MaxChannels >= 1 && c.MaxChannels <= 256, "max channels must be in [1,256], got %d", c.MaxChannels)
	check(c.MaxPacketSize == 0 || c.MaxPacketSize >= minPacketSize, "max packet size must be 0 or at least %d, got %d", minPacketSize, c.MaxPacketSize)
	check(c.MaxFragmentCount >= 1 && c.MaxFragmentCount <= math.MaxUint16, "max fragment count must be in [1,%d], got %d", math.MaxUint16, c.MaxFragmentCount)
	check(c.MaxMessageSize >= 1, "max message size must be positive, got %d", c.MaxMessageSize)

	return errors.Join(errs...)
}

// PacketLimit returns the packet size limit for a socket with the given MTU
func (c *Config) PacketLimit(mtu int) int {
	if c.MaxPacketSize > 0 && c.MaxPacketSize < mtu {
		return c.MaxPacketSize
	}
	return mtu
}

// ticks converts a duration into ticks, rounding up and never below one
func (c *Config) ticks(d time.Duration) int {
	n := int64(d) * int64(c.TicksPerSecond)
	t := int((n + int64(time.Second) - 1) / int64(time.Second))
	if t < 1 {
		return 1
	}
	return t
}

// TimeoutTicks is Timeout in ticks
func (c *Config) TimeoutTicks() int { return c.ticks(c.Timeout) }

// PacketTTLTicks is PacketTTL in ticks
func (c *Config) PacketTTLTicks() int { return c.ticks(c.PacketTTL) }

// PingRateTicks is PingRate in ticks
func (c *Config) PingRateTicks() int { return c.ticks(c.PingRate) }

// AckRateTicks is AckRate in ticks
func (c *Config) AckRateTicks() int { return c.ticks(c.AckRate) }

// HelloRetryTicks is HelloRetry in ticks
func (c *Config) HelloRetryTicks() int { return c.ticks(c.HelloRetry) }

// TickInterval is the wall-clock duration of one tick
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TicksPerSecond)
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder
	c.writeTo(newSectionWriter(&sb))
	return sb.String()
}

func (c *Config) writeTo(w sectionWriter) {
	w.section("Protocol")
	w.field("Ticks Per Second", fmt.Sprintf("%d", c.TicksPerSecond))
	w.field("Timeout", fmt.Sprintf("%s (%d ticks)", c.Timeout, c.TimeoutTicks()))
	w.field("Packet TTL", fmt.Sprintf("%s (%d ticks)", c.PacketTTL, c.PacketTTLTicks()))
	w.field("Ping Rate", fmt.Sprintf("%s (%d ticks)", c.PingRate, c.PingRateTicks()))
	w.field("Ack Rate", fmt.Sprintf("%s (%d ticks)", c.AckRate, c.AckRateTicks()))
	w.field("Hello Retry", fmt.Sprintf("%s (%d ticks)", c.HelloRetry, c.HelloRetryTicks()))
	w.field("Max Hello Attempts", fmt.Sprintf("%d", c.MaxHelloAttempts))

	w.section("Limits")
	w.field("Window Horizon", fmt.Sprintf("%d", c.MaxWindowHorizon))
	w.field("Channels", fmt.Sprintf("%d", c.MaxChannels))
	if c.MaxPacketSize > 0 {
		w.field("Packet Size", fmt.Sprintf("%d bytes", c.MaxPacketSize))
	} else {
		w.field("Packet Size", "socket MTU")
	}
	w.field("Fragment Count", fmt.Sprintf("%d", c.MaxFragmentCount))
	w.field("Message Size", fmt.Sprintf("%d bytes", c.MaxMessageSize))
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds everything needed to run a server
type ServerConfig struct {
	Config

	// Endpoint is the UDP address to listen on
	Endpoint string
	// Password is the shared secret clients must present in their Hello
	Password string

	// HTTP metrics endpoint, empty disables it
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
	LogFile  string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder
	w := newSectionWriter(&sb)

	w.section("Server")
	w.field("Endpoint", c.Endpoint)
	w.field("Password", mask(c.Password))
	w.field("Metrics", orDisabled(c.MetricsEndpoint))

	c.Config.writeTo(w)

	w.section("Logging")
	w.field("Log Level", c.LogLevel)
	w.field("Log File", orDisabled(c.LogFile))

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds everything needed to run a client
type ClientConfig struct {
	Config

	// Endpoint is the UDP address of the server
	Endpoint string
	// Password is presented in the Hello
	Password string

	// Logging configuration
	LogLevel string
	LogFile  string
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder
	w := newSectionWriter(&sb)

	w.section("Client")
	w.field("Endpoint", c.Endpoint)
	w.field("Password", mask(c.Password))

	c.Config.writeTo(w)

	w.section("Logging")
	w.field("Log Level", c.LogLevel)
	w.field("Log File", orDisabled(c.LogFile))

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

type sectionWriter struct {
	section func(title string)
	field   func(name, value string)
}

// newSectionWriter creates helper functions for consistent formatting
func newSectionWriter(sb *strings.Builder) sectionWriter {
	return sectionWriter{
		section: func(title string) {
			sb.WriteString("\n")
			sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
		},
		field: func(name, value string) {
			sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
		},
	}
}

func mask(secret string) string {
	if secret == "" {
		return "(none)"
	}
	return strings.Repeat("*", 8)
}

func orDisabled(v string) string {
	if v == "" {
		return "disabled"
	}
	return v
}
