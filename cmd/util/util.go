package util

import (
	"strings"

	"github.com/ValentinKolb/dNet/net/common"
	"github.com/ValentinKolb/dNet/net/serializer"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupProtocolFlags adds the protocol flags shared by server and client to a command
func SetupProtocolFlags(cmd *cobra.Command) {
	d := common.DefaultConfig()

	key := "tick-rate"
	cmd.PersistentFlags().Int(key, d.TicksPerSecond, WrapString("Ticks per second of the protocol loop (1-60)"))

	key = "timeout"
	cmd.PersistentFlags().Duration(key, d.Timeout, WrapString("Close a connection that did not hear from its peer for this long"))

	key = "packet-ttl"
	cmd.PersistentFlags().Duration(key, d.PacketTTL, WrapString("How long a reliable packet waits for an ack before it is resent"))

	key = "ping-rate"
	cmd.PersistentFlags().Duration(key, d.PingRate, WrapString("Keepalive interval, must be shorter than the timeout"))

	key = "ack-rate"
	cmd.PersistentFlags().Duration(key, d.AckRate, WrapString("Interval between acknowledgements of a receiving channel"))

	key = "hello-retry"
	cmd.PersistentFlags().Duration(key, d.HelloRetry, WrapString("(Client) Interval between Hello attempts"))

	key = "hello-attempts"
	cmd.PersistentFlags().Int(key, d.MaxHelloAttempts, WrapString("(Client) Number of Hellos sent before giving up"))

	key = "window-horizon"
	cmd.PersistentFlags().Uint32(key, d.MaxWindowHorizon, WrapString("How far ahead of the oldest missing sequence a reliable packet may be"))

	key = "channels"
	cmd.PersistentFlags().Int(key, d.MaxChannels, WrapString("Number of channels per connection (1-256)"))

	key = "packet-size"
	cmd.PersistentFlags().Int(key, d.MaxPacketSize, WrapString("Maximum datagram size in bytes, 0 uses the socket MTU"))

	key = "fragment-count"
	cmd.PersistentFlags().Int(key, d.MaxFragmentCount, WrapString("Maximum number of pieces of one fragmented message"))

	key = "message-size"
	cmd.PersistentFlags().Int(key, d.MaxMessageSize, WrapString("Maximum payload size of one message in bytes"))

	key = "password"
	cmd.PersistentFlags().String(key, "", WrapString("Shared secret presented in the Hello"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "log-file"
	cmd.PersistentFlags().String(key, "", WrapString("Write logs to this rotating file instead of stdout"))
}

// InitConfig loads .env files and binds the DNET_ environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dnet")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetProtocolConfig reads the protocol configuration from viper
func GetProtocolConfig() common.Config {
	return common.Config{
		TicksPerSecond:   viper.GetInt("tick-rate"),
		Timeout:          viper.GetDuration("timeout"),
		PacketTTL:        viper.GetDuration("packet-ttl"),
		PingRate:         viper.GetDuration("ping-rate"),
		AckRate:          viper.GetDuration("ack-rate"),
		HelloRetry:       viper.GetDuration("hello-retry"),
		MaxHelloAttempts: viper.GetInt("hello-attempts"),
		MaxWindowHorizon: viper.GetUint32("window-horizon"),
		MaxChannels:      viper.GetInt("channels"),
		MaxPacketSize:    viper.GetInt("packet-size"),
		MaxFragmentCount: viper.GetInt("fragment-count"),
		MaxMessageSize:   viper.GetInt("message-size"),
	}
}

// GetSerializer creates the packet serializer selected by the serializer flag
func GetSerializer() (serializer.IPacketSerializer, error) {
	return serializer.New(viper.GetString("serializer"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
