package connect

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ValentinKolb/dNet/cmd/util"
	"github.com/ValentinKolb/dNet/net/common"
	"github.com/ValentinKolb/dNet/net/handshake"
	"github.com/ValentinKolb/dNet/net/stats"
	"github.com/ValentinKolb/dNet/net/transport"
	"github.com/ValentinKolb/dNet/net/transport/udp"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// msgTypeEcho is the message type used by the echo test
const msgTypeEcho uint16 = 1

var (
	connectCmdConfig = &common.ClientConfig{}

	// ConnectCmd represents the connect command group
	ConnectCmd = &cobra.Command{
		Use:               "connect",
		Short:             "Connect to a dNet echo server and verify the round trip",
		Long:              `Connect to a dNet echo server, send reliable, unreliable and fragmented messages and report which echoes came back. The configuration can be set via command line flags or environment variables (DNET_<flag>).`,
		PersistentPreRunE: processConfig,
		RunE:              runEcho,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	util.SetupProtocolFlags(ConnectCmd)

	key := "endpoint"
	ConnectCmd.PersistentFlags().String(key, "localhost:7777", util.WrapString("The UDP address of the dNet server"))

	key = "count"
	ConnectCmd.Flags().Int(key, 100, util.WrapString("How many reliable and how many unreliable messages to send"))

	key = "large-size"
	ConnectCmd.Flags().Int(key, 64, util.WrapString("Size of the fragmented reliable message in KB, 0 disables it"))

	key = "wait"
	ConnectCmd.Flags().Duration(key, 5*time.Second, util.WrapString("How long to wait for the echoes"))

	ConnectCmd.AddCommand(perfTestCmd)
}

// processConfig reads the client configuration from flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	connectCmdConfig.Config = util.GetProtocolConfig()
	connectCmdConfig.Endpoint = viper.GetString("endpoint")
	connectCmdConfig.Password = viper.GetString("password")
	connectCmdConfig.LogLevel = viper.GetString("log-level")
	connectCmdConfig.LogFile = viper.GetString("log-file")

	if err := connectCmdConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return common.InitLoggers(connectCmdConfig.LogLevel, connectCmdConfig.LogFile)
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// session is a connected client ticked at the protocol rate
type session struct {
	client *handshake.Client
	socket transport.ISocket
	ticker *time.Ticker
	events *stats.Recorder

	// onDelivered is called for every echoed message
	onDelivered func(e common.Event)
}

// dial performs the handshake with the configured server
func dial() (*session, error) {
	s, err := util.GetSerializer()
	if err != nil {
		return nil, err
	}

	socket, err := udp.Dial(connectCmdConfig.Endpoint)
	if err != nil {
		return nil, err
	}

	recorder := stats.NewRecorder(nil)
	client, err := handshake.NewClient(handshake.ClientOptions{
		Config:     connectCmdConfig.Config,
		Password:   connectCmdConfig.Password,
		Socket:     socket,
		Serializer: s,
		OnEvent:    recorder.Hook(),
	})
	if err != nil {
		_ = socket.Close()
		return nil, err
	}

	sess := &session{
		client: client,
		socket: socket,
		ticker: time.NewTicker(connectCmdConfig.TickInterval()),
		events: recorder,
	}

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Connecting to %s", connectCmdConfig.Endpoint))
	client.Start()
	sess.until(func() bool { return client.State() != handshake.StateWaitingForHello }, 0)

	if client.State() != handshake.StateConnected {
		spinner.Fail(fmt.Sprintf("Connection failed: %s", client.Reason()))
		sess.close()
		return nil, fmt.Errorf("handshake failed: %s", client.Reason())
	}
	spinner.Success(fmt.Sprintf("Connected as %d after %d hello(s)", client.Connection().ID(), client.Attempts()))
	return sess, nil
}

// tick runs one protocol step and dispatches the events
func (s *session) tick() {
	<-s.ticker.C
	s.client.Tick()
	for e := range s.client.Events() {
		if e.Kind == common.EvtDelivered && s.onDelivered != nil {
			s.onDelivered(e)
		}
	}
}

// until ticks until done returns true, the client disconnects or the timeout
// passed. A timeout of 0 waits as long as the client stays up.
func (s *session) until(done func() bool, timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for !done() {
		if s.client.State() == handshake.StateDisconnected {
			return false
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false
		}
		s.tick()
	}
	return true
}

// close disconnects and releases the socket
func (s *session) close() {
	s.client.Close()
	s.ticker.Stop()
	_ = s.socket.Close()
}

// --------------------------------------------------------------------------
// Echo Test
// --------------------------------------------------------------------------

// echoResult tracks one class of echo messages
type echoResult struct {
	name     string
	sent     int
	received map[uint64]bool
}

// payload returns a message of size bytes carrying n in its first 8 bytes
func payload(n uint64, size int) []byte {
	if size < 8 {
		size = 8
	}
	b := make([]byte, size)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func runEcho(_ *cobra.Command, _ []string) error {
	count := viper.GetInt("count")
	largeKB := viper.GetInt("large-size")

	sess, err := dial()
	if err != nil {
		return err
	}
	defer sess.close()

	results := []*echoResult{
		{name: "reliable", received: map[uint64]bool{}},
		{name: "unreliable", received: map[uint64]bool{}},
		{name: "fragmented", received: map[uint64]bool{}},
	}
	reliable, unreliable, fragmented := results[0], results[1], results[2]
	largeSize := largeKB * 1024

	sess.onDelivered = func(e common.Event) {
		if len(e.Message.Payload) < 8 {
			return
		}
		n := binary.BigEndian.Uint64(e.Message.Payload)
		switch {
		case e.Reliability == common.Unreliable:
			unreliable.received[n] = true
		case len(e.Message.Payload) == largeSize:
			fragmented.received[n] = true
		default:
			reliable.received[n] = true
		}
	}

	send := func(r *echoResult, rel common.Reliability, size int) {
		n := uint64(r.sent)
		if _, err := sess.client.Send(rel, 0, msgTypeEcho, payload(n, size)); err != nil {
			pterm.Warning.Printfln("%s message %d: %v", r.name, n, err)
			return
		}
		r.sent++
	}

	for i := 0; i < count; i++ {
		send(reliable, common.Reliable, 32)
		send(unreliable, common.Unreliable, 32)
	}
	if largeSize > 0 {
		send(fragmented, common.Reliable, largeSize)
	}

	spinner, _ := pterm.DefaultSpinner.Start("Waiting for echoes")
	complete := func() bool {
		return len(reliable.received) == reliable.sent && len(fragmented.received) == fragmented.sent
	}
	if sess.until(complete, viper.GetDuration("wait")) {
		spinner.Success("All reliable echoes received")
	} else {
		spinner.Warning("Not every reliable echo came back")
	}

	// unreliable stragglers
	sess.until(func() bool { return len(unreliable.received) == unreliable.sent }, connectCmdConfig.AckRate)

	table := pterm.TableData{{"Class", "Sent", "Echoed", "Lost"}}
	for _, r := range results {
		table = append(table, []string{
			r.name,
			fmt.Sprintf("%d", r.sent),
			fmt.Sprintf("%d", len(r.received)),
			fmt.Sprintf("%d", r.sent-len(r.received)),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
		return err
	}

	conn := sess.client.Connection()
	pterm.DefaultSection.Println("Connection")
	pterm.Println(conn.Stats().Snapshot().String())
	pterm.Info.Printfln("RTT: %d tick(s) | Events: %s", conn.RTT(), sess.events.Summary())

	if len(reliable.received) != reliable.sent || len(fragmented.received) != fragmented.sent {
		return fmt.Errorf("reliable echoes missing")
	}
	return nil
}
