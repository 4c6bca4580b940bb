package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dNet/cmd/util"
	"github.com/ValentinKolb/dNet/net/common"
	"github.com/ValentinKolb/dNet/net/handshake"
	"github.com/ValentinKolb/dNet/net/stats"
	"github.com/ValentinKolb/dNet/net/transport/udp"
	dragonboatLogger "github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logger = dragonboatLogger.GetLogger("serve")

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start a dNet echo server",
		Long:    `Start a dNet server that echoes every delivered message back on the same channel with the same reliability. The configuration can be set via command line flags or environment variables. The format of the environment variables is DNET_<flag> (e.g. DNET_TICK_RATE=60)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	cmdUtil.SetupProtocolFlags(ServeCmd)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:7777", cmdUtil.WrapString("The UDP address on which the server will listen"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Serve Prometheus metrics on this HTTP address (e.g. localhost:9100), empty disables it"))

	key = "stats-interval"
	ServeCmd.PersistentFlags().Duration(key, 10*time.Second, cmdUtil.WrapString("How often event statistics are logged, 0 disables it"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Config = cmdUtil.GetProtocolConfig()
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Password = viper.GetString("password")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.LogFile = viper.GetString("log-file")

	if err := serveCmdConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return common.InitLoggers(serveCmdConfig.LogLevel, serveCmdConfig.LogFile)
}

// run starts the echo server and ticks it until interrupted
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	socket, err := udp.Listen(serveCmdConfig.Endpoint)
	if err != nil {
		return err
	}
	defer socket.Close()

	var server *handshake.Server
	recorder := stats.NewRecorder(func() int { return server.Len() })

	server, err = handshake.NewServer(handshake.ServerOptions{
		Config:     serveCmdConfig.Config,
		Password:   serveCmdConfig.Password,
		Socket:     socket,
		Serializer: s,
		OnEvent:    recorder.Hook(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveCmdConfig.MetricsEndpoint != "" {
		go serveMetrics(ctx, serveCmdConfig.MetricsEndpoint, recorder)
	}

	fmt.Printf("dNet server listening on %s\n", socket.LocalAddr())
	fmt.Println(serveCmdConfig.String())

	ticker := time.NewTicker(serveCmdConfig.TickInterval())
	defer ticker.Stop()

	var statsTick <-chan time.Time
	if interval := viper.GetDuration("stats-interval"); interval > 0 {
		statsTicker := time.NewTicker(interval)
		defer statsTicker.Stop()
		statsTick = statsTicker.C
	}

	for {
		select {
		case <-ticker.C:
			server.Tick()
			echo(server)
		case <-statsTick:
			logger.Infof("%d connection(s) | %s", server.Len(), recorder.Summary())
		case <-ctx.Done():
			logger.Infof("Shutting down, closing %d connection(s)", server.Len())
			server.Close()
			return nil
		}
	}
}

// echo sends every delivered message back to its sender
func echo(server *handshake.Server) {
	for e := range server.Events() {
		switch e.Kind {
		case common.EvtDelivered:
			_, err := server.Send(e.ConnectionID, e.Reliability, e.Channel, e.Message.Type, e.Message.Payload)
			if err != nil {
				logger.Warningf("Echo to %d failed: %v", e.ConnectionID, err)
			}
		case common.EvtConnectionCreated, common.EvtConnectionClosed, common.EvtConnectionTimedOut:
			logger.Infof("%s", e)
		}
	}
}

// serveMetrics exposes the recorder until ctx is done
func serveMetrics(ctx context.Context, endpoint string, recorder *stats.Recorder) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	srv := &http.Server{Addr: endpoint, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	logger.Infof("Metrics available at http://%s/metrics", endpoint)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Metrics endpoint failed: %v", err)
	}
}
