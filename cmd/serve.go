package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/leesper/taonet"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = taonet.DefaultServerConfig()
	// ServeCmd starts an echo server.
	ServeCmd = &cobra.Command{
		Use:     "serve",
		Short:   "Start an echo server",
		Long:    `Start a server that echoes every byte back to its sender and sends a heartbeat to idle connections.`,
		PreRunE: processServeConfig,
		RunE:    serve,
	}
)

func init() {
	defaults := taonet.DefaultServerConfig()
	flags := ServeCmd.Flags()
	flags.String("ip", defaults.IP, "address to listen on")
	flags.Int("port", defaults.Port, "port to listen on")
	flags.Bool("heartbeat", defaults.HeartBeat, "send a heartbeat on idle connections")
	flags.Duration("heartbeat-interval", defaults.HeartBeatInterval, "idle time before a heartbeat")
	flags.String("heartbeat-payload", "\n", "bytes sent as heartbeat")
	flags.Int("max-connections", defaults.MaxConnections, "refuse connections above this count, 0 for no limit")
	flags.Int("monitor-port", 0, "serve Prometheus metrics on this port, 0 to disable")
}

func processServeConfig(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}
	serveCmdConfig.IP = viper.GetString("ip")
	serveCmdConfig.Port = viper.GetInt("port")
	serveCmdConfig.HeartBeat = viper.GetBool("heartbeat")
	serveCmdConfig.HeartBeatInterval = viper.GetDuration("heartbeat-interval")
	serveCmdConfig.MaxConnections = viper.GetInt("max-connections")
	serveCmdConfig.MonitorPort = viper.GetInt("monitor-port")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	return serveCmdConfig.Validate()
}

func serve(cmd *cobra.Command, _ []string) error {
	taonet.Log(taonet.LevelInfo, "serve "+serveCmdConfig.String())
	if serveCmdConfig.MonitorPort > 0 {
		taonet.MonitorOn(serveCmdConfig.MonitorPort)
	}

	loop, err := taonet.NewLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	server, err := taonet.NewTCPServer(loop, serveCmdConfig.ServerOptions()...)
	if err != nil {
		return err
	}
	payload := viper.GetString("heartbeat-payload")
	server.SetMessageCallback(func(conn *taonet.TCPConnection, buf *taonet.Buffer) {
		conn.Send(buf.Next(buf.Len()))
	})
	server.SetHBCallback(func(conn *taonet.TCPConnection) {
		conn.SendString(payload)
	})
	if err := server.Listen(serveCmdConfig.IP, serveCmdConfig.Port); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	err = runLoop(loop, stop, server.Stop)
	if cerr := server.Close(); err == nil {
		err = cerr
	}
	return err
}
