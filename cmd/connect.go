package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/leesper/taonet"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// errConnect is returned when the client could not start connecting.
var errConnect = errors.New("connect failed")

var (
	connectCmdConfig = taonet.DefaultClientConfig()
	// ConnectCmd pipes stdin to a server and prints what comes back.
	ConnectCmd = &cobra.Command{
		Use:   "connect [ip:port]",
		Short: "Connect to a server and pipe stdin to it",
		Long: `Connect to a server, send every line read from stdin and print the bytes received.
The connection is rebuilt whenever it fails or stays silent longer than the invalid interval.`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: processConnectConfig,
		RunE:    connect,
	}
)

func init() {
	defaults := taonet.DefaultClientConfig()
	flags := ConnectCmd.Flags()
	flags.String("name", defaults.Name, "client name, used in logs")
	flags.Duration("check-interval", defaults.CheckInterval, "how often the connection health is checked")
	flags.Bool("heartbeat", defaults.HeartBeat, "send a heartbeat on an idle connection")
	flags.Duration("heartbeat-interval", defaults.HeartBeatInterval, "idle time before a heartbeat")
	flags.Duration("invalid-interval", defaults.InvalidInterval, "rebuild after this long without receiving, 0 to disable")
}

func processConnectConfig(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}
	if len(args) == 1 {
		ip, port, err := taonet.ParseAddress(args[0])
		if err != nil {
			return err
		}
		connectCmdConfig.Address, connectCmdConfig.Port = ip, port
	}
	connectCmdConfig.Name = viper.GetString("name")
	connectCmdConfig.CheckInterval = viper.GetDuration("check-interval")
	connectCmdConfig.HeartBeat = viper.GetBool("heartbeat")
	connectCmdConfig.HeartBeatInterval = viper.GetDuration("heartbeat-interval")
	connectCmdConfig.InvalidInterval = viper.GetDuration("invalid-interval")
	connectCmdConfig.LogLevel = viper.GetString("log-level")
	return connectCmdConfig.Validate()
}

func connect(cmd *cobra.Command, _ []string) error {
	taonet.Log(taonet.LevelInfo, "connect "+connectCmdConfig.String())
	loop, err := taonet.NewLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	out := cmd.OutOrStdout()
	client := connectCmdConfig.NewClient(loop)
	client.SetMessageCallback(func(conn *taonet.TCPConnection, buf *taonet.Buffer) {
		fmt.Fprint(out, buf.RetrieveAllAsString())
	})
	client.SetHBCallback(func(conn *taonet.TCPConnection) {
		conn.SendString("\n")
	})
	if err := startClient(client, connectCmdConfig.Address, connectCmdConfig.Port); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			if _, err := fmt.Fprintln(client, scanner.Text()); err != nil {
				taonet.Log(taonet.LevelWarn, "dropped line: "+err.Error())
			}
		}
		stop <- syscall.SIGTERM
	}()
	return runLoop(loop, stop, client.Close)
}

func startClient(client *taonet.TCPClient, ip string, port int) error {
	if !client.Connect(ip, port) {
		return fmt.Errorf("%w: %s:%d", errConnect, ip, port)
	}
	return nil
}
