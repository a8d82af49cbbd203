// Package cmd implements the taonet command line: a demo echo server and a
// self healing client on top of the reactor runtime.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/leesper/taonet"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "taonet",
		Short: "reactor style TCP server and client",
		Long: fmt.Sprintf(`taonet (v%s)

A single threaded event loop network runtime. Flags can also be set via
environment variables TAONET_<FLAG> (e.g. TAONET_LOG_LEVEL=debug) or a
.env file in the working directory.`, taonet.Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of taonet",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("taonet v%s\n", taonet.Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(ConnectCmd)
	RootCmd.AddCommand(versionCmd)

	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", "log level (trace, debug, info, warn, error, crit, none)")
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig loads env files and binds TAONET_ environment variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("taonet")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindFlags makes viper see the flags of cmd and its parents, then applies
// the log level and process setup every subcommand shares.
func bindFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return err
	}
	level, err := taonet.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	taonet.SetLevel(level)
	taonet.Setup()
	return nil
}

// runLoop runs loop on the calling goroutine until a signal stops it.
func runLoop(loop *taonet.Loop, stop <-chan os.Signal, cleanup func()) error {
	go func() {
		<-stop
		cleanup()
		loop.Stop()
	}()
	return loop.Run()
}
