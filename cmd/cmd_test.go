package cmd

import (
	"errors"
	"testing"

	"github.com/leesper/taonet"
	"github.com/spf13/viper"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	t.Cleanup(viper.Reset)
	RootCmd.SetArgs(args)
	return RootCmd.Execute()
}

func TestServeRejectsInvalidAddress(t *testing.T) {
	err := execute(t, "serve", "--ip", "not-an-ip", "--log-level", "none")
	if !errors.Is(err, taonet.ErrInvalidAddress) {
		t.Fatalf("serve --ip not-an-ip error %v, want %v", err, taonet.ErrInvalidAddress)
	}
}

func TestConnectRejectsInvalidArgument(t *testing.T) {
	err := execute(t, "connect", "127.0.0.1", "--log-level", "none")
	if !errors.Is(err, taonet.ErrInvalidAddress) {
		t.Fatalf("connect 127.0.0.1 error %v, want %v", err, taonet.ErrInvalidAddress)
	}
}

func TestRejectsUnknownLogLevel(t *testing.T) {
	if err := execute(t, "serve", "--log-level", "loud"); err == nil {
		t.Fatalf("serve --log-level loud succeeded")
	}
}

func TestStartClientFailure(t *testing.T) {
	loop, err := taonet.NewLoop()
	if err != nil {
		t.Fatalf("NewLoop() error %v", err)
	}
	defer loop.Close()
	client := taonet.NewTCPClient(loop, "cmd", 0)
	defer client.Close()

	err = startClient(client, "not-an-ip", 80)
	if !errors.Is(err, errConnect) {
		t.Fatalf("startClient() error %v, want %v", err, errConnect)
	}
	if errors.Is(err, taonet.ErrInvalidAddress) {
		t.Fatalf("startClient() error %v reported as an invalid address", err)
	}
}
