package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/pmsync/internal/api"
	"github.com/matheus3301/pmsync/internal/profile"
	"github.com/matheus3301/pmsync/internal/tui/client"
)

var (
	profileFlag string
	jsonFlag    bool
	autoStart   bool
)

var rootCmd = &cobra.Command{
	Use:           "pmctl",
	Short:         "Control a pmsync daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "profile name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&autoStart, "start", false, "start the daemon when it is not running")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// connect dials the daemon of the selected profile.
func connect() (*api.Client, error) {
	name := profile.Resolve(profileFlag)
	if err := profile.ValidateName(name); err != nil {
		return nil, err
	}
	socketPath := profile.SocketPath(name)
	if autoStart {
		return client.Ensure(name, socketPath, 10*time.Second)
	}
	if !client.Probe(socketPath) {
		return nil, fmt.Errorf("daemon for profile %q is not running (try --start)", name)
	}
	return client.Connect(socketPath)
}

// withClient runs fn against a connected client with a request timeout.
func withClient(fn func(ctx context.Context, c *api.Client) error) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, c)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
