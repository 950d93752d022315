package client

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/pmsync/internal/api"
)

// DaemonBinary is the executable started when no daemon answers.
const DaemonBinary = "pmsyncd"

// Connect dials the profile daemon. The connection is lazy; use Probe to
// check that something is actually serving.
func Connect(socketPath string) (*api.Client, error) {
	c, err := api.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return c, nil
}

// Probe reports whether a daemon answers a Status call on socketPath.
func Probe(socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	c, err := api.Dial(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = c.Status(ctx)
	return err == nil
}

// StartDaemon launches pmsyncd for profile in the background. The binary
// next to the running executable wins over one found on PATH.
func StartDaemon(profile string) error {
	bin := DaemonBinary
	if exe, err := os.Executable(); err == nil {
		local := filepath.Join(filepath.Dir(exe), DaemonBinary)
		if _, err := os.Stat(local); err == nil {
			bin = local
		}
	}
	cmd := exec.Command(bin, "--profile", profile)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// WaitForDaemon polls with a real Status call until the daemon answers or
// timeout elapses.
func WaitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if Probe(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}

// Ensure connects to the profile daemon, starting it first when nothing
// answers on socketPath.
func Ensure(profile, socketPath string, timeout time.Duration) (*api.Client, error) {
	if !Probe(socketPath) {
		fmt.Fprintf(os.Stderr, "daemon not running for profile %q, starting...\n", profile)
		if err := StartDaemon(profile); err != nil {
			return nil, fmt.Errorf("start daemon: %w", err)
		}
		if !WaitForDaemon(socketPath, timeout) {
			return nil, fmt.Errorf("daemon for profile %q did not become ready", profile)
		}
	}
	return Connect(socketPath)
}
