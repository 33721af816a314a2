package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/matheus3301/freightdesk/internal/client"
	"github.com/matheus3301/freightdesk/internal/config"
	"github.com/matheus3301/freightdesk/internal/instance"
	"github.com/matheus3301/freightdesk/internal/logging"
	"github.com/matheus3301/freightdesk/internal/tui"
	"go.uber.org/zap"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	userFlag := flag.String("user", "", "user id (default: the user saved by freightctl login)")
	flag.Parse()

	instanceName := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(instanceName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// The screen owns stderr once the TUI runs.
	logger := logging.NewCLI(true)

	idPath := instance.ClientPath(instanceName)
	userID := *userFlag
	if userID == "" {
		saved, err := client.LoadIdentity(idPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		userID = saved
	}

	socketPath := instance.SocketPath(instanceName)

	// Probe daemon health; auto-start if needed.
	if !probeDaemon(socketPath) {
		fmt.Fprintf(os.Stderr, "daemon not running for instance %q, starting...\n", instanceName)
		if err := startDaemon(instanceName); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start daemon: %v\n", err)
			os.Exit(1)
		}
		if !waitForDaemon(socketPath, 15*time.Second) {
			fmt.Fprintf(os.Stderr, "daemon did not become ready\n")
			os.Exit(1)
		}
	}

	cfg, err := config.LoadOrDefault(instance.ConfigPath())
	if err != nil {
		cfg = config.Default()
	}
	c, err := client.New(client.Options{
		BaseURL:    client.DaemonURL(instanceName, cfg.HTTP.Addr),
		SocketPath: socketPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to daemon: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = c.Login(ctx, userID)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "login as %q: %v\n", userID, err)
		os.Exit(1)
	}

	app := tui.NewApp(tui.Options{
		Client:   c,
		Instance: instanceName,
		UserID:   userID,
		Logger:   logger,
		OnLogin: func(id string) {
			if err := client.SaveIdentity(idPath, id); err != nil {
				logger.Warn("save identity", zap.Error(err))
			}
		},
	})
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// probeDaemon reports whether a daemon answers on the control socket. A
// daemon that is up but not READY still counts; the TUI shows its state.
func probeDaemon(socketPath string) bool {
	c, err := client.New(client.Options{SocketPath: socketPath})
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = c.Health(ctx)
	return err == nil
}

func startDaemon(instanceName string) error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}
	freightd := filepath.Join(filepath.Dir(executable), "freightd")

	if _, err := os.Stat(freightd); errors.Is(err, os.ErrNotExist) {
		freightd = "freightd"
	}

	cmd := exec.Command(freightd, "--instance", instanceName)
	// Inherit stderr so daemon startup errors are visible.
	cmd.Stderr = os.Stderr
	return cmd.Start()
}

// waitForDaemon polls the health service (not just a socket connect).
func waitForDaemon(socketPath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probeDaemon(socketPath) {
			return true
		}
		time.Sleep(300 * time.Millisecond)
	}
	return false
}
