package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd)
}

// findServer reads the PID file written by serve and checks the process is
// alive with signal 0.
func findServer() (*os.Process, error) {
	cfg := loadConfig()
	data, err := os.ReadFile(pidPath(cfg.DataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no running server (PID file not found)")
		}
		return nil, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid PID file content: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, fmt.Errorf("no running server (process %d not found)", pid)
	}
	return proc, nil
}

func signalServer(sig syscall.Signal, done string) error {
	proc, err := findServer()
	if err != nil {
		return err
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("send %v: %w", sig, err)
	}
	fmt.Fprintf(os.Stdout, "%s (PID %d).\n", done, proc.Pid)
	return nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalServer(syscall.SIGTERM, "Sent SIGTERM to server")
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running server in place",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalServer(syscall.SIGHUP, "Sent SIGHUP to server for restart")
	},
}
