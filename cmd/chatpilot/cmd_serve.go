package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/chatpilot/internal/api"
	"github.com/user/chatpilot/internal/dispatch"
	"github.com/user/chatpilot/internal/pipeline"
	"github.com/user/chatpilot/internal/telegram"
	"github.com/user/chatpilot/internal/types"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the realtime sync loop",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

const shutdownGrace = 30 * time.Second

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, "chatpilot.pid")
}

func writePIDFile(dataDir string) (string, error) {
	path := pidPath(dataDir)
	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Write PID file
	pidFile, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := api.NewHub(cfg.HTTP.AllowedOrigins)
	orch := a.orchestrator(pipeline.WithEvents(hub))

	// Telegram adapter
	if cfg.Telegram.Token != "" {
		limit := cfg.Pipeline.RealtimeMessageLimit
		adapter, err := telegram.New(cfg.Telegram.Token,
			telegram.WithInboundHook(func(chatID string) {
				addr := types.NewAddress("telegram", chatID)
				if _, err := orch.Ingest(ctx, addr, limit); err != nil {
					slog.Warn("telegram ingest failed", "chat", addr, "error", err)
				}
			}))
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		a.mux.Register("telegram", adapter)
		go adapter.Start(ctx)
		slog.Info("telegram adapter started")
	} else {
		slog.Info("telegram adapter disabled (no token)")
	}

	// Deliveries outlive the server context so shutdown can drain them.
	queue := dispatch.NewQueue(int64(cfg.Delivery.MaxConcurrent))
	queue.Start(context.Background())
	defer queue.Stop()

	srv := api.NewServer(api.Deps{
		Orchestrator:   orch,
		Store:          a.store,
		Transport:      a.mux,
		Insight:        a.insight,
		Queue:          queue,
		Hub:            hub,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx, cfg.HTTP.Listen) }()

	if cfg.Pipeline.RealtimeAutostart {
		orch.Realtime().Start(ctx)
	}
	defer orch.Realtime().Stop()

	slog.Info("chatpilot started",
		"data_dir", cfg.DataDir,
		"listen", cfg.HTTP.Listen,
		"database", cfg.Database.Driver,
		"bridge", cfg.WhatsApp.BridgeURL,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"realtime", orch.Realtime().IsRunning(),
		"pid_file", pidFile,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				slog.Info("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					slog.Error("failed to get executable path", "error", err)
					continue
				}
				// Clean up PID file before re-exec
				os.Remove(pidFile)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					slog.Error("failed to re-exec", "error", err)
					if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
						slog.Error("failed to re-write PID file", "error", writeErr)
					}
				}
				continue
			}
			slog.Info("shutting down", "signal", sig)
			orch.Realtime().Stop()
			cancel()
			<-errCh
			if !queue.WaitIdle(shutdownGrace) {
				slog.Warn("deliveries still in flight at shutdown", "active", queue.Active())
			}
			return nil
		}
	}
}
