// Package main runs the local sync agent for desktop platforms.
// Clients record actions and read sync status via REST/WebSocket on
// localhost:8090 while the agent drains the offline queue in the background.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ahmed11551/namazpro24/internal/config"
	"github.com/ahmed11551/namazpro24/internal/logging"
	"github.com/ahmed11551/namazpro24/internal/telemetry"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "namazpro-agent: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "namazpro-agent",
		Short:         "Local offline sync agent",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default ./namazpro.yaml if present)")
	return cmd
}

func run(configPath string) error {
	ctx := context.Background()

	// Reloads are applied on the main goroutine; only the newest is kept.
	reloads := make(chan *config.Config, 1)
	cfg, err := config.Watch(configPath, func(next *config.Config, ev fsnotify.Event, err error) {
		if err != nil {
			logging.Warn("config reload rejected", map[string]interface{}{
				"file":  ev.Name,
				"error": err.Error(),
			})
			return
		}
		for {
			select {
			case reloads <- next:
				return
			default:
			}
			select {
			case <-reloads:
			default:
			}
		}
	})
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	out, closer := logging.NewWriter(logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer closer.Close()
	logging.Init(out, level)

	tel, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		return err
	}
	traceName := ""
	if tel != nil {
		traceName = cfg.OTel.ServiceName
		logging.Info("otel initialized", map[string]interface{}{"endpoint": cfg.OTel.Endpoint})
	}

	gin.SetMode(gin.ReleaseMode)
	agent := NewAgent(cfg, nil, traceName)
	if err := agent.Start(ctx); err != nil {
		agent.Close()
		return err
	}

	server := &http.Server{
		Addr:              cfg.Agent.Listen,
		Handler:           agent.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("agent listening", map[string]interface{}{"addr": cfg.Agent.Listen})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
loop:
	for {
		select {
		case next := <-reloads:
			agent.ApplyConfig(next)
		case <-quit:
			break loop
		case runErr = <-errCh:
			break loop
		}
	}

	logging.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("http server shutdown error", err)
	}
	if err := agent.Close(); err != nil {
		logging.Error("closing agent", err)
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logging.Error("otel shutdown error", err)
	}
	return runErr
}
