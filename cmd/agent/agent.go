// Package agent implements the long-running sync agent command.
package agent

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/fieldsync-go/internal/conf"
	"github.com/tphakala/fieldsync-go/internal/logging"
	"github.com/tphakala/fieldsync-go/internal/runtime"
)

// stopTimeout bounds how long shutdown waits for the in-flight drain cycle.
const stopTimeout = 30 * time.Second

// Command creates the agent command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run the background sync agent",
		Long:  "Starts the sync worker and drains the operation queue until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(settings)
		},
	}
}

func runAgent(settings *conf.Settings) error {
	if settings.Main.Log.Enabled {
		level := slog.LevelInfo
		if settings.Debug {
			level = slog.LevelDebug
		}
		fileLogger, closeLogger, err := logging.NewFileLogger(settings.Main.Log.Path, "agent", level, logging.RotationConfig{
			MaxSizeMB:  settings.Main.Log.MaxSize,
			MaxBackups: settings.Main.Log.MaxBackups,
			MaxAgeDays: settings.Main.Log.MaxAge,
		})
		if err != nil {
			return err
		}
		defer func() { _ = closeLogger() }()
		slog.SetDefault(fileLogger)
	}

	container, err := runtime.Build(settings)
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := container.Engine.Start(ctx); err != nil {
		return err
	}

	logging.Info("agent running", "device", settings.Main.DeviceID, "store", settings.Store.Path)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down, waiting for in-flight drain cycle")
	return container.Engine.Stop(stopTimeout)
}
