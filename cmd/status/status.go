// Package status implements the one-shot queue status command.
package status

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tphakala/fieldsync-go/internal/conf"
	"github.com/tphakala/fieldsync-go/internal/runtime"
)

// Command creates the status command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context(), settings)
		},
	}
}

func showStatus(ctx context.Context, settings *conf.Settings) error {
	if ctx == nil {
		ctx = context.Background()
	}

	container, err := runtime.Build(settings)
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	status, err := container.Coordinator.Status(ctx)
	if err != nil {
		return err
	}

	online := "offline"
	if status.Online {
		online = "online"
	}
	lastSync := "never"
	if !status.LastSyncAt.IsZero() {
		lastSync = status.LastSyncAt.Format("2006-01-02 15:04:05")
	}

	fmt.Printf("Central store:  %s\n", online)
	fmt.Printf("Health:         %s\n", status.Health)
	fmt.Printf("Pending:        %d\n", status.PendingCount)
	fmt.Printf("Failed:         %d\n", status.FailedCount)
	fmt.Printf("Last sync:      %s\n", lastSync)
	if status.Backlogged {
		fmt.Printf("Warning:        queue above soft limit (%d)\n", settings.Sync.QueueSoftLimit)
	}

	summary, err := container.Store.PendingSummary()
	if err != nil {
		return err
	}
	if len(summary) > 0 {
		fmt.Println("\nPending by target:")
		targets := make([]string, 0, len(summary))
		for target := range summary {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			fmt.Printf("  %-20s %d\n", target, summary[target])
		}
	}

	return nil
}
