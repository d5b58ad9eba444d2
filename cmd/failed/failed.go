// Package failed implements the failed-operations listing command.
package failed

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/fieldsync-go/internal/conf"
	"github.com/tphakala/fieldsync-go/internal/runtime"
)

// Command creates the failed command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "List operations the sync loop gave up on",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listFailed(settings)
		},
	}
}

func listFailed(settings *conf.Settings) error {
	container, err := runtime.Build(settings)
	if err != nil {
		return err
	}
	defer func() { _ = container.Close() }()

	ops, err := container.Coordinator.FailedOperations()
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Println("No failed operations.")
		return nil
	}

	fmt.Printf("%-6s %-20s %-8s %-12s %-9s %s\n", "ID", "TARGET", "VERB", "KEY", "ATTEMPTS", "LAST ATTEMPT")
	for i := range ops {
		op := &ops[i]
		lastAttempt := "-"
		if op.LastAttemptAt != nil {
			lastAttempt = op.LastAttemptAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-6d %-20s %-8s %-12s %-9d %s\n",
			op.ID, op.Target, op.Verb, op.Key, op.Attempts, lastAttempt)
	}

	return nil
}
