// Package cmd assembles the fieldsync command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/fieldsync-go/cmd/agent"
	"github.com/tphakala/fieldsync-go/cmd/failed"
	"github.com/tphakala/fieldsync-go/cmd/status"
	"github.com/tphakala/fieldsync-go/cmd/sync"
	"github.com/tphakala/fieldsync-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fieldsync",
		Short: "Field operations offline sync agent",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		cobra.CheckErr(err)
	}

	subcommands := []*cobra.Command{
		agent.Command(settings),
		status.Command(settings),
		failed.Command(settings),
		sync.Command(settings),
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Store.Path, "store", viper.GetString("store.path"), "Path to the device-local SQLite database")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
