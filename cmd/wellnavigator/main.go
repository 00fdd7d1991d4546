// cmd/wellnavigator/main.go
package main

import (
	"fmt"
	"os"

	"github.com/sbgadvisor/WellNavigator2/internal/common/config"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wellnavigator",
		Short:         "Guarded health-information chat assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (default: ./configs/config.yaml)")

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newLogsCmd(),
		newIndexCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}
