package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scholar-sites/sitesync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sitesync",
	Short: "Researcher portfolio cache sync and tenant resolution",
	Long:  "Keeps tenant portfolio caches fresh from the external bibliographic catalog and resolves inbound hostnames to tenants.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
