package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcanepa/sendero/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configValidateCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/sendero/config.yaml", "Path to configuration file")
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Database path: %s\n", cfg.Database.Path)
	fmt.Printf("  Job store path: %s\n", cfg.Scheduler.StorePath)
	fmt.Printf("  Callback URL: %s\n", cfg.Scheduler.CallbackURL)
	fmt.Printf("  SMTP relay: %s\n", cfg.SMTP.Addr)
	fmt.Printf("  Metrics: %v\n", cfg.Metrics.Enabled)

	return nil
}
