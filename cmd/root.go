package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crm-pulse/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "crm-pulse",
	Short: "CRM analytics aggregation pipeline",
	Long:  "Fetches leads, calls, deals and tasks from Zoho CRM, joins them across phone and id keys, and produces the dashboard metrics snapshots.",
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
