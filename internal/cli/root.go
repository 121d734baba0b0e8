package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"uplink/pkg/config"
	"uplink/pkg/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "uplink",
	Short: "Batch file uploader",
	Long:  "Uploads batches of files with bounded concurrency, per-file validation, progress tracking and mid-flight cancellation",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	loaded, path, err := config.LoadConfig()
	if err != nil {
		// fall back to defaults so flag-only invocations still work
		fmt.Printf("Warning: %v, using defaults\n", err)
		defaults := config.DefaultConfig
		loaded = &defaults
		path = "built-in defaults"
	}
	cfg = loaded

	logger.SetGlobalLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.Debug("configuration loaded", "source", path)

	rootCmd.PersistentFlags().StringVar(&cfg.Transfer.BaseURL, "dest", cfg.Transfer.BaseURL,
		"Destination base URL for HTTP transfers")
	rootCmd.PersistentFlags().IntVar(&cfg.Uploader.MaxConcurrentUploads, "concurrency", cfg.Uploader.MaxConcurrentUploads,
		"Maximum simultaneous transfers")
	rootCmd.PersistentFlags().Int64Var(&cfg.Policy.MaxFileSizeBytes, "max-size", cfg.Policy.MaxFileSizeBytes,
		"Maximum file size in bytes")

	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newPolicyCmd())
}
