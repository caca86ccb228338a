package cmd

import (
	"github.com/spf13/cobra"

	"github.com/adalundhe/recall/core/config"
	"github.com/adalundhe/recall/core/learning"
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Recall - learning store for task patterns and effectiveness metrics",
	Long: `Recall records outcomes of completed tasks, aggregates per-skill and
per-agent effectiveness, and serves similarity-based retrieval so future
tasks can reuse successful approaches.`,
	SilenceUsage: true,
}

var (
	flagDir        string
	flagConfigPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "Storage directory (default: platform data dir)")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Path to YAML config file")
}

func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return cfg, err
	}
	if flagDir != "" {
		cfg.StorageDir = flagDir
	}
	return cfg, nil
}

func newClient() (*learning.Client, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}
	client, err := learning.New(cfg)
	if err != nil {
		return nil, cfg, err
	}
	return client, cfg, nil
}
