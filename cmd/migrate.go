package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Scan for legacy fragment files and unify them",
	Long: `Merge any remaining legacy fragment files (learned_patterns.json,
quality_history.json, skill_metrics.json, agent_metrics.json,
task_queue.json) into the unified store. Consumed fragments are moved into
migration_backups/, never deleted. Safe to run repeatedly.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	migrated, err := client.Migrate(cmd.Context())
	if err != nil {
		return err
	}

	if migrated {
		fmt.Println("legacy fragments merged into unified store")
	} else {
		fmt.Println("store already unified; nothing to migrate")
	}
	return nil
}
