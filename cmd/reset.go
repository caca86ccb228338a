package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe all recorded patterns and metrics",
	Long:  `Reset the store to an empty state. The prior content is snapshotted into the backup rotation first.`,
	RunE:  runReset,
}

var resetConfirm bool

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().BoolVarP(&resetConfirm, "yes", "y", false, "Skip confirmation")
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetConfirm {
		return fmt.Errorf("refusing to reset without --yes")
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Reset(cmd.Context()); err != nil {
		return err
	}

	fmt.Println("store reset; prior content retained in backups/")
	return nil
}
