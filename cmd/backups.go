package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "Manage store backups",
}

var backupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List retained backups, newest first",
	RunE:  runBackupsList,
}

var backupsRestoreCmd = &cobra.Command{
	Use:   "restore [backup-path]",
	Short: "Restore the store from a backup",
	Long:  `Restore from the given backup, or from the newest one when no path is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackupsRestore,
}

func init() {
	rootCmd.AddCommand(backupsCmd)
	backupsCmd.AddCommand(backupsListCmd)
	backupsCmd.AddCommand(backupsRestoreCmd)
}

func runBackupsList(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	backups, err := client.Backups().List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tCREATED")
	for _, b := range backups {
		fmt.Fprintf(w, "%s\t%d\t%s\n", b.Name, b.Size, b.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runBackupsRestore(cmd *cobra.Command, args []string) error {
	client, cfg, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		latest, err := client.Backups().Latest()
		if err != nil {
			return err
		}
		if latest == nil {
			return fmt.Errorf("no backups to restore from")
		}
		path = latest.Path
	}

	if err := client.Backups().Restore(cfg.Paths().StoreFile(), path); err != nil {
		return err
	}

	fmt.Printf("restored store from %s\n", path)
	return nil
}
