package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/adalundhe/recall/core/store"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a completed task outcome",
	Long:  `Store a pattern or quality assessment read from a JSON file or stdin.`,
}

var recordPatternCmd = &cobra.Command{
	Use:   "pattern [file]",
	Short: "Record a task pattern",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRecordPattern,
}

var recordAssessmentCmd = &cobra.Command{
	Use:   "assessment [file]",
	Short: "Record a quality assessment",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRecordAssessment,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.AddCommand(recordPatternCmd)
	recordCmd.AddCommand(recordAssessmentCmd)
}

func runRecordPattern(cmd *cobra.Command, args []string) error {
	data, err := readInput(args)
	if err != nil {
		return err
	}

	var p store.Pattern
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse pattern: %w", err)
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := client.RecordOutcome(cmd.Context(), p)
	if err != nil {
		return err
	}

	printRecoveryNotice(client)
	fmt.Println(id)
	return nil
}

func runRecordAssessment(cmd *cobra.Command, args []string) error {
	data, err := readInput(args)
	if err != nil {
		return err
	}

	var qa store.QualityAssessment
	if err := json.Unmarshal(data, &qa); err != nil {
		return fmt.Errorf("parse assessment: %w", err)
	}

	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	id, err := client.RecordQualityAssessment(cmd.Context(), qa)
	if err != nil {
		return err
	}

	printRecoveryNotice(client)
	fmt.Println(id)
	return nil
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}

// Recoveries are secondary status, never a failure of the user's command.
func printRecoveryNotice(client interface{ LastRecovery() *store.RecoveryNotice }) {
	if n := client.LastRecovery(); n != nil {
		fmt.Fprintf(os.Stderr, "warning: %s\n", n)
	}
}
