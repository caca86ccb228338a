package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show skill and agent effectiveness",
}

var statsSkillsCmd = &cobra.Command{
	Use:   "skills [name]",
	Short: "Show skill effectiveness",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatsSkills,
}

var statsAgentsCmd = &cobra.Command{
	Use:   "agents [name]",
	Short: "Show agent performance",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatsAgents,
}

var statsJSON bool

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.AddCommand(statsSkillsCmd)
	statsCmd.AddCommand(statsAgentsCmd)
	statsCmd.PersistentFlags().BoolVar(&statsJSON, "json", false, "Emit JSON instead of a table")
}

func runStatsSkills(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 1 {
		se, err := client.GetSkillEffectiveness(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if se == nil {
			return fmt.Errorf("skill %q has no recorded uses", args[0])
		}
		return emitJSON(se)
	}

	env, err := client.ReadSnapshot(cmd.Context())
	if err != nil {
		return err
	}

	if statsJSON {
		return emitJSON(env.SkillEffectiveness)
	}

	names := make([]string, 0, len(env.SkillEffectiveness))
	for name := range env.SkillEffectiveness {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SKILL\tUSES\tSUCCESSFUL\tSUCCESS RATE")
	for _, name := range names {
		se := env.SkillEffectiveness[name]
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\n", name, se.TotalUses, se.SuccessfulUses, se.SuccessRate*100)
	}
	return w.Flush()
}

func runStatsAgents(cmd *cobra.Command, args []string) error {
	client, _, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 1 {
		ap, err := client.GetAgentPerformance(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if ap == nil {
			return fmt.Errorf("agent %q has no recorded tasks", args[0])
		}
		return emitJSON(ap)
	}

	env, err := client.ReadSnapshot(cmd.Context())
	if err != nil {
		return err
	}

	if statsJSON {
		return emitJSON(env.AgentEffectiveness)
	}

	names := make([]string, 0, len(env.AgentEffectiveness))
	for name := range env.AgentEffectiveness {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tTASKS\tSUCCESS RATE\tAVG QUALITY\tAVG SECONDS\tTREND")
	for _, name := range names {
		ap := env.AgentEffectiveness[name]
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\t%.1f\t%.1f\t%s\n",
			name, ap.TotalTasks, ap.SuccessRate*100, ap.AvgQualityScore, ap.AvgExecutionSeconds, ap.Trend)
	}
	return w.Flush()
}

func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
