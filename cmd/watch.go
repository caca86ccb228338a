package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adalundhe/recall/core/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the store and print summaries as it changes",
	Long: `Read-only polling loop for dashboard-style consumers. Never takes the
write lock; every observed snapshot is internally consistent.`,
	RunE: runWatch,
}

var watchInterval time.Duration

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Polling interval (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	client, cfg, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	interval := cfg.WatchInterval
	if watchInterval > 0 {
		interval = watchInterval
	}

	w, err := watch.New(client.Store(), interval)
	if err != nil {
		return err
	}

	go func() {
		for env := range w.Snapshots() {
			fmt.Printf("[%s] patterns=%d skills=%d agents=%d assessments=%d\n",
				time.Now().Format("15:04:05"),
				len(env.Patterns), len(env.SkillEffectiveness),
				len(env.AgentEffectiveness), len(env.QualityHistory))
		}
	}()

	return w.Run(cmd.Context())
}
