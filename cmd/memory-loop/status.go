package main

import (
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print each discovered vault's last run times",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		if len(a.vaults) == 0 {
			cmd.Printf("no vaults found under %s\n", a.cfg.VaultsRoot)
			return nil
		}
		for _, v := range a.vaults {
			led := loadVaultLedger(v)
			cmd.Printf("%s\n", v.Root)
			cmd.Printf("  cards_enabled:  %v\n", v.CardsEnabled)
			cmd.Printf("  last_run_at:    %s\n", formatTime(led.LastRunAt))
			cmd.Printf("  last_daily_run: %s\n", formatTime(led.LastDailyRun))
			cmd.Printf("  last_weekly_run: %s\n", formatTime(led.LastWeeklyRun))
			cmd.Printf("  records:        %d\n", len(led.Records))
		}
		return nil
	},
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
