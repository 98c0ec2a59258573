package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/ess/app"
)

var startHour, endHour int

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate one day of a site on a copy of the battery",
	RunE:  runSimulate,
}

func init() {
	addDayFlags(simulateCmd)
	simulateCmd.Flags().IntVar(&startHour, "start-hour", -1, "first daytime hour (defaults to scheduler.day_start_hour)")
	simulateCmd.Flags().IntVar(&endHour, "end-hour", -1, "first nighttime hour (defaults to scheduler.day_end_hour)")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	day, err := parseDay()
	if err != nil {
		return err
	}
	if startHour < 0 {
		startHour = cfg.Scheduler.DayStartHour
	}
	if endHour < 0 {
		endHour = cfg.Scheduler.DayEndHour
	}
	svc, err := app.New(offline(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	res, err := svc.SimulateDay(siteLocation(), day, avgWind, startHour, endHour)
	if err != nil {
		return err
	}
	return output(cmd, res)
}
