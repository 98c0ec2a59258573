package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ess/app"
	"github.com/kilianp07/ess/core/model"
	"github.com/kilianp07/ess/core/scheduler"
	"github.com/kilianp07/ess/pkg/export"
)

var (
	location     string
	dateFlag     string
	avgWind      float64
	forecastPath string
	schedCfgPath string
	format       string
	outputPath   string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Build the daily charge/discharge plan of a site",
	RunE:  runSchedule,
}

func init() {
	addDayFlags(scheduleCmd)
	scheduleCmd.Flags().StringVar(&forecastPath, "forecast", "", "JSON file with 24 hourly forecasts (predicted when empty)")
	scheduleCmd.Flags().StringVar(&schedCfgPath, "scheduler-config", "", "yaml or json file replacing the scheduler section")
	rootCmd.AddCommand(scheduleCmd)
}

func addDayFlags(c *cobra.Command) {
	c.Flags().StringVarP(&location, "location", "l", "", "site name (defaults to service.location)")
	c.Flags().StringVarP(&dateFlag, "date", "d", "", "day as YYYY-MM-DD (defaults to today)")
	c.Flags().Float64VarP(&avgWind, "wind", "w", 5, "average wind speed in m/s")
	c.Flags().StringVarP(&format, "format", "f", "json", "output format: json or csv")
	c.Flags().StringVarP(&outputPath, "output", "o", "", "output file (stdout when empty)")
}

func parseDay() (time.Time, error) {
	if dateFlag == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local), nil
	}
	d, err := time.ParseInLocation("2006-01-02", dateFlag, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", dateFlag, err)
	}
	return d, nil
}

func siteLocation() string {
	if location != "" {
		return location
	}
	return cfg.Service.Location
}

func readForecast(path string) ([]model.HourlyForecast, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc []model.HourlyForecast
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}
	return fc, nil
}

func output(cmd *cobra.Command, v any) (err error) {
	var w io.Writer = cmd.OutOrStdout()
	if outputPath != "" {
		f, cerr := os.Create(outputPath)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close %s: %w", outputPath, cerr)
			}
		}()
		w = f
	}
	return export.Write(w, format, v)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	day, err := parseDay()
	if err != nil {
		return err
	}
	fc, err := readForecast(forecastPath)
	if err != nil {
		return err
	}
	c := offline(cfg)
	if schedCfgPath != "" {
		sc, err := scheduler.LoadConfig(schedCfgPath)
		if err != nil {
			return err
		}
		c.Scheduler = sc
	}
	svc, err := app.New(c)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	plan, err := svc.BuildDailySchedule(siteLocation(), day, avgWind, fc)
	if err != nil {
		return err
	}
	return output(cmd, plan)
}
