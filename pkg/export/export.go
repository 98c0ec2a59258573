// Package export writes daily schedules and simulation results as JSON or
// CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/kilianp07/ess/core/scheduler"
	"github.com/kilianp07/ess/core/simulator"
)

// WriteJSON writes v to w as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteScheduleCSV writes one row per planned hour.
func WriteScheduleCSV(w io.Writer, s scheduler.Schedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"hour", "power_production", "power_consumption", "ess_mode", "ess_power", "charge_c_rate", "discharge_c_rate"}); err != nil {
		return err
	}
	for _, e := range s.Entries {
		rec := []string{
			strconv.Itoa(e.Hour),
			formatFloat(e.PowerProduction),
			formatFloat(e.PowerConsumption),
			string(e.EssMode),
			formatFloat(e.EssPower),
			formatFloat(e.ChargeCRate),
			formatFloat(e.DischargeCRate),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSimulationCSV writes one row per simulated hour.
func WriteSimulationCSV(w io.Writer, r simulator.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"hour", "is_nighttime", "power_production", "start_soc", "end_soc", "soc_change", "charge_current", "discharge_current", "state", "charged_wh", "discharged_wh"}); err != nil {
		return err
	}
	for _, h := range r.Hours {
		rec := []string{
			strconv.Itoa(h.Hour),
			strconv.FormatBool(h.IsNighttime),
			formatFloat(h.PowerProduction),
			formatFloat(h.StartSOC),
			formatFloat(h.EndSOC),
			formatFloat(h.SOCChange),
			formatFloat(h.ChargeCurrent),
			formatFloat(h.DischargeCurrent),
			h.Phase.String(),
			formatFloat(h.ChargedWh),
			formatFloat(h.DischargedWh),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write encodes a Schedule or a simulation Result in format "json" or "csv".
func Write(w io.Writer, format string, v any) error {
	switch format {
	case "", "json":
		return WriteJSON(w, v)
	case "csv":
		switch r := v.(type) {
		case scheduler.Schedule:
			return WriteScheduleCSV(w, r)
		case simulator.Result:
			return WriteSimulationCSV(w, r)
		}
		return fmt.Errorf("csv export not supported for %T", v)
	}
	return fmt.Errorf("unknown format %q", format)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
