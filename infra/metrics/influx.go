package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/ess/core/metrics"
	"github.com/kilianp07/ess/infra/logger"
)

// InfluxConfig locates the bucket battery points are written to.
type InfluxConfig struct {
	URL     string        `json:"url"`
	Token   string        `json:"token"`
	Org     string        `json:"org"`
	Bucket  string        `json:"bucket"`
	Timeout time.Duration `json:"timeout"`
}

// InfluxSink writes battery observations to InfluxDB using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	timeout  time.Duration
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given endpoint. A URL ending in the
// write path is accepted.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		timeout:  cfg.Timeout,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the instance and returns a NopSink when
// the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), sink.timeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordBatteryState writes a battery_state point.
func (s *InfluxSink) RecordBatteryState(ev coremetrics.BatteryState) error {
	snap := ev.Snapshot
	p := write.NewPointWithMeasurement("battery_state").
		AddTag("location", ev.Location).
		AddTag("phase", snap.Phase.String()).
		AddField("soc", round3(snap.SOC)).
		AddField("cell_voltage", round3(snap.CellVoltage)).
		AddField("pack_voltage", round3(snap.PackVoltage)).
		AddField("charge_current", round3(snap.ChargeCurrent)).
		AddField("discharge_current", round3(snap.DischargeCurrent)).
		AddField("temperature", round3(snap.Temperature)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordPhaseTransition writes a phase_transition point.
func (s *InfluxSink) RecordPhaseTransition(ev coremetrics.PhaseTransition) error {
	p := write.NewPointWithMeasurement("phase_transition").
		AddTag("location", ev.Location).
		AddTag("from", ev.From.String()).
		AddTag("to", ev.To.String()).
		AddField("reason", ev.Reason).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordSimulation writes a simulation_run point.
func (s *InfluxSink) RecordSimulation(ev coremetrics.SimulationRun) error {
	p := write.NewPointWithMeasurement("simulation_run").
		AddTag("location", ev.Location).
		AddTag("date", ev.Date.Format("2006-01-02")).
		AddField("initial_soc", round3(ev.InitialSOC)).
		AddField("final_soc", round3(ev.FinalSOC)).
		AddField("charged_wh", round3(ev.ChargedWh)).
		AddField("discharged_wh", round3(ev.DischargedWh)).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordSchedule writes a schedule_built point.
func (s *InfluxSink) RecordSchedule(ev coremetrics.ScheduleRun) error {
	p := write.NewPointWithMeasurement("schedule_built").
		AddTag("location", ev.Location).
		AddTag("sufficient", strconv.FormatBool(ev.Sufficient)).
		AddField("required_wh", round3(ev.RequiredWh)).
		AddField("charging_wh", round3(ev.ChargingWh)).
		AddField("unmet_wh", round3(ev.UnmetWh)).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
