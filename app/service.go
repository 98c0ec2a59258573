package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/ess/app/plugins"
	"github.com/kilianp07/ess/config"
	"github.com/kilianp07/ess/core/battery"
	"github.com/kilianp07/ess/core/control"
	"github.com/kilianp07/ess/core/events"
	coremetrics "github.com/kilianp07/ess/core/metrics"
	"github.com/kilianp07/ess/core/model"
	"github.com/kilianp07/ess/core/monitoring"
	coremqtt "github.com/kilianp07/ess/core/mqtt"
	"github.com/kilianp07/ess/core/prediction"
	"github.com/kilianp07/ess/core/rate"
	"github.com/kilianp07/ess/core/scheduler"
	"github.com/kilianp07/ess/core/simulator"
	"github.com/kilianp07/ess/core/statestore"
	"github.com/kilianp07/ess/infra/logger"
	"github.com/kilianp07/ess/infra/metrics"
	"github.com/kilianp07/ess/infra/mqtt"
	"github.com/kilianp07/ess/internal/eventbus"
)

// Status is the live battery snapshot with the site it belongs to.
type Status struct {
	Location string `json:"location"`
	battery.Snapshot
}

// Service wires the live battery, forecasting, planning and simulation.
type Service struct {
	cfg    *config.Config
	policy rate.Policy
	sites  *prediction.SiteEngine
	engine prediction.Engine
	ctrl   *control.Controller
	store  statestore.Store
	client coremqtt.Client
	sink   coremetrics.MetricsSink
	bus    *eventbus.Bus
	log    logger.Logger
	now    func() time.Time

	mu         sync.Mutex
	production map[string]coremqtt.ProductionReading
	forecast   dayForecast
}

type dayForecast struct {
	day    time.Time
	hourly []float64
}

// Option configures a Service.
type Option func(*Service)

// WithEngine replaces the site forecasting engine.
func WithEngine(e prediction.Engine) Option { return func(s *Service) { s.engine = e } }

// WithMQTTClient uses c instead of connecting to the configured broker.
func WithMQTTClient(c coremqtt.Client) Option { return func(s *Service) { s.client = c } }

// WithStore replaces the configured state store.
func WithStore(st statestore.Store) Option { return func(s *Service) { s.store = st } }

// WithMetricsSink replaces the configured metrics sinks.
func WithMetricsSink(m coremetrics.MetricsSink) Option { return func(s *Service) { s.sink = m } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates a Service from the configuration.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	logg := logger.New("service")
	svc := &Service{
		cfg:        cfg,
		bus:        eventbus.NewTypedBuffered[eventbus.Event](64),
		log:        logg,
		now:        time.Now,
		production: make(map[string]coremqtt.ProductionReading),
	}
	for _, o := range opts {
		o(svc)
	}

	policy, err := rate.NewPolicy(cfg.Rate)
	if err != nil {
		return nil, fmt.Errorf("rate policy: %w", err)
	}
	svc.policy = policy
	sites, err := prediction.NewSiteEngine(cfg.Sites)
	if err != nil {
		return nil, fmt.Errorf("sites: %w", err)
	}
	svc.sites = sites
	if svc.engine == nil {
		svc.engine = sites
	}
	if _, ok := sites.Site(cfg.Service.Location); !ok {
		return nil, model.ConfigError("service location %q is not a configured site", cfg.Service.Location)
	}

	b, err := battery.New(cfg.Battery)
	if err != nil {
		return nil, fmt.Errorf("battery: %w", err)
	}

	if svc.store == nil {
		st, err := plugins.NewStore(cfg.Store.Backend, map[string]any{"path": cfg.Store.Path})
		if err != nil {
			return nil, fmt.Errorf("state store: %w", err)
		}
		svc.store = st
	}
	if svc.sink == nil {
		sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
		if err != nil {
			return nil, fmt.Errorf("metrics sink: %w", err)
		}
		svc.sink = sink
	}
	if svc.client == nil && cfg.MQTT.Enabled() {
		client, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.client = client
	}

	ctrlOpts := []control.Option{
		control.WithEventBus(svc.bus),
		control.WithStore(svc.store),
		control.WithLogger(logger.New("controller")),
		control.WithClock(svc.now),
	}
	if svc.client != nil {
		ctrlOpts = append(ctrlOpts, control.WithPublisher(svc.client))
	}
	machine := battery.NewMachine(b, policy.ForMonth(svc.now().Month()), battery.WithClock(svc.now))
	svc.ctrl = control.New(cfg.Service.Location, machine, ctrlOpts...)
	return svc, nil
}

// Controller exposes the live battery owner.
func (s *Service) Controller() *control.Controller { return s.ctrl }

// Bus exposes the event bus the service publishes on.
func (s *Service) Bus() eventbus.EventBus { return s.bus }

// Locations lists the configured sites.
func (s *Service) Locations() []string { return s.sites.Locations() }

func (s *Service) checkLocation(location string) error {
	if _, ok := s.sites.Site(location); !ok {
		return model.InvalidInput("unknown location %q", location)
	}
	return nil
}

// GetStatus returns the last committed live snapshot.
func (s *Service) GetStatus() Status {
	return Status{Location: s.ctrl.Location(), Snapshot: s.ctrl.Status()}
}

// StartCharge starts charging the live battery with the production reported
// for location.
func (s *Service) StartCharge(productionWh float64, location string) (battery.Outcome, error) {
	if err := s.checkLocation(location); err != nil {
		return battery.Outcome{}, err
	}
	s.ctrl.SetPolicy(s.policy.ForMonth(s.now().Month()))
	out, err := s.ctrl.StartCharge(productionWh)
	if err != nil {
		return out, err
	}
	s.log.Infof("%s: %s", location, out.Message)
	return out, nil
}

// StartDischarge starts discharging the live battery. The rate follows the
// production of the current hour, as a tick would.
func (s *Service) StartDischarge(location string, isNighttime bool) (battery.Outcome, error) {
	if err := s.checkLocation(location); err != nil {
		return battery.Outcome{}, err
	}
	now := s.now()
	production, err := s.productionFor(now)
	if err != nil {
		return battery.Outcome{}, fmt.Errorf("production: %w", err)
	}
	s.ctrl.SetPolicy(s.policy.ForMonth(now.Month()))
	out, err := s.ctrl.StartDischarge(production, isNighttime)
	if err != nil {
		return out, err
	}
	s.log.Infof("%s: %s", location, out.Message)
	return out, nil
}

// Stop ends the active phase of the live battery.
func (s *Service) Stop() (battery.Outcome, error) {
	return s.ctrl.Stop()
}

// BuildDailySchedule plans one day for location. A nil forecast is predicted
// from avgWindSpeed.
func (s *Service) BuildDailySchedule(location string, date time.Time, avgWindSpeed float64, forecast []model.HourlyForecast) (scheduler.Schedule, error) {
	if err := s.checkLocation(location); err != nil {
		return scheduler.Schedule{}, err
	}
	if forecast == nil {
		fc, err := s.engine.PredictDay(location, date, avgWindSpeed)
		if err != nil {
			return scheduler.Schedule{}, err
		}
		forecast = fc
	}
	load, err := s.sites.NightLoadWh(location)
	if err != nil {
		return scheduler.Schedule{}, err
	}
	sched, err := scheduler.New(s.cfg.Scheduler, s.policy.ForMonth(date.Month()), s.cfg.Battery.UsableEnergyWh(),
		scheduler.WithLoadHours(s.cfg.Battery.LoadHours))
	if err != nil {
		return scheduler.Schedule{}, err
	}
	plan, err := sched.Build(forecast, load)
	if err != nil {
		return scheduler.Schedule{}, err
	}
	sum := plan.Summary
	s.bus.Publish(events.ScheduleEvent{
		Location:   location,
		Date:       date,
		RequiredWh: sum.RequiredBatteryCapacityWh,
		ChargingWh: sum.MaxChargingCapacityWh,
		UnmetWh:    sum.UnmetLoadWh,
		Sufficient: sum.IsSufficient,
	})
	return plan, nil
}

// SimulateDay runs a day on a battery independent of the live one.
func (s *Service) SimulateDay(location string, date time.Time, avgWindSpeed float64, startHour, endHour int) (simulator.Result, error) {
	if err := s.checkLocation(location); err != nil {
		return simulator.Result{}, err
	}
	forecast, err := s.engine.PredictDay(location, date, avgWindSpeed)
	if err != nil {
		return simulator.Result{}, err
	}
	b, err := s.simulationBattery()
	if err != nil {
		return simulator.Result{}, err
	}
	started := time.Now()
	res, err := simulator.New(s.policy).Run(b, forecast, simulator.Options{Date: date, StartHour: startHour, EndHour: endHour})
	if err != nil {
		return simulator.Result{}, err
	}
	t := res.Totals
	s.bus.Publish(events.SimulationEvent{
		Location:     location,
		Date:         date,
		InitialSOC:   t.InitialSOC,
		FinalSOC:     t.FinalSOC,
		ChargedWh:    t.TotalChargePower,
		DischargedWh: t.TotalDischargePower,
		Duration:     time.Since(started),
	})
	return res, nil
}

func (s *Service) simulationBattery() (*battery.Battery, error) {
	if s.cfg.Simulation.FromLive {
		return s.ctrl.Clone().Battery(), nil
	}
	cfg := s.cfg.Battery
	cfg.InitialSOC = s.cfg.Simulation.InitialSOC
	return battery.New(cfg)
}

func (s *Service) latestReading(location string) (coremqtt.ProductionReading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.production[location]
	return r, ok
}

// RecordProduction stores a production reading for the live loop.
func (s *Service) RecordProduction(r coremqtt.ProductionReading) {
	if r.Location == "" {
		r.Location = s.ctrl.Location()
	}
	s.mu.Lock()
	s.production[r.Location] = r
	s.mu.Unlock()
}

// productionFor returns the production of the hour containing now: the
// latest reading when it was taken during that hour, otherwise the forecast
// for the hour. This is the same hourly figure plans and simulations feed to
// the rate policy.
func (s *Service) productionFor(now time.Time) (float64, error) {
	loc := s.ctrl.Location()
	hour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	if r, ok := s.latestReading(loc); ok && !r.Timestamp.Before(hour) && r.Timestamp.Before(hour.Add(time.Hour)) {
		return r.ProductionWh, nil
	}
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	s.mu.Lock()
	cached := s.forecast
	s.mu.Unlock()
	if !cached.day.Equal(day) {
		fc, err := s.engine.PredictDay(loc, day, s.cfg.Service.AvgWindSpeed)
		if err != nil {
			return 0, err
		}
		byHour, err := model.ValidateDay(fc)
		if err != nil {
			return 0, err
		}
		cached = dayForecast{day: day, hourly: make([]float64, model.HoursPerDay)}
		for h, f := range byHour {
			cached.hourly[h] = f.PowerProductionWh
		}
		s.mu.Lock()
		s.forecast = cached
		s.mu.Unlock()
	}
	return cached.hourly[now.Hour()], nil
}

// Tick runs one control step of the live battery at now.
func (s *Service) Tick(now time.Time) (battery.StepResult, error) {
	prod, err := s.productionFor(now)
	if err != nil {
		return battery.StepResult{}, fmt.Errorf("production: %w", err)
	}
	night := model.IsNighttime(now.Hour(), s.cfg.Scheduler.DayStartHour, s.cfg.Scheduler.DayEndHour)
	minutes := s.cfg.Service.TickInterval.Minutes()
	s.ctrl.SetPolicy(s.policy.ForMonth(now.Month()))
	res, err := s.ctrl.Auto(prod, night, minutes)
	if err != nil {
		return res, err
	}
	st := s.ctrl.Status()
	s.log.Debugw("tick", map[string]any{
		"production_wh": math.Round(prod),
		"nighttime":     night,
		"state":         st.Phase.String(),
		"soc":           st.SOC,
	})
	return res, nil
}

// Run restores the live battery, starts the metrics pipeline and the
// production feed, then ticks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ok, err := s.ctrl.Restore(); err != nil {
		s.log.Warnf("restore state: %v", err)
	} else if ok {
		s.log.Infof("live battery restored from store")
	}

	done := metrics.StartEventCollector(ctx, s.bus, s.sink)
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		monitoring.Go(func() {
			if err := metrics.StartPromServer(ctx, addr, nil); err != nil {
				s.log.Errorf("prom server: %v", err)
				monitoring.CaptureException(err, map[string]string{"module": "prometheus"})
			}
		})
	}
	if s.client != nil {
		if err := s.client.SubscribeProduction(s.ctrl.Location(), s.RecordProduction); err != nil {
			s.log.Errorf("production feed: %v", err)
		}
	}

	ticker := time.NewTicker(s.cfg.Service.TickInterval)
	defer ticker.Stop()
	s.log.Infof("controlling %s every %s", s.ctrl.Location(), s.cfg.Service.TickInterval)
	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case <-ticker.C:
			if _, err := s.Tick(s.now()); err != nil {
				s.log.Errorf("tick: %v", err)
				monitoring.CaptureException(err, map[string]string{"location": s.ctrl.Location()})
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.client != nil {
		s.client.Disconnect()
	}
	if c, ok := s.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	s.bus.Close()
	monitoring.Flush(2 * time.Second)
	return errors.Join(errs...)
}
