package control

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/ess/core/battery"
	"github.com/kilianp07/ess/core/events"
	"github.com/kilianp07/ess/core/logger"
	"github.com/kilianp07/ess/core/monitoring"
	"github.com/kilianp07/ess/core/rate"
	"github.com/kilianp07/ess/core/statestore"
	"github.com/kilianp07/ess/internal/eventbus"
)

// StatusPublisher sends committed snapshots to an external channel.
type StatusPublisher interface {
	PublishStatus(location string, snap battery.Snapshot) error
}

// Controller serialises access to the live battery machine.
type Controller struct {
	location string

	mu sync.Mutex
	m  *battery.Machine
	// seq numbers commits; guarded by mu.
	seq uint64

	// turn is the next commit allowed to run its side effects.
	turnMu sync.Mutex
	turnCV *sync.Cond
	turn   uint64

	status atomic.Pointer[battery.Snapshot]

	bus   eventbus.EventBus
	store statestore.Store
	pub   StatusPublisher
	log   logger.Logger
	now   func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

func WithEventBus(b eventbus.EventBus) Option { return func(c *Controller) { c.bus = b } }
func WithStore(s statestore.Store) Option     { return func(c *Controller) { c.store = s } }
func WithPublisher(p StatusPublisher) Option  { return func(c *Controller) { c.pub = p } }
func WithLogger(l logger.Logger) Option       { return func(c *Controller) { c.log = l } }
func WithClock(now func() time.Time) Option   { return func(c *Controller) { c.now = now } }

// New wraps m. The controller takes ownership of the machine.
func New(location string, m *battery.Machine, opts ...Option) *Controller {
	c := &Controller{location: location, m: m, log: nopLogger{}, now: time.Now}
	c.turnCV = sync.NewCond(&c.turnMu)
	for _, o := range opts {
		o(c)
	}
	snap := m.Snapshot()
	c.status.Store(&snap)
	return c
}

// Location returns the site the live battery belongs to.
func (c *Controller) Location() string { return c.location }

// Status returns the last committed snapshot.
func (c *Controller) Status() battery.Snapshot {
	return *c.status.Load()
}

// Clone returns an independent machine copied from the live one.
func (c *Controller) Clone(opts ...battery.MachineOption) *battery.Machine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.Clone(opts...)
}

// SetPolicy replaces the rate policy of the live machine.
func (c *Controller) SetPolicy(p rate.Policy) {
	c.mu.Lock()
	c.m.SetPolicy(p)
	c.mu.Unlock()
}

// Restore loads the last saved snapshot for the location. It reports false
// when there is no store or nothing was saved.
func (c *Controller) Restore() (bool, error) {
	if c.store == nil {
		return false, nil
	}
	rec, ok, err := c.store.Load(c.location)
	if err != nil || !ok {
		return false, err
	}
	c.mu.Lock()
	if err := c.m.Battery().Restore(rec.Snapshot); err != nil {
		c.mu.Unlock()
		return false, err
	}
	snap := c.m.Snapshot()
	c.status.Store(&snap)
	c.mu.Unlock()
	c.log.Infof("restored %s battery at %.2f%% in %s", c.location, snap.SOC, snap.Phase)
	return true, nil
}

// StartCharge starts constant-current charging.
func (c *Controller) StartCharge(productionWh float64) (battery.Outcome, error) {
	return c.command("start charge", func() (battery.Outcome, error) {
		return c.m.StartCharge(productionWh)
	})
}

// StartDischarge starts discharging into the load.
func (c *Controller) StartDischarge(productionWh float64, isNighttime bool) (battery.Outcome, error) {
	return c.command("start discharge", func() (battery.Outcome, error) {
		return c.m.StartDischarge(productionWh, isNighttime)
	})
}

// Stop ends the active phase and starts the rest period.
func (c *Controller) Stop() (battery.Outcome, error) {
	return c.command("stop", c.m.Stop)
}

// Step advances the live battery by minutes.
func (c *Controller) Step(minutes float64) (battery.StepResult, error) {
	return c.step(func() (battery.StepResult, error) { return c.m.Step(minutes) })
}

// Auto runs one control tick on the live battery.
func (c *Controller) Auto(productionWh float64, isNighttime bool, minutes float64) (battery.StepResult, error) {
	return c.step(func() (battery.StepResult, error) {
		return c.m.Auto(productionWh, isNighttime, minutes)
	})
}

func (c *Controller) command(reason string, fn func() (battery.Outcome, error)) (battery.Outcome, error) {
	c.mu.Lock()
	from := c.m.Phase()
	out, err := fn()
	if err != nil {
		c.mu.Unlock()
		return out, err
	}
	var ts []battery.Transition
	if out.Phase != from {
		ts = append(ts, battery.Transition{From: from, To: out.Phase, Reason: reason})
	}
	c.commit(ts)
	return out, nil
}

func (c *Controller) step(fn func() (battery.StepResult, error)) (battery.StepResult, error) {
	c.mu.Lock()
	res, err := fn()
	if err != nil {
		// validation failures leave the battery untouched
		c.mu.Unlock()
		return res, err
	}
	c.commit(res.Transitions)
	return res, nil
}

// commit must be called with mu held and releases it. Side effects run after
// the release, one commit at a time in sequence order.
func (c *Controller) commit(ts []battery.Transition) {
	snap := c.m.Snapshot()
	c.status.Store(&snap)
	at := c.now()
	seq := c.seq
	c.seq++
	c.mu.Unlock()

	c.turnMu.Lock()
	for c.turn != seq {
		c.turnCV.Wait()
	}
	c.turnMu.Unlock()
	defer func() {
		c.turnMu.Lock()
		c.turn++
		c.turnCV.Broadcast()
		c.turnMu.Unlock()
	}()
	c.publish(snap, ts, at)
}

func (c *Controller) publish(snap battery.Snapshot, ts []battery.Transition, at time.Time) {
	for _, t := range ts {
		c.log.Infof("%s: %s -> %s (%s)", c.location, t.From, t.To, t.Reason)
		if c.bus != nil {
			c.bus.Publish(events.PhaseEvent{
				Location: c.location,
				From:     t.From,
				To:       t.To,
				Reason:   t.Reason,
				At:       at.Add(time.Duration(t.AtMinute * float64(time.Minute))),
			})
		}
	}
	if c.bus != nil {
		c.bus.Publish(events.StateEvent{Location: c.location, Snapshot: snap, At: at})
	}
	tags := map[string]string{"location": c.location}
	if c.store != nil {
		if err := c.store.Save(statestore.Record{Location: c.location, Snapshot: snap, UpdatedAt: at}); err != nil {
			c.log.Errorf("persist state: %v", err)
			monitoring.CaptureException(err, tags)
		}
	}
	if c.pub != nil {
		if err := c.pub.PublishStatus(c.location, snap); err != nil {
			c.log.Warnf("publish status: %v", err)
		}
	}
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)               {}
func (nopLogger) Debugw(string, map[string]any)       {}
func (nopLogger) Infof(string, ...any)                {}
func (nopLogger) Warnf(string, ...any)                {}
func (nopLogger) Errorf(string, ...any)               {}
func (n nopLogger) With(map[string]any) logger.Logger { return n }
