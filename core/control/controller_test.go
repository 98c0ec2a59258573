package control

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ess/core/battery"
	"github.com/kilianp07/ess/core/events"
	"github.com/kilianp07/ess/core/model"
	"github.com/kilianp07/ess/core/rate"
	"github.com/kilianp07/ess/core/statestore"
	"github.com/kilianp07/ess/internal/eventbus"
)

type recordPublisher struct {
	mu    sync.Mutex
	snaps []battery.Snapshot
	err   error
}

func (r *recordPublisher) PublishStatus(_ string, s battery.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return r.err
}

func newController(t *testing.T, soc float64, opts ...Option) *Controller {
	t.Helper()
	cfg := battery.DefaultConfig()
	cfg.InitialSOC = soc
	b, err := battery.New(cfg)
	require.NoError(t, err)
	return New("forest", battery.NewMachine(b, rate.Default()), opts...)
}

func TestControllerCommandPublishes(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe()
	store := statestore.NewMemoryStore()
	pub := &recordPublisher{}
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c := newController(t, 30, WithEventBus(bus), WithStore(store), WithPublisher(pub), WithClock(func() time.Time { return at }))

	out, err := c.StartCharge(20000)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseChargingCC, out.Phase)
	assert.Equal(t, model.PhaseChargingCC, c.Status().Phase)

	ev := <-sub
	pe, ok := ev.(events.PhaseEvent)
	require.True(t, ok)
	assert.Equal(t, model.PhaseIdle, pe.From)
	assert.Equal(t, model.PhaseChargingCC, pe.To)
	assert.Equal(t, "forest", pe.Location)

	ev = <-sub
	se, ok := ev.(events.StateEvent)
	require.True(t, ok)
	assert.Equal(t, model.PhaseChargingCC, se.Snapshot.Phase)

	rec, ok, err := store.Load("forest")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, at, rec.UpdatedAt)
	require.Len(t, pub.snaps, 1)
}

func TestControllerRejectedCommandLeavesState(t *testing.T) {
	store := statestore.NewMemoryStore()
	c := newController(t, 30, WithStore(store))
	before := c.Status()

	_, err := c.Stop()
	require.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = c.StartCharge(-1)
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = c.Step(0)
	require.ErrorIs(t, err, model.ErrInvalidInput)

	assert.Equal(t, before, c.Status())
	_, ok, _ := store.Load("forest")
	assert.False(t, ok)
}

func TestControllerStepTransitionsTimestamped(t *testing.T) {
	bus := eventbus.NewTypedBuffered[eventbus.Event](16)
	sub := bus.Subscribe()
	at := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	c := newController(t, 25, WithEventBus(bus), WithClock(func() time.Time { return at }))

	_, err := c.StartDischarge(0, true)
	require.NoError(t, err)
	res, err := c.Step(24 * 60)
	require.NoError(t, err)
	require.NotEmpty(t, res.Transitions)

	var phases []events.PhaseEvent
	for len(sub) > 0 {
		if pe, ok := (<-sub).(events.PhaseEvent); ok {
			phases = append(phases, pe)
		}
	}
	require.GreaterOrEqual(t, len(phases), 2)
	floor := phases[1]
	assert.Equal(t, model.PhaseRest, floor.To)
	assert.Equal(t, at.Add(time.Duration(res.Transitions[0].AtMinute*float64(time.Minute))), floor.At)
}

func TestControllerPublisherErrorDoesNotFailCommand(t *testing.T) {
	pub := &recordPublisher{err: errors.New("broker down")}
	c := newController(t, 30, WithPublisher(pub))
	_, err := c.StartCharge(1000)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseChargingCC, c.Status().Phase)
}

func TestControllerConcurrentAccess(t *testing.T) {
	c := newController(t, 50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = c.Auto(5000, (i+j)%2 == 0, 5)
				s := c.Status()
				assert.GreaterOrEqual(t, s.SOC, 0.0)
				assert.LessOrEqual(t, s.SOC, 100.0)
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m := c.Clone()
				_, _ = m.Step(60)
			}
		}()
	}
	wg.Wait()
	s := c.Status()
	assert.GreaterOrEqual(t, s.SOC, battery.DefaultConfig().FloorSOC-1e-9)
}

func TestControllerCloneIsIndependent(t *testing.T) {
	c := newController(t, 40)
	m := c.Clone()
	_, err := m.StartCharge(10000)
	require.NoError(t, err)
	_, err = m.Step(120)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseIdle, c.Status().Phase)
	assert.InDelta(t, 40.0, c.Status().SOC, 1e-9)
}

func TestControllerRestore(t *testing.T) {
	store := statestore.NewMemoryStore()
	first := newController(t, 30, WithStore(store))
	_, err := first.StartDischarge(0, true)
	require.NoError(t, err)
	_, err = first.Step(30)
	require.NoError(t, err)
	want := first.Status()

	second := newController(t, 30, WithStore(store))
	ok, err := second.Restore()
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, want.SOC, second.Status().SOC, 1e-9)
	assert.Equal(t, model.PhaseDischarging, second.Status().Phase)

	empty := newController(t, 30)
	ok, err = empty.Restore()
	require.NoError(t, err)
	assert.False(t, ok)
}

type slowPublisher struct {
	recordPublisher
	delay   time.Duration
	entered chan struct{}
}

func (s *slowPublisher) PublishStatus(loc string, snap battery.Snapshot) error {
	s.entered <- struct{}{}
	time.Sleep(s.delay)
	return s.recordPublisher.PublishStatus(loc, snap)
}

func TestControllerSlowPublisherDoesNotHoldLock(t *testing.T) {
	pub := &slowPublisher{delay: 300 * time.Millisecond, entered: make(chan struct{}, 4)}
	c := newController(t, 50, WithPublisher(pub))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := c.StartCharge(1000)
		assert.NoError(t, err)
	}()
	<-pub.entered

	go func() {
		defer wg.Done()
		_, err := c.Stop()
		assert.NoError(t, err)
	}()
	assert.Eventually(t, func() bool { return c.Status().Phase == model.PhaseRest }, time.Second, 5*time.Millisecond)

	start := time.Now()
	m := c.Clone()
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, model.PhaseRest, m.Phase())

	wg.Wait()
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.snaps, 2)
	assert.Equal(t, model.PhaseChargingCC, pub.snaps[0].Phase)
	assert.Equal(t, model.PhaseRest, pub.snaps[1].Phase)
}

func TestControllerSetPolicy(t *testing.T) {
	c := newController(t, 50)
	cfg := rate.Config{Seasonal: true}
	p, err := rate.NewPolicy(cfg)
	require.NoError(t, err)
	c.SetPolicy(p.ForMonth(time.January))

	out, err := c.StartDischarge(0, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.0932, out.CRate, 1e-12)
}
