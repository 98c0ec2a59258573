package mqtt

import (
	"fmt"
	"sync"

	"github.com/kilianp07/ess/core/battery"
	coremqtt "github.com/kilianp07/ess/core/mqtt"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

// MockPublisher is an in-memory Client used in tests and when no broker is
// configured.
type MockPublisher struct {
	Messages map[string][]battery.Snapshot
	FailLocs map[string]bool
	subs     map[string]func(coremqtt.ProductionReading)
	mu       sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Messages: make(map[string][]battery.Snapshot),
		FailLocs: make(map[string]bool),
		subs:     make(map[string]func(coremqtt.ProductionReading)),
	}
}

// PublishStatus records the snapshot or fails if configured to.
func (m *MockPublisher) PublishStatus(location string, snap battery.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLocs[location] {
		return fmt.Errorf("publish failed")
	}
	m.Messages[location] = append(m.Messages[location], snap)
	return nil
}

// SubscribeProduction registers fn for Inject calls on location.
func (m *MockPublisher) SubscribeProduction(location string, fn func(coremqtt.ProductionReading)) error {
	m.mu.Lock()
	m.subs[location] = fn
	m.mu.Unlock()
	return nil
}

// Inject delivers a reading as if it came from the broker.
func (m *MockPublisher) Inject(r coremqtt.ProductionReading) {
	m.mu.Lock()
	fn := m.subs[r.Location]
	m.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

// Published returns the snapshots recorded for location.
func (m *MockPublisher) Published(location string) []battery.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]battery.Snapshot(nil), m.Messages[location]...)
}

func (m *MockPublisher) Disconnect() {}
