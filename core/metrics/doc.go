// Package metrics defines the sinks that record battery observations. Sinks
// like PromSink and InfluxSink record state snapshots, phase transitions,
// schedules and simulations and can be combined with NewMultiSink. Optional
// recorder interfaces are detected with type assertions so a sink only
// implements what it can store.
package metrics
