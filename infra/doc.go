// Package infra groups the adapters behind the core interfaces: the paho
// MQTT client, Prometheus and InfluxDB sinks, the Sentry monitor, the
// zerolog logger and the SQLite state store.
package infra
