//go:build integration

package test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ess/app"
	"github.com/kilianp07/ess/config"
	"github.com/kilianp07/ess/core/factory"
	"github.com/kilianp07/ess/core/model"
	coremqtt "github.com/kilianp07/ess/core/mqtt"
	"github.com/kilianp07/ess/test/util"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

// TestServiceWithBroker runs the live loop against a Mosquitto container
// and checks that the first commanded tick reaches the broker and the
// /metrics endpoint.
func TestServiceWithBroker(t *testing.T) {
	util.RequireDocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto: %v", err)
	}
	defer cleanup()

	cfg := config.Default()
	cfg.Battery.InitialSOC = 50
	cfg.Service.TickInterval = time.Second
	cfg.MQTT.Broker = broker
	cfg.MQTT.ClientID = "ess-e2e"
	cfg.MQTT.TopicPrefix = "e2e"
	cfg.MQTT.SetDefaults()
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "prometheus"}}
	cfg.Metrics.PrometheusAddr = freeAddr(t)
	require.NoError(t, cfg.Validate())

	svc, err := app.New(cfg)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	site := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("site-e2e"))
	token := site.Connect()
	token.Wait()
	require.NoError(t, token.Error())
	defer site.Disconnect(100)

	statuses := make(chan coremqtt.StatusMessage, 16)
	token = site.Subscribe(cfg.MQTT.StatusTopic(cfg.Service.Location), 1, func(_ paho.Client, m paho.Message) {
		var msg coremqtt.StatusMessage
		if json.Unmarshal(m.Payload(), &msg) == nil {
			statuses <- msg
		}
	})
	token.Wait()
	require.NoError(t, token.Error())

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	payload, err := json.Marshal(coremqtt.ProductionReading{ProductionWh: 5000, Timestamp: time.Now()})
	require.NoError(t, err)
	// Retained so the reading survives until the service subscribes.
	token = site.Publish(cfg.MQTT.ProductionTopic(cfg.Service.Location), 1, true, payload)
	token.Wait()
	require.NoError(t, token.Error())

	select {
	case msg := <-statuses:
		assert.Equal(t, cfg.Service.Location, msg.Location)
		assert.NotEmpty(t, msg.MessageID)
		assert.NotEqual(t, model.PhaseIdle, msg.Status.Phase)
	case <-ctx.Done():
		t.Fatal("no status published")
	}

	metricCtx, metricCancel := context.WithTimeout(ctx, util.MetricTimeout)
	defer metricCancel()
	require.NoError(t, util.WaitForMetric(metricCtx, "http://"+cfg.Metrics.PrometheusAddr+"/metrics", "ess_phase_transitions_total"))

	stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}
