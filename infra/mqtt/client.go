package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/ess/core/battery"
	coremon "github.com/kilianp07/ess/core/monitoring"
	coremqtt "github.com/kilianp07/ess/core/mqtt"
	"github.com/kilianp07/ess/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string          `json:"broker"`
	ClientID    string          `json:"client_id"`
	Username    string          `json:"username"`
	Password    string          `json:"password"`
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	Retain      bool            `json:"retain"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// SetDefaults fills optional fields.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "ess"
	}
	if c.ClientID == "" {
		c.ClientID = "ess-" + uuid.NewString()[:8]
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// StatusTopic returns the topic snapshots of location are published on.
func (c Config) StatusTopic(location string) string {
	return fmt.Sprintf("%s/%s/status", strings.TrimSuffix(c.TopicPrefix, "/"), location)
}

// ProductionTopic returns the topic production readings of location arrive on.
func (c Config) ProductionTopic(location string) string {
	return fmt.Sprintf("%s/%s/production", strings.TrimSuffix(c.TopicPrefix, "/"), location)
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient implements the core mqtt Client using Eclipse Paho.
type PahoClient struct {
	cli pahoClient
	cfg Config

	mu     sync.Mutex
	subs   map[string]func(coremqtt.ProductionReading)
	logger logger.Logger
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker. Production subscriptions are
// renewed on every reconnect.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		cfg:    cfg,
		subs:   make(map[string]func(coremqtt.ProductionReading)),
		logger: log,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		pc.mu.Lock()
		locations := make([]string, 0, len(pc.subs))
		for loc := range pc.subs {
			locations = append(locations, loc)
		}
		pc.mu.Unlock()
		for _, loc := range locations {
			if err := pc.subscribe(c, loc); err != nil {
				log.Errorf("subscribe error: %v", err)
			}
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) qos(kind string) byte {
	if q, ok := p.cfg.QoS[kind]; ok {
		return q
	}
	return 0
}

// SubscribeProduction registers fn for production readings of location.
func (p *PahoClient) SubscribeProduction(location string, fn func(coremqtt.ProductionReading)) error {
	p.mu.Lock()
	p.subs[location] = fn
	p.mu.Unlock()
	if p.cli == nil || !p.cli.IsConnected() {
		return nil
	}
	return p.subscribe(p.cli, location)
}

type subscriber interface {
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

func (p *PahoClient) subscribe(c subscriber, location string) error {
	topic := p.cfg.ProductionTopic(location)
	token := c.Subscribe(topic, p.qos("production"), func(_ paho.Client, msg paho.Message) {
		p.onProduction(location, msg)
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	p.logger.Infof("subscribed to %s", topic)
	return nil
}

func (p *PahoClient) onProduction(location string, msg paho.Message) {
	r, err := DecodeReading(msg.Payload())
	if err != nil {
		p.logger.Errorf("failed to decode production reading: %v", err)
		return
	}
	if r.Location == "" {
		r.Location = location
	}
	p.mu.Lock()
	fn := p.subs[location]
	p.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

// DecodeReading parses a production payload. A bare number is accepted as
// the production in Wh.
func DecodeReading(payload []byte) (coremqtt.ProductionReading, error) {
	var r coremqtt.ProductionReading
	if err := json.Unmarshal(payload, &r); err != nil {
		var wh float64
		if err2 := json.Unmarshal(payload, &wh); err2 != nil {
			return r, fmt.Errorf("%w: %v", coremqtt.ErrInvalidReading, err)
		}
		r = coremqtt.ProductionReading{ProductionWh: wh}
	}
	if math.IsNaN(r.ProductionWh) || math.IsInf(r.ProductionWh, 0) || r.ProductionWh < 0 {
		return r, fmt.Errorf("%w: production %v", coremqtt.ErrInvalidReading, r.ProductionWh)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	return r, nil
}

// PublishStatus sends the snapshot to the location status topic, retrying
// with exponential backoff.
func (p *PahoClient) PublishStatus(location string, snap battery.Snapshot) error {
	if p.cli == nil {
		return coremqtt.ErrNotConnected
	}
	msg := coremqtt.StatusMessage{
		MessageID: uuid.NewString(),
		Location:  location,
		Status:    snap,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	topic := p.cfg.StatusTopic(location)
	backoff := time.Duration(p.cfg.BackoffMS) * time.Millisecond
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos("status"), p.cfg.Retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("sent status %s to %s", msg.MessageID, topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.cfg.MaxRetries {
			time.Sleep(backoff * time.Duration(1<<attempt))
		}
	}
	coremon.CaptureException(publishErr, map[string]string{"module": "mqtt", "location": location})
	return publishErr
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

var _ coremqtt.Client = (*PahoClient)(nil)
