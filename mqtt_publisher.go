package main

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MQTTPublisher pushes dataset summaries and application metrics to a
// broker so captures can be watched remotely
type MQTTPublisher struct {
	config MQTTConfig
	shell  *AppShell
	client mqtt.Client

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

func NewMQTTPublisher(config MQTTConfig, shell *AppShell) *MQTTPublisher {
	return &MQTTPublisher{
		config: config,
		shell:  shell,
	}
}

// Start connects to the broker and begins the periodic metrics publish
// loop. Connection failures are retried by paho's auto-reconnect.
func (m *MQTTPublisher) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.config.Broker)
	opts.SetClientID("phytoview-" + uuid.New().String()[:8])
	if m.config.Username != "" {
		opts.SetUsername(m.config.Username)
		opts.SetPassword(m.config.Password)
	}
	if m.config.TLS.Enabled {
		tlsConfig, err := m.buildTLSConfig()
		if err != nil {
			return err
		}
		opts.SetTLSConfig(tlsConfig)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Printf("MQTT connected to %s", m.config.Broker)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})

	m.client = mqtt.NewClient(opts)
	if token := m.client.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	m.stopChan = make(chan struct{})
	m.running = true
	go m.metricsLoop(m.stopChan)
	return nil
}

func (m *MQTTPublisher) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: m.config.TLS.Insecure}
	if m.config.TLS.CACert != "" {
		pem, err := os.ReadFile(m.config.TLS.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no valid certificates in %s", m.config.TLS.CACert)
		}
		tlsConfig.RootCAs = pool
	}
	if m.config.TLS.ClientCert != "" && m.config.TLS.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(m.config.TLS.ClientCert, m.config.TLS.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func (m *MQTTPublisher) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.stopChan)
	m.client.Disconnect(250)
	m.running = false
}

// PublishEvent sends a dataset summary whenever a file is loaded or
// re-rendered
func (m *MQTTPublisher) PublishEvent(ev ShellEvent) {
	m.mu.Lock()
	client := m.client
	running := m.running
	m.mu.Unlock()
	if !running || client == nil || !client.IsConnected() {
		return
	}

	payload := map[string]interface{}{
		"event":     ev,
		"status":    m.shell.Status(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if d := m.shell.Dataset(); d != nil {
		payload["summaries"] = SummarizeDataset(d)
	}
	m.publishJSON(m.config.TopicPrefix+"/dataset", payload)
}

func (m *MQTTPublisher) metricsLoop(stop chan struct{}) {
	interval := time.Duration(m.config.PublishInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.publishMetrics()
		}
	}
}

// publishMetrics gathers the registered Prometheus metrics and forwards
// the application's own families as a flat JSON map
func (m *MQTTPublisher) publishMetrics() {
	if !m.client.IsConnected() {
		return
	}
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		log.Printf("MQTT metrics gather failed: %v", err)
		return
	}
	values := make(map[string]float64)
	for _, mf := range families {
		name := mf.GetName()
		if len(name) < 10 || name[:10] != "phytoview_" {
			continue
		}
		for _, metric := range mf.Metric {
			key := name
			for _, lp := range metric.GetLabel() {
				key += "." + lp.GetValue()
			}
			values[key] = metricValue(mf.GetType(), metric)
		}
	}
	m.publishJSON(m.config.TopicPrefix+"/metrics", map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"metrics":   values,
	})
}

func metricValue(t dto.MetricType, metric *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return metric.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return metric.GetGauge().GetValue()
	case dto.MetricType_HISTOGRAM:
		return metric.GetHistogram().GetSampleSum()
	}
	return 0
}

func (m *MQTTPublisher) publishJSON(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("MQTT marshal failed for %s: %v", topic, err)
		return
	}
	token := m.client.Publish(topic, 0, false, payload)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		metricMQTTErrors.Inc()
		log.Printf("MQTT publish to %s failed: %v", topic, token.Error())
		return
	}
	metricMQTTPublishes.Inc()
	if DebugMode {
		log.Printf("MQTT published %d bytes to %s", len(payload), topic)
	}
}
