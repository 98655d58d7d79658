package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Data         DataConfig         `yaml:"data"`
	Filter       FilterDefaults     `yaml:"filter"`
	Calibration  CalibrationConfig  `yaml:"calibration"`
	Display      DisplayConfig      `yaml:"display"`
	Prometheus   PrometheusConfig   `yaml:"prometheus"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	VersionCheck VersionCheckConfig `yaml:"version_check"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Listen     string `yaml:"listen"`
	EnableCORS bool   `yaml:"enable_cors"`
	StaticDir  string `yaml:"static_dir"`
}

// DataConfig describes where capture CSV files live
type DataConfig struct {
	Dir      string `yaml:"dir"`       // directory scanned for *.csv captures
	AutoLoad string `yaml:"auto_load"` // optional file loaded at startup
}

// FilterDefaults are the initial low-pass filter parameters offered to the UI
type FilterDefaults struct {
	Enabled  bool    `yaml:"enabled"`
	CutoffHz float64 `yaml:"cutoff_hz"`
	Order    int     `yaml:"order"`
}

// CalibrationConfig holds the soil moisture probe reference readings.
// Dry must be strictly greater than Wet: the probe reads high in dry soil
// and low in water.
type CalibrationConfig struct {
	DryVoltage float64 `yaml:"dry_voltage"`
	WetVoltage float64 `yaml:"wet_voltage"`
}

// DisplayConfig contains rendering defaults
type DisplayConfig struct {
	Mode               string `yaml:"mode"`                 // initial display mode
	RollingWindow      int    `yaml:"rolling_window"`       // rolling mean/sigma window in samples
	TimeOfDayBucketSec int    `yaml:"time_of_day_bucket_s"` // 24h-average bucket width in seconds
	PanelWidth         int    `yaml:"panel_width"`          // rendered panel width in pixels
	PanelHeight        int    `yaml:"panel_height"`         // rendered panel height in pixels
	WarmupTrim         bool   `yaml:"warmup_trim"`          // drop the noisy start of long captures
}

// PrometheusConfig contains metrics exposure settings
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MQTTConfig contains dataset publisher settings
type MQTTConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Broker          string        `yaml:"broker"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	TopicPrefix     string        `yaml:"topic_prefix"`
	PublishInterval int           `yaml:"publish_interval"` // metric publish interval in seconds
	TLS             MQTTTLSConfig `yaml:"tls"`
}

// MQTTTLSConfig contains TLS settings for the MQTT connection
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	Insecure   bool   `yaml:"insecure"`
}

// VersionCheckConfig controls the periodic GitHub release check
type VersionCheckConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

// LoggingConfig contains HTTP access logging settings
type LoggingConfig struct {
	AccessLogEnabled bool   `yaml:"access_log_enabled"`
	AccessLogFile    string `yaml:"access_log_file"`
}

// LoadConfig reads and parses the configuration file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills zero values with working defaults so a minimal
// config file is enough to start the server
func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8090"
	}
	if c.Server.StaticDir == "" {
		c.Server.StaticDir = "static"
	}
	if c.Data.Dir == "" {
		c.Data.Dir = "data"
	}
	if c.Filter.CutoffHz == 0 {
		c.Filter.CutoffHz = 0.1
	}
	if c.Filter.Order == 0 {
		c.Filter.Order = 4
	}
	if c.Calibration.DryVoltage == 0 {
		c.Calibration.DryVoltage = 3.3
	}
	if c.Calibration.WetVoltage == 0 {
		c.Calibration.WetVoltage = 0.5
	}
	if c.Display.Mode == "" {
		c.Display.Mode = string(ModeClassic)
	}
	if c.Display.RollingWindow == 0 {
		c.Display.RollingWindow = 600 // ~10 minutes at 1 Hz capture rate
	}
	if c.Display.TimeOfDayBucketSec == 0 {
		c.Display.TimeOfDayBucketSec = 10
	}
	if c.Display.PanelWidth == 0 {
		c.Display.PanelWidth = 1024
	}
	if c.Display.PanelHeight == 0 {
		c.Display.PanelHeight = 320
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "phytoview"
	}
	if c.MQTT.PublishInterval == 0 {
		c.MQTT.PublishInterval = 60
	}
	if c.VersionCheck.IntervalMinutes == 0 {
		c.VersionCheck.IntervalMinutes = 60
	}
	if c.Logging.AccessLogFile == "" {
		c.Logging.AccessLogFile = "access.log"
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.Filter.CutoffHz <= 0 {
		return fmt.Errorf("filter.cutoff_hz must be greater than 0")
	}
	if c.Filter.Order < 1 {
		return fmt.Errorf("filter.order must be at least 1")
	}
	if c.Calibration.DryVoltage <= c.Calibration.WetVoltage {
		return fmt.Errorf("calibration.dry_voltage must be greater than calibration.wet_voltage")
	}
	if _, err := ParseDisplayMode(c.Display.Mode); err != nil {
		return fmt.Errorf("display.mode: %w", err)
	}
	if c.Display.RollingWindow < 1 {
		return fmt.Errorf("display.rolling_window must be at least 1")
	}
	if c.Display.TimeOfDayBucketSec < 1 || c.Display.TimeOfDayBucketSec > 86400 {
		return fmt.Errorf("display.time_of_day_bucket_s must be between 1 and 86400")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// DefaultParams builds the initial render parameter bundle from the
// configuration. StartDate/EndDate are zero so the first render covers the
// whole file.
func (c *Config) DefaultParams() RenderParams {
	return RenderParams{
		Mode: DisplayMode(c.Display.Mode),
		Filter: FilterConfig{
			Enabled:  c.Filter.Enabled,
			CutoffHz: c.Filter.CutoffHz,
			Order:    c.Filter.Order,
		},
		Calibration: CalibrationConstants{
			DryVoltage: c.Calibration.DryVoltage,
			WetVoltage: c.Calibration.WetVoltage,
		},
		RollingWindow: c.Display.RollingWindow,
		Bucket:        time.Duration(c.Display.TimeOfDayBucketSec) * time.Second,
		BucketSec:     c.Display.TimeOfDayBucketSec,
	}
}
