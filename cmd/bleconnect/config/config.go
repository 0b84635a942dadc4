// Copyright 2023 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the service configuration from a YAML file and
// overlays environment overrides on top, so container deployments can
// tune single values without shipping a new file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/united-manufacturing-hub/umh-utils/env"
	"gopkg.in/yaml.v3"
)

const (
	defaultScanIntervalSeconds = 60
	defaultScanDurationSeconds = 10
	defaultListenPort          = 8000
)

// Config is the full service configuration.
type Config struct {
	// ScanIntervalSeconds is the start-to-start cycle cadence.
	ScanIntervalSeconds int `yaml:"scan_interval_seconds"`
	// ScanDurationSeconds is the listening window inside each cycle. It
	// must be shorter than the interval.
	ScanDurationSeconds int `yaml:"scan_duration_seconds"`
	// ListenPort is where the status and metrics endpoints are served.
	ListenPort int `yaml:"listen_port"`
	// Devices maps beacon MAC addresses to display names. Only listed
	// devices are tracked; everything else on air is ignored.
	Devices map[string]string `yaml:"devices"`
	Mqtt    MqttConfig        `yaml:"mqtt"`
}

// MqttConfig configures the optional reading forwarder. Password is
// never read from the file, only from MQTT_PASSWORD.
type MqttConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BrokerURL string `yaml:"broker_url"`
	BaseTopic string `yaml:"base_topic"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username"`
	Password  string `yaml:"-"`
}

// Load reads the YAML file at path, applies defaults and environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %s", path, err.Error())
	}

	cfg := &Config{
		ScanIntervalSeconds: defaultScanIntervalSeconds,
		ScanDurationSeconds: defaultScanDurationSeconds,
		ListenPort:          defaultListenPort,
	}
	err = yaml.Unmarshal(content, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %s", path, err.Error())
	}

	cfg.ScanIntervalSeconds, err = env.GetAsInt("SCAN_INTERVAL_SECONDS", false, cfg.ScanIntervalSeconds)
	if err != nil {
		return nil, err
	}
	cfg.ScanDurationSeconds, err = env.GetAsInt("SCAN_DURATION_SECONDS", false, cfg.ScanDurationSeconds)
	if err != nil {
		return nil, err
	}
	cfg.ListenPort, err = env.GetAsInt("LISTEN_PORT", false, cfg.ListenPort)
	if err != nil {
		return nil, err
	}
	cfg.Mqtt.Password, err = env.GetAsString("MQTT_PASSWORD", false, cfg.Mqtt.Password)
	if err != nil {
		return nil, err
	}

	// Address matching is case-insensitive, so the map keys are
	// normalized once here instead of on every lookup.
	devices := make(map[string]string, len(cfg.Devices))
	for address, name := range cfg.Devices {
		devices[strings.ToUpper(address)] = name
	}
	cfg.Devices = devices

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the scan loop cannot run on.
func (c *Config) Validate() error {
	if c.ScanIntervalSeconds <= 0 {
		return fmt.Errorf("scan_interval_seconds must be positive, got %d", c.ScanIntervalSeconds)
	}
	if c.ScanDurationSeconds <= 0 {
		return fmt.Errorf("scan_duration_seconds must be positive, got %d", c.ScanDurationSeconds)
	}
	if c.ScanDurationSeconds >= c.ScanIntervalSeconds {
		return fmt.Errorf(
			"scan_duration_seconds (%d) must be shorter than scan_interval_seconds (%d)",
			c.ScanDurationSeconds, c.ScanIntervalSeconds)
	}
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be between 1 and 65535, got %d", c.ListenPort)
	}
	if c.Mqtt.Enabled && c.Mqtt.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url must be set when mqtt is enabled")
	}
	return nil
}

// ScanInterval returns the cycle cadence as a duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

// ScanDuration returns the listening window as a duration.
func (c *Config) ScanDuration() time.Duration {
	return time.Duration(c.ScanDurationSeconds) * time.Second
}
