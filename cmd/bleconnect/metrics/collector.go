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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/store"
)

type deviceCollector struct {
	store       *store.Store
	temperature *prometheus.Desc
	humidity    *prometheus.Desc
	battery     *prometheus.Desc
	lastUpdate  *prometheus.Desc
	seen        *prometheus.Desc
}

// NewDeviceCollector returns a collector that derives all per-device
// series from the snapshot current at scrape time.
func NewDeviceCollector(st *store.Store) prometheus.Collector {
	return &deviceCollector{
		store: st,
		temperature: prometheus.NewDesc(
			"ble_sensor_temperature_celsius",
			"Temperature reading in Celsius",
			[]string{"device"}, nil),
		humidity: prometheus.NewDesc(
			"ble_sensor_humidity_percent",
			"Relative humidity reading in percent",
			[]string{"device"}, nil),
		battery: prometheus.NewDesc(
			"ble_sensor_battery_percent",
			"Battery level in percent",
			[]string{"device"}, nil),
		lastUpdate: prometheus.NewDesc(
			"ble_sensor_last_update_timestamp_seconds",
			"Unix timestamp of last sensor update",
			[]string{"device"}, nil),
		seen: prometheus.NewDesc(
			"ble_sensor_seen",
			"Constant value 1 indicating device was seen in latest scan",
			[]string{"device"}, nil),
	}
}

func (c *deviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.temperature
	ch <- c.humidity
	ch <- c.battery
	ch <- c.lastUpdate
	ch <- c.seen
}

func (c *deviceCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.store.Snapshot()
	for _, record := range snapshot.Devices {
		if record.Reading.Temperature != nil {
			ch <- prometheus.MustNewConstMetric(
				c.temperature, prometheus.GaugeValue, *record.Reading.Temperature, record.Name)
		}
		if record.Reading.Humidity != nil {
			ch <- prometheus.MustNewConstMetric(
				c.humidity, prometheus.GaugeValue, *record.Reading.Humidity, record.Name)
		}
		if record.Reading.Battery != nil {
			ch <- prometheus.MustNewConstMetric(
				c.battery, prometheus.GaugeValue, *record.Reading.Battery, record.Name)
		}
		ch <- prometheus.MustNewConstMetric(
			c.lastUpdate, prometheus.GaugeValue, float64(record.ObservedAt.Unix()), record.Name)
		ch <- prometheus.MustNewConstMetric(
			c.seen, prometheus.GaugeValue, 1, record.Name)
	}
}
