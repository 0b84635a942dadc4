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

// Package metrics exposes the service counters and the per-device
// sensor gauges. Sensor gauges are not set imperatively; they are
// collected on scrape from the latest snapshot, so a device missing
// from a cycle vanishes from the exposition instead of going stale.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanCyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bleconnect",
		Name:      "scan_cycles_total",
		Help:      "Number of completed scan cycles",
	})
	scanOverrunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bleconnect",
		Name:      "scan_overruns_total",
		Help:      "Number of scan cycles that took longer than the scan interval",
	})
	scanCycleDurationSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bleconnect",
		Name:      "scan_cycle_duration_seconds",
		Help:      "Wall time of the most recent scan cycle including processing",
	})
	devicesSeen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bleconnect",
		Name:      "devices_seen",
		Help:      "Number of tracked devices seen in the most recent scan cycle",
	})
	decodeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bleconnect",
		Name:      "decode_failures_total",
		Help:      "Number of advertisements from tracked devices that could not be decoded",
	}, []string{"reason"})
)

// RecordCycle counts one completed scan cycle, how long it took and how
// many tracked devices produced a decoded reading.
func RecordCycle(duration time.Duration, seen int) {
	scanCyclesTotal.Inc()
	scanCycleDurationSeconds.Set(duration.Seconds())
	devicesSeen.Set(float64(seen))
}

// RecordDecodeFailure counts one undecodable advertisement by failure
// reason.
func RecordDecodeFailure(reason string) {
	decodeFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordOverrun counts a cycle that overran the scan interval.
func RecordOverrun() {
	scanOverrunsTotal.Inc()
}
