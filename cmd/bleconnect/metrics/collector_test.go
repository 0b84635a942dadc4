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
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/store"
	"github.com/united-manufacturing-hub/bleconnect/pkg/bthome"
)

func floatPtr(v float64) *float64 {
	return &v
}

func TestDeviceCollectorExposesSnapshot(t *testing.T) {
	st := store.New()
	st.Replace(&store.Snapshot{Devices: map[string]store.DeviceRecord{
		"livingroom": {
			Name:    "livingroom",
			Address: "AA:BB:CC:DD:EE:01",
			Reading: bthome.Reading{
				Temperature: floatPtr(24.04),
				Humidity:    floatPtr(65.32),
				Battery:     floatPtr(100),
			},
			ObservedAt: time.Unix(1716480000, 0),
		},
	}})

	expected := `
# HELP ble_sensor_battery_percent Battery level in percent
# TYPE ble_sensor_battery_percent gauge
ble_sensor_battery_percent{device="livingroom"} 100
# HELP ble_sensor_humidity_percent Relative humidity reading in percent
# TYPE ble_sensor_humidity_percent gauge
ble_sensor_humidity_percent{device="livingroom"} 65.32
# HELP ble_sensor_last_update_timestamp_seconds Unix timestamp of last sensor update
# TYPE ble_sensor_last_update_timestamp_seconds gauge
ble_sensor_last_update_timestamp_seconds{device="livingroom"} 1716480000
# HELP ble_sensor_seen Constant value 1 indicating device was seen in latest scan
# TYPE ble_sensor_seen gauge
ble_sensor_seen{device="livingroom"} 1
# HELP ble_sensor_temperature_celsius Temperature reading in Celsius
# TYPE ble_sensor_temperature_celsius gauge
ble_sensor_temperature_celsius{device="livingroom"} 24.04
`
	err := testutil.CollectAndCompare(NewDeviceCollector(st), strings.NewReader(expected))
	require.NoError(t, err)
}

func TestDeviceCollectorSkipsAbsentMeasurements(t *testing.T) {
	st := store.New()
	st.Replace(&store.Snapshot{Devices: map[string]store.DeviceRecord{
		"cellar": {
			Name:       "cellar",
			Reading:    bthome.Reading{Temperature: floatPtr(4.2)},
			ObservedAt: time.Unix(1716480000, 0),
		},
	}})

	expected := `
# HELP ble_sensor_seen Constant value 1 indicating device was seen in latest scan
# TYPE ble_sensor_seen gauge
ble_sensor_seen{device="cellar"} 1
# HELP ble_sensor_temperature_celsius Temperature reading in Celsius
# TYPE ble_sensor_temperature_celsius gauge
ble_sensor_temperature_celsius{device="cellar"} 4.2
`
	err := testutil.CollectAndCompare(NewDeviceCollector(st), strings.NewReader(expected),
		"ble_sensor_temperature_celsius",
		"ble_sensor_humidity_percent",
		"ble_sensor_battery_percent",
		"ble_sensor_seen")
	require.NoError(t, err)
}

func TestDeviceCollectorDropsDevicesMissingFromCycle(t *testing.T) {
	st := store.New()
	st.Replace(&store.Snapshot{Devices: map[string]store.DeviceRecord{
		"livingroom": {Name: "livingroom", Reading: bthome.Reading{Temperature: floatPtr(24.04)}},
		"cellar":     {Name: "cellar", Reading: bthome.Reading{Temperature: floatPtr(4.2)}},
	}})
	st.Replace(&store.Snapshot{Devices: map[string]store.DeviceRecord{
		"livingroom": {Name: "livingroom", Reading: bthome.Reading{Temperature: floatPtr(23.9)}},
	}})

	expected := `
# HELP ble_sensor_temperature_celsius Temperature reading in Celsius
# TYPE ble_sensor_temperature_celsius gauge
ble_sensor_temperature_celsius{device="livingroom"} 23.9
`
	err := testutil.CollectAndCompare(NewDeviceCollector(st), strings.NewReader(expected),
		"ble_sensor_temperature_celsius")
	require.NoError(t, err)
}

func TestDeviceCollectorEmptyStore(t *testing.T) {
	count := testutil.CollectAndCount(NewDeviceCollector(store.New()))
	assert.Equal(t, 0, count)
}
