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

package worker

import (
	"fmt"
	"strings"
	"time"

	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/metrics"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/store"
	"github.com/united-manufacturing-hub/bleconnect/internal"
	"github.com/united-manufacturing-hub/bleconnect/pkg/ble"
	"github.com/united-manufacturing-hub/bleconnect/pkg/bthome"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

// cycleResult is everything one scan window produced after filtering,
// decoding and merging.
type cycleResult struct {
	devices map[string]store.DeviceRecord
	// tracked counts only observations from registered devices.
	tracked        int
	decodeFailures int
}

// aggregate reduces the raw observations of one window to at most one
// record per configured device name. Observations from unregistered
// devices are dropped without a log line. Within a name, later
// advertisements overwrite the fields of earlier ones; two addresses
// configured under the same name (a replaced beacon kept under its old
// alias) merge into that name's record. A beacon none of whose
// advertisements decoded gets one summary warning naming its address.
func aggregate(observations []ble.Observation, registry *Registry, observedAt time.Time) cycleResult {
	result := cycleResult{devices: make(map[string]store.DeviceRecord)}
	packets := make(map[string]int)
	names := make(map[string]string)
	decoded := make(map[string]bool)

	for _, obs := range observations {
		name, tracked := registry.Resolve(obs.Address)
		if !tracked {
			continue
		}
		result.tracked++
		address := strings.ToUpper(obs.Address)
		packets[address]++
		names[address] = name

		reading, err := bthome.Decode(obs.Payload)
		if err != nil {
			result.decodeFailures++
			metrics.RecordDecodeFailure(bthome.FailureReason(err))
			warnDecodeFailure(obs, name, err)
			continue
		}
		decoded[address] = true

		record, seen := result.devices[name]
		if !seen {
			record = store.DeviceRecord{Name: name, ObservedAt: observedAt}
		}
		record.Reading.Merge(reading)
		record.Address = address
		record.RSSI = obs.RSSI
		result.devices[name] = record
	}

	for address, count := range packets {
		if decoded[address] {
			continue
		}
		zap.S().Warnf(
			"All %d advertisements from %s (%s) failed to decode in this scan window",
			count, address, names[address])
	}

	for name, record := range result.devices {
		if record.Reading.Battery == nil && record.Reading.Voltage != nil {
			battery := bthome.BatteryFromVoltage(*record.Reading.Voltage)
			record.Reading.Battery = &battery
		}
		// Voltage only feeds the battery estimate and is not exposed.
		record.Reading.Voltage = nil
		result.devices[name] = record
	}

	return result
}

// warnDecodeFailure logs one warning per device and payload within the
// cache window, so a beacon stuck on a bad firmware build does not
// flood the log at advertising rate.
func warnDecodeFailure(obs ble.Observation, name string, err error) {
	cacheKey := fmt.Sprintf("decodewarn%s%X", obs.Address, xxh3.Hash(obs.Payload))
	_, reported := internal.GetMemcached(cacheKey)
	if reported {
		return
	}
	internal.SetMemcached(cacheKey, true)
	zap.S().Warnf("Failed to decode advertisement from %s (%s): %s", obs.Address, name, err.Error())
}
