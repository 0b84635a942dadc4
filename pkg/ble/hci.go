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

package ble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// bthomeServiceUUID is the 16-bit service data UUID sensor beacons
// broadcast their measurements under.
var bthomeServiceUUID = bluetooth.New16BitUUID(0xFCD2)

// HCIScanner reads advertisements from the host bluetooth radio.
type HCIScanner struct {
	adapter *bluetooth.Adapter
}

// NewHCIScanner opens and enables the default host adapter.
func NewHCIScanner() (*HCIScanner, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrAdapterUnavailable, err.Error())
	}
	return &HCIScanner{adapter: adapter}, nil
}

// Scan listens for advertisements until the window elapses or ctx is
// cancelled, whichever comes first. Advertisements without measurement
// service data are dropped here so callers only ever see candidate
// payloads.
func (s *HCIScanner) Scan(ctx context.Context, window time.Duration) ([]Observation, error) {
	var (
		mu           sync.Mutex
		observations []Observation
	)

	stopTimer := time.AfterFunc(window, func() {
		_ = s.adapter.StopScan()
	})
	defer stopTimer.Stop()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		<-watchCtx.Done()
		_ = s.adapter.StopScan()
	}()

	err := s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		payload := measurementPayload(result)
		if payload == nil {
			return
		}
		mu.Lock()
		observations = append(observations, Observation{
			Address:   result.Address.String(),
			LocalName: result.LocalName(),
			RSSI:      result.RSSI,
			Payload:   payload,
		})
		mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrScanFailed, err.Error())
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	return observations, nil
}

// Close releases the radio. The tinygo adapter has no teardown call, so
// this only makes sure no scan is left running.
func (s *HCIScanner) Close() error {
	_ = s.adapter.StopScan()
	return nil
}

// measurementPayload pulls the measurement bytes out of a scan result,
// or nil when the advertisement carries none. The first service data
// byte is the device information flags, which the field walk must not
// see, so it is stripped here.
func measurementPayload(result bluetooth.ScanResult) []byte {
	for _, sd := range result.ServiceData() {
		if sd.UUID != bthomeServiceUUID {
			continue
		}
		if len(sd.Data) < 1 {
			return nil
		}
		payload := make([]byte, len(sd.Data)-1)
		copy(payload, sd.Data[1:])
		return payload
	}
	return nil
}
