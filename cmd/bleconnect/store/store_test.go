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

package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreStartsEmpty(t *testing.T) {
	s := New()
	snap := s.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.DevicesSeen())
	assert.True(t, snap.CompletedAt.IsZero())
}

func TestReplacePublishesNewSnapshot(t *testing.T) {
	s := New()
	now := time.Now()
	s.Replace(&Snapshot{
		CycleStartedAt: now,
		CompletedAt:    now.Add(5 * time.Second),
		WindowDuration: 5 * time.Second,
		Devices: map[string]DeviceRecord{
			"livingroom": {Name: "livingroom", Address: "AA:BB:CC:DD:EE:01"},
		},
	})

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.DevicesSeen())
	assert.Equal(t, "AA:BB:CC:DD:EE:01", snap.Devices["livingroom"].Address)
}

func TestReplaceDropsDevicesMissingFromNewCycle(t *testing.T) {
	s := New()
	s.Replace(&Snapshot{Devices: map[string]DeviceRecord{
		"livingroom": {Name: "livingroom"},
		"cellar":     {Name: "cellar"},
	}})
	s.Replace(&Snapshot{Devices: map[string]DeviceRecord{
		"livingroom": {Name: "livingroom"},
	}})

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.DevicesSeen())
	_, cellarPresent := snap.Devices["cellar"]
	assert.False(t, cellarPresent)
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.Replace(&Snapshot{Devices: map[string]DeviceRecord{
				"livingroom": {Name: "livingroom"},
			}})
		}
		close(stop)
	}()

	for reader := 0; reader < 4; reader++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				require.NotNil(t, snap)
				require.LessOrEqual(t, snap.DevicesSeen(), 1)
			}
		}()
	}
	wg.Wait()
}
