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

// Package store holds the outcome of the latest completed scan cycle.
// Each cycle replaces the whole snapshot, so scrapers and the status
// endpoint always see one consistent cycle and never a blend of two.
package store

import (
	"sync/atomic"
	"time"

	"github.com/united-manufacturing-hub/bleconnect/pkg/bthome"
)

// DeviceRecord is the state of one known device after a cycle.
type DeviceRecord struct {
	// Name is the configured display name of the device.
	Name string
	// Address is the hardware address of the last advertisement that
	// contributed to Reading. Several addresses may be configured
	// under one name, so the address can change between cycles.
	Address string
	// Reading holds the merged measurements of the cycle.
	Reading bthome.Reading
	// RSSI is the signal strength of the last advertisement that
	// contributed to Reading.
	RSSI int16
	// ObservedAt is when the cycle's scan window ended.
	ObservedAt time.Time
}

// Snapshot is the complete result of one scan cycle. Devices is keyed
// by configured display name; names not present were not seen in that
// cycle. A Snapshot must not be modified once published.
type Snapshot struct {
	CycleStartedAt time.Time
	CompletedAt    time.Time
	WindowDuration time.Duration
	Devices        map[string]DeviceRecord
}

// DevicesSeen returns how many known devices the cycle observed.
func (s *Snapshot) DevicesSeen() int {
	return len(s.Devices)
}

// Store publishes snapshots to concurrent readers via a single pointer
// swap. No locks are held while reading.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// New returns a store holding an empty snapshot, so readers before the
// first completed cycle see zero devices rather than nil.
func New() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{})
	return s
}

// Replace publishes snap as the current cycle result, discarding the
// previous one entirely.
func (s *Store) Replace(snap *Snapshot) {
	s.current.Store(snap)
}

// Snapshot returns the currently published cycle result.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}
