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

// Package ble acquires raw advertisement payloads from sensor beacons.
// It offers a live scanner backed by the host radio and a deterministic
// replay scanner for tests and radio-less deployments.
package ble

import (
	"context"
	"errors"
	"time"
)

// ErrAdapterUnavailable means the host radio could not be opened or
// initialized at all.
var ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")

// ErrScanFailed means a scan window could not be carried out on an
// otherwise working adapter.
var ErrScanFailed = errors.New("bluetooth scan failed")

// Observation is one advertisement captured during a scan window.
// Payload starts at the first measurement field. The same device
// usually appears several times per window.
type Observation struct {
	Address   string
	LocalName string
	RSSI      int16
	Payload   []byte
}

// Scanner acquires observations over a fixed window. Scan blocks for
// the full window unless ctx is cancelled. An empty result is a valid
// outcome and is not an error.
type Scanner interface {
	Scan(ctx context.Context, window time.Duration) ([]Observation, error)
	Close() error
}
