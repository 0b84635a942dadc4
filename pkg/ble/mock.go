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
	"sync"
	"time"
)

// MockBatch is the outcome of one simulated scan window. Err takes
// precedence over Observations.
type MockBatch struct {
	Observations []Observation
	Err          error
}

// MockScanner replays scripted batches, one per Scan call, and sticks
// on the last batch once the script runs out. With no batches at all
// every window comes back empty. It blocks for the requested window
// like the real radio does, so cadence behavior stays observable
// against it.
type MockScanner struct {
	mu      sync.Mutex
	batches []MockBatch
	next    int
}

// NewMockScanner builds a scanner replaying the given batches in order.
func NewMockScanner(batches ...MockBatch) *MockScanner {
	return &MockScanner{batches: batches}
}

func (s *MockScanner) Scan(ctx context.Context, window time.Duration) ([]Observation, error) {
	select {
	case <-time.After(window):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return nil, nil
	}
	batch := s.batches[s.next]
	if s.next < len(s.batches)-1 {
		s.next++
	}
	if batch.Err != nil {
		return nil, batch.Err
	}
	// Hand out a copy, a batch may be replayed on later calls.
	observations := make([]Observation, len(batch.Observations))
	copy(observations, batch.Observations)
	return observations, nil
}

func (s *MockScanner) Close() error {
	return nil
}
