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

// Package worker runs the scan loop: acquire a window of advertisements,
// reduce them to one record per tracked device, publish the snapshot,
// sleep out the rest of the interval, repeat. Any acquisition fault ends
// the loop for good; supervision restarts the whole process instead.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/metrics"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/store"
	"github.com/united-manufacturing-hub/bleconnect/pkg/ble"
	"go.uber.org/zap"
)

// Scan loop states.
const (
	StateIdle       = "idle"
	StateAcquiring  = "acquiring"
	StateProcessing = "processing"
	StateFailed     = "failed"
)

const (
	eventStartScan = "start-scan"
	eventProcess   = "process"
	eventFinish    = "finish"
	eventFault     = "fault"
)

// Sink receives every snapshot right after it is published to the
// store. Publish must not block for long, it runs on the scan loop.
type Sink interface {
	Publish(snapshot *store.Snapshot)
}

// Worker owns the scan loop and its state machine.
type Worker struct {
	scanner  ble.Scanner
	registry *Registry
	store    *store.Store
	interval time.Duration
	window   time.Duration
	machine  *fsm.FSM
	sinks    []Sink
}

// New builds a worker. interval is the start-to-start cadence, window
// the listening time inside each cycle.
func New(scanner ble.Scanner, registry *Registry, st *store.Store, interval, window time.Duration, sinks ...Sink) *Worker {
	w := &Worker{
		scanner:  scanner,
		registry: registry,
		store:    st,
		interval: interval,
		window:   window,
		sinks:    sinks,
	}
	w.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStartScan, Src: []string{StateIdle}, Dst: StateAcquiring},
			{Name: eventProcess, Src: []string{StateAcquiring}, Dst: StateProcessing},
			{Name: eventFinish, Src: []string{StateProcessing}, Dst: StateIdle},
			{Name: eventFault, Src: []string{StateIdle, StateAcquiring, StateProcessing}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				zap.S().Debugf("Scan loop state changed from %s to %s", e.Src, e.Dst)
			},
		},
	)
	return w
}

// State returns the current scan loop state.
func (w *Worker) State() string {
	return w.machine.Current()
}

// Run executes scan cycles until ctx is cancelled or a fault occurs.
// A fault is returned to the caller after the state machine has moved
// to failed; the loop never retries on its own. Cancellation during a
// window is a clean shutdown, not a fault.
func (w *Worker) Run(ctx context.Context) error {
	for cycle := uint64(1); ; cycle++ {
		cycleStart := time.Now()
		zap.S().Infof("Starting scan cycle %d with a %s window", cycle, w.window)
		err := w.machine.Event(ctx, eventStartScan)
		if err != nil {
			return w.fail(ctx, fmt.Errorf("scan cycle %d: %s", cycle, err.Error()))
		}

		observations, err := w.scanner.Scan(ctx, w.window)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return w.fail(ctx, fmt.Errorf("scan cycle %d: %s", cycle, err.Error()))
		}
		observedAt := time.Now()

		err = w.machine.Event(ctx, eventProcess)
		if err != nil {
			return w.fail(ctx, fmt.Errorf("scan cycle %d: %s", cycle, err.Error()))
		}

		result := aggregate(observations, w.registry, observedAt)
		snapshot := &store.Snapshot{
			CycleStartedAt: cycleStart,
			CompletedAt:    time.Now(),
			WindowDuration: w.window,
			Devices:        result.devices,
		}
		w.store.Replace(snapshot)
		for _, sink := range w.sinks {
			sink.Publish(snapshot)
		}

		err = w.machine.Event(ctx, eventFinish)
		if err != nil {
			return w.fail(ctx, fmt.Errorf("scan cycle %d: %s", cycle, err.Error()))
		}
		zap.S().Infof(
			"Scan cycle %d finished: %d of %d tracked devices seen, %d decode failures",
			cycle, len(result.devices), w.registry.Size(), result.decodeFailures)

		elapsed := time.Since(cycleStart)
		metrics.RecordCycle(elapsed, len(result.devices))
		pause := w.interval - elapsed
		if pause <= 0 {
			zap.S().Warnf(
				"Scan cycle %d took %s, longer than the %s interval, starting the next scan immediately",
				cycle, elapsed.Round(time.Millisecond), w.interval)
			metrics.RecordOverrun()
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-time.After(pause):
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Worker) fail(ctx context.Context, err error) error {
	_ = w.machine.Event(ctx, eventFault)
	zap.S().Errorf("Scan loop entered failed state: %s", err.Error())
	return err
}
