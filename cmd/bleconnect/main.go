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

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/api"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/config"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/helper"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/metrics"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/mqtt"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/store"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/worker"
	"github.com/united-manufacturing-hub/bleconnect/internal"
	"github.com/united-manufacturing-hub/bleconnect/pkg/ble"
	"github.com/united-manufacturing-hub/umh-utils/env"
	"go.uber.org/zap"
)

var buildtime string

func main() {
	helper.InitLogging()
	zap.S().Infof("This is bleconnect build date: %s", buildtime)

	configPath, err := env.GetAsString("CONFIG_PATH", false, "./config.yaml")
	if err != nil {
		zap.S().Fatalf("Failed to read CONFIG_PATH: %s", err.Error())
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		zap.S().Fatalf("Failed to load configuration: %s", err.Error())
	}
	zap.S().Infof(
		"Tracking %d devices, scanning for %s every %s",
		len(cfg.Devices), cfg.ScanDuration(), cfg.ScanInterval())

	internal.InitMemcache()

	st := store.New()
	registry := worker.NewRegistry(cfg.Devices)

	scanner, err := newScanner()
	if err != nil {
		zap.S().Fatalf("Failed to initialize the scanner: %s", err.Error())
	}

	var sinks []worker.Sink
	var forwarder *mqtt.Forwarder
	if cfg.Mqtt.Enabled {
		forwarder, err = mqtt.NewForwarder(cfg.Mqtt)
		if err != nil {
			zap.S().Fatalf("Failed to set up MQTT forwarding: %s", err.Error())
		}
		sinks = append(sinks, forwarder)
	}

	InitPrometheus(st)
	InitHealthCheck()

	router := api.NewRouter(cfg, st)
	go func() {
		err := router.Run(fmt.Sprintf(":%d", cfg.ListenPort))
		if err != nil {
			zap.S().Fatalf("Failed to serve HTTP on port %d: %s", cfg.ListenPort, err.Error())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	shutdown := internal.NewGracefulShutdown(func() error {
		cancel()
		if forwarder != nil {
			forwarder.Disconnect(250)
		}
		return scanner.Close()
	})

	w := worker.New(scanner, registry, st, cfg.ScanInterval(), cfg.ScanDuration(), sinks...)
	go func() {
		err := w.Run(ctx)
		if err != nil {
			_ = scanner.Close()
			zap.S().Fatalf("Scan loop failed: %s", err.Error())
		}
	}()

	shutdown.Wait()
}

// newScanner picks the acquisition source. USE_MOCK_SCANNER=true runs
// the service without a radio, every window simply comes back empty.
func newScanner() (ble.Scanner, error) {
	useMock, err := env.GetAsBool("USE_MOCK_SCANNER", false, false)
	if err != nil {
		return nil, err
	}
	if useMock {
		zap.S().Infof("Using the mock scanner, no radio will be opened")
		return ble.NewMockScanner(), nil
	}
	return ble.NewHCIScanner()
}

func InitPrometheus(st *store.Store) {
	// Prometheus
	metricsPath := "/metrics"
	metricsPort := ":2112"
	zap.S().Debugf("Setting up metrics %s %v", metricsPath, metricsPort)

	prometheus.MustRegister(metrics.NewDeviceCollector(st))
	http.Handle(metricsPath, promhttp.Handler())
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe(metricsPort, nil)
		if err != nil {
			zap.S().Errorf("Error starting metrics: %s", err)
		}
	}()
}

func InitHealthCheck() {
	zap.S().Debugf("Setting up healthcheck")

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000000))
	go func() {
		/* #nosec G114 */
		err := http.ListenAndServe("0.0.0.0:8086", health)
		if err != nil {
			zap.S().Errorf("Error starting healthcheck: %s", err)
		}
	}()
}
