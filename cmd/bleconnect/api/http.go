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

// Package api serves the HTTP surface of the exporter: a liveness
// probe, a JSON status summary of the latest scan cycle and the
// Prometheus exposition.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/config"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/store"
	"go.uber.org/zap"
)

// Status is the JSON body of the /status endpoint. All timestamps are
// Unix seconds; last_scan_timestamp is 0 until the first cycle has
// completed.
type Status struct {
	ScanIntervalSeconds int   `json:"scan_interval_seconds"`
	ScanDurationSeconds int   `json:"scan_duration_seconds"`
	LastScanTimestamp   int64 `json:"last_scan_timestamp"`
	DevicesSeen         int   `json:"devices_seen"`
}

// NewRouter builds the gin engine with all routes attached.
func NewRouter(cfg *config.Config, st *store.Store) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true), ginzap.RecoveryWithZap(zap.L(), true))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/status", func(c *gin.Context) {
		handleStatus(c, cfg, st)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func handleStatus(c *gin.Context, cfg *config.Config, st *store.Store) {
	snapshot := st.Snapshot()
	status := Status{
		ScanIntervalSeconds: cfg.ScanIntervalSeconds,
		ScanDurationSeconds: cfg.ScanDurationSeconds,
		DevicesSeen:         snapshot.DevicesSeen(),
	}
	if !snapshot.CompletedAt.IsZero() {
		status.LastScanTimestamp = snapshot.CompletedAt.Unix()
	}

	payload, err := json.Marshal(status)
	if err != nil {
		zap.S().Errorf("Failed to marshal status response: %s", err.Error())
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}
