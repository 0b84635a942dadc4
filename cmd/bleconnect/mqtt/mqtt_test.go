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

package mqtt

import (
	"sync"
	"testing"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/helper"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/store"
	"github.com/united-manufacturing-hub/bleconnect/internal"
	"github.com/united-manufacturing-hub/bleconnect/pkg/bthome"
)

func bthomeReading(temperature, humidity, battery *float64) bthome.Reading {
	return bthome.Reading{Temperature: temperature, Humidity: humidity, Battery: battery}
}

type stubToken struct{}

func (stubToken) Wait() bool                     { return true }
func (stubToken) WaitTimeout(time.Duration) bool { return true }
func (stubToken) Error() error                   { return nil }
func (stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type stubClient struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (c *stubClient) Publish(topic string, _ byte, _ bool, payload interface{}) MQTT.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.published == nil {
		c.published = make(map[string][][]byte)
	}
	c.published[topic] = append(c.published[topic], payload.([]byte))
	return stubToken{}
}

func (c *stubClient) messages(topic string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published[topic]
}

func (c *stubClient) IsConnected() bool       { return true }
func (c *stubClient) IsConnectionOpen() bool  { return true }
func (c *stubClient) Connect() MQTT.Token     { return stubToken{} }
func (c *stubClient) Disconnect(uint)         {}
func (c *stubClient) AddRoute(string, MQTT.MessageHandler) {}
func (c *stubClient) Subscribe(string, byte, MQTT.MessageHandler) MQTT.Token {
	return stubToken{}
}
func (c *stubClient) SubscribeMultiple(map[string]byte, MQTT.MessageHandler) MQTT.Token {
	return stubToken{}
}
func (c *stubClient) Unsubscribe(...string) MQTT.Token { return stubToken{} }
func (c *stubClient) OptionsReader() MQTT.ClientOptionsReader {
	return MQTT.ClientOptionsReader{}
}

func snapshotWithTemperature(address, name string, temperature float64, rssi int16) *store.Snapshot {
	return &store.Snapshot{Devices: map[string]store.DeviceRecord{
		name: {
			Name:    name,
			Address: address,
			RSSI:    rssi,
			Reading: bthomeReading(helper.Float64ToPtr(temperature), nil, helper.Float64ToPtr(100)),
		},
	}}
}

func TestPublishSendsOneMessagePerDevice(t *testing.T) {
	helper.InitTestLogging()
	internal.InitMemcache()
	client := &stubClient{}
	f := &Forwarder{client: client, baseTopic: "bleconnect"}

	f.Publish(&store.Snapshot{Devices: map[string]store.DeviceRecord{
		"livingroom": {
			Name:    "livingroom",
			Address: "AA:BB:CC:DD:EE:01",
			RSSI:    -61,
			Reading: bthomeReading(helper.Float64ToPtr(24.04), helper.Float64ToPtr(65.32), nil),
		},
		"cellar": {
			Name:    "cellar",
			Address: "AA:BB:CC:DD:EE:02",
			Reading: bthomeReading(helper.Float64ToPtr(4.2), nil, nil),
		},
	}})

	livingroom := client.messages("bleconnect/livingroom")
	require.Len(t, livingroom, 1)
	var message Message
	require.NoError(t, json.Unmarshal(livingroom[0], &message))
	assert.Equal(t, "livingroom", message.Device)
	assert.Equal(t, "AA:BB:CC:DD:EE:01", message.Address)
	assert.Equal(t, int16(-61), message.RSSI)
	require.NotNil(t, message.Temperature)
	assert.InDelta(t, 24.04, *message.Temperature, 0.001)

	cellar := client.messages("bleconnect/cellar")
	require.Len(t, cellar, 1)
	// Absent measurements must be omitted, not published as null.
	assert.NotContains(t, string(cellar[0]), "humidity")
	assert.NotContains(t, string(cellar[0]), "battery")
}

func TestPublishDeduplicatesUnchangedReadings(t *testing.T) {
	helper.InitTestLogging()
	internal.InitMemcache()
	client := &stubClient{}
	f := &Forwarder{client: client, baseTopic: "bleconnect"}

	snapshot := snapshotWithTemperature("AA:BB:CC:DD:EE:01", "livingroom", 24.04, -60)
	f.Publish(snapshot)
	f.Publish(snapshot)

	assert.Len(t, client.messages("bleconnect/livingroom"), 1)
}

func TestPublishTreatsRSSIJitterAsUnchanged(t *testing.T) {
	helper.InitTestLogging()
	internal.InitMemcache()
	client := &stubClient{}
	f := &Forwarder{client: client, baseTopic: "bleconnect"}

	// The reading is identical, only the signal level moved.
	f.Publish(snapshotWithTemperature("AA:BB:CC:DD:EE:01", "livingroom", 24.04, -60))
	f.Publish(snapshotWithTemperature("AA:BB:CC:DD:EE:01", "livingroom", 24.04, -72))

	assert.Len(t, client.messages("bleconnect/livingroom"), 1)
}

func TestPublishSendsChangedReadings(t *testing.T) {
	helper.InitTestLogging()
	internal.InitMemcache()
	client := &stubClient{}
	f := &Forwarder{client: client, baseTopic: "bleconnect"}

	f.Publish(snapshotWithTemperature("AA:BB:CC:DD:EE:01", "livingroom", 24.04, -60))
	f.Publish(snapshotWithTemperature("AA:BB:CC:DD:EE:01", "livingroom", 24.10, -60))

	assert.Len(t, client.messages("bleconnect/livingroom"), 2)
}
