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

// Package mqtt forwards each cycle's readings to a broker, one message
// per device under <base_topic>/<device name>. Forwarding is best
// effort: the exporter keeps scanning when the broker is down.
package mqtt

import (
	"fmt"
	"strings"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/config"
	"github.com/united-manufacturing-hub/bleconnect/cmd/bleconnect/store"
	"github.com/united-manufacturing-hub/bleconnect/internal"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

const defaultBaseTopic = "bleconnect"

// Message is the JSON body published per device. It carries no
// timestamp, so an unchanged reading produces identical content and
// gets deduplicated instead of re-sent every cycle. RSSI does not
// count as content for that check, see dedupHash.
type Message struct {
	Device      string   `json:"device"`
	Address     string   `json:"address"`
	RSSI        int16    `json:"rssi,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Battery     *float64 `json:"battery,omitempty"`
}

// Forwarder publishes snapshots to an MQTT broker.
type Forwarder struct {
	client    MQTT.Client
	baseTopic string
}

func onConnect(c MQTT.Client) {
	optionsReader := c.OptionsReader()
	zap.S().Infof("Connected to MQTT broker as %s", optionsReader.ClientID())
}

func onConnectionLost(_ MQTT.Client, err error) {
	zap.S().Warnf("Connection to MQTT broker lost, reconnecting: %s", err.Error())
}

// NewForwarder connects to the broker. A broker that cannot be reached
// at startup is a configuration problem and reported as an error;
// connection losses later are retried by the client itself.
func NewForwarder(cfg config.MqttConfig) (*Forwarder, error) {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "bleconnect"
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(onConnect)
	opts.SetConnectionLostHandler(onConnectionLost)
	opts.SetOrderMatters(false)

	client := MQTT.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %s", cfg.BrokerURL, token.Error().Error())
	}

	baseTopic := strings.TrimSuffix(cfg.BaseTopic, "/")
	if baseTopic == "" {
		baseTopic = defaultBaseTopic
	}
	return &Forwarder{client: client, baseTopic: baseTopic}, nil
}

// Publish sends one message per device in the snapshot. It implements
// the worker's sink and must not block the scan loop, so tokens are
// not waited on.
func (f *Forwarder) Publish(snapshot *store.Snapshot) {
	for name, record := range snapshot.Devices {
		message := Message{
			Device:      name,
			Address:     record.Address,
			RSSI:        record.RSSI,
			Temperature: record.Reading.Temperature,
			Humidity:    record.Reading.Humidity,
			Battery:     record.Reading.Battery,
		}
		payload, err := json.Marshal(message)
		if err != nil {
			zap.S().Errorf("Failed to marshal MQTT message for %s: %s", name, err.Error())
			continue
		}
		f.send(fmt.Sprintf("%s/%s", f.baseTopic, name), payload, dedupHash(message))
	}
}

// Disconnect flushes the client with the given grace period in
// milliseconds.
func (f *Forwarder) Disconnect(quiesce uint) {
	f.client.Disconnect(quiesce)
}

// dedupHash identifies the reading content of a message. RSSI is
// zeroed first, so signal jitter between cycles does not make an
// otherwise unchanged reading look new.
func dedupHash(message Message) uint64 {
	message.RSSI = 0
	content, _ := json.Marshal(message)
	return xxh3.Hash(content)
}

func (f *Forwarder) send(topic string, message []byte, messageHash uint64) {
	cacheKey := fmt.Sprintf("SendMQTTMessage%s%d", topic, messageHash)

	_, found := internal.GetMemcached(cacheKey)
	if found {
		zap.S().Debugf("Duplicate message for topic %s, skipping publish", topic)
		return
	}

	f.client.Publish(topic, 2, false, message)
	internal.SetMemcached(cacheKey, nil)
}
