/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/models"
)

const (
	defaultStaleness   = 2 * time.Minute
	defaultConnectWait = 10 * time.Second
)

var errMQTTConnect = errors.New("mqtt connect failed")

// MQTTConfig configures the on-board sensor hub subscription.
type MQTTConfig struct {
	BrokerURL   string        `json:"broker_url"`
	ClientID    string        `json:"client_id"`
	TopicPrefix string        `json:"topic_prefix"`
	QoS         byte          `json:"qos,omitempty"`
	Staleness   time.Duration `json:"staleness,omitempty"`
}

// MQTTSource subscribes to the sensor hub and answers reads from a
// last-value cache. Readings older than the staleness window are treated as
// absent so rules are suppressed rather than fed dead data.
type MQTTSource struct {
	mu     sync.RWMutex
	cache  map[string]models.Reading
	client mqtt.Client
	logger logger.Logger

	prefix    string
	staleness time.Duration
	now       func() time.Time
}

// mqttPayload is the hub's message shape. Plain numeric payloads are also
// accepted for older firmware.
type mqttPayload struct {
	Value *float64 `json:"value,omitempty"`
	State *bool    `json:"state,omitempty"`
}

// NewMQTTSource connects to the broker and subscribes to every channel under
// the topic prefix.
func NewMQTTSource(cfg MQTTConfig, log logger.Logger) (*MQTTSource, error) {
	if cfg.Staleness <= 0 {
		cfg.Staleness = defaultStaleness
	}

	s := &MQTTSource{
		cache:     make(map[string]models.Reading),
		logger:    log,
		prefix:    strings.TrimRight(cfg.TopicPrefix, "/"),
		staleness: cfg.Staleness,
		now:       time.Now,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("Sensor hub connection lost")
		}).
		SetOnConnectHandler(func(client mqtt.Client) {
			topic := s.prefix + "/#"
			if token := client.Subscribe(topic, cfg.QoS, s.handleMessage); token.Wait() && token.Error() != nil {
				log.Error().Err(token.Error()).Str("topic", topic).
					Msg("Failed to subscribe to sensor hub")
			}
		})

	s.client = mqtt.NewClient(opts)

	if token := s.client.Connect(); !token.WaitTimeout(defaultConnectWait) || token.Error() != nil {
		err := token.Error()
		if err == nil {
			err = errMQTTConnect
		}

		return nil, err
	}

	return s, nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	s.client.Disconnect(250)
}

// Read implements Source. Stale cache entries read as absent.
func (s *MQTTSource) Read(_ context.Context, channel string) (models.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reading, ok := s.cache[channel]
	if !ok {
		return models.Reading{}, false
	}

	if s.now().Sub(reading.CollectedAt) > s.staleness {
		return models.Reading{}, false
	}

	return reading, true
}

func (s *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	channel := strings.TrimPrefix(strings.TrimPrefix(msg.Topic(), s.prefix), "/")
	if channel == "" {
		return
	}

	reading, err := parseReading(msg.Payload(), s.now())
	if err != nil {
		s.logger.Warn().Err(err).Str("channel", channel).Msg("Dropping unparsable sensor message")
		return
	}

	s.mu.Lock()
	s.cache[channel] = reading
	s.mu.Unlock()

	s.logger.Trace().Str("channel", channel).Msg("Sensor reading cached")
}

func parseReading(payload []byte, at time.Time) (models.Reading, error) {
	var body mqttPayload

	if err := json.Unmarshal(payload, &body); err == nil && (body.Value != nil || body.State != nil) {
		return models.Reading{Value: body.Value, State: body.State, CollectedAt: at}, nil
	}

	// Older hub firmware publishes a bare number.
	v, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return models.Reading{}, err
	}

	return models.NumericReading(v, at), nil
}
