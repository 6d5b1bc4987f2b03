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

package agent

import (
	"errors"

	"github.com/carverauto/poolguard/pkg/audit"
	"github.com/carverauto/poolguard/pkg/logger"
	"github.com/carverauto/poolguard/pkg/models"
	"github.com/carverauto/poolguard/pkg/sensor"
	"github.com/carverauto/poolguard/pkg/server"
	"github.com/carverauto/poolguard/pkg/session"
)

var (
	errMissingDatabasePath = errors.New("database_path is required")
	errMissingPins         = errors.New("pin map is required unless mock_gpio is set")
)

// Config is the full agent configuration.
type Config struct {
	DatabasePath string `json:"database_path"`

	// ListenAddr serves the diagnostics endpoint (metrics + health).
	ListenAddr string `json:"listen_addr,omitempty"`

	// Pins maps actuator ids to GPIO pin numbers. The set of pins defines
	// the set of managed actuators.
	Pins      map[string]int `json:"pins"`
	ActiveLow bool           `json:"active_low,omitempty"`

	// MockGPIO discards pin writes, for bench rigs without relay hardware.
	MockGPIO bool `json:"mock_gpio,omitempty"`

	Server   server.Config      `json:"server"`
	Session  session.Config     `json:"session"`
	Loop     LoopConfig         `json:"loop,omitempty"`
	Audit    audit.Config       `json:"audit,omitempty"`
	Sync     audit.SyncerConfig `json:"sync,omitempty"`
	MQTT     sensor.MQTTConfig  `json:"mqtt"`
	Channels sensor.Channels    `json:"channels,omitempty"`
	Stream   ListenerConfig     `json:"stream,omitempty"`
	Logging  *logger.Config     `json:"logging,omitempty"`
}

// DefaultPins is the reference board's relay wiring.
var DefaultPins = map[string]int{
	models.ActuatorChlorinePump:  5,
	models.ActuatorAlgicidePump:  6,
	models.ActuatorSodaPump:      13,
	models.ActuatorPoolFilter:    16,
	models.ActuatorPoolVacuum:    19,
	models.ActuatorPoolHeater:    20,
	models.ActuatorPoolCover:     21,
	models.ActuatorLEDLights:     26,
	models.ActuatorWaterIn:       12,
	models.ActuatorWaterOut:      17,
	models.ActuatorPoolTankFill:  23,
	models.ActuatorPoolTankDrain: 24,
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errMissingDatabasePath
	}

	if len(c.Pins) == 0 {
		if !c.MockGPIO {
			return errMissingPins
		}

		c.Pins = DefaultPins
	}

	if err := c.Server.Validate(); err != nil {
		return err
	}

	if c.Session.DeviceSerial == "" {
		c.Session.DeviceSerial = c.Server.DeviceSerial
	}

	return nil
}

// ActuatorIDs returns the managed actuator set, derived from the pin map.
func (c *Config) ActuatorIDs() []string {
	ids := make([]string, 0, len(c.Pins))
	for id := range c.Pins {
		ids = append(ids, id)
	}

	return ids
}
