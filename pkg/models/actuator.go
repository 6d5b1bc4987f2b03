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

package models

import "time"

// RelayState is the logical state of an actuator. Physical drive polarity is
// the driver adapter's concern; core logic only ever sees logical states.
type RelayState string

const (
	RelayOn    RelayState = "ON"
	RelayOff   RelayState = "OFF"
	RelayOpen  RelayState = "OPEN"
	RelayClose RelayState = "CLOSE"
)

// Engaged reports whether the state energizes the relay.
func (s RelayState) Engaged() bool {
	return s == RelayOn || s == RelayOpen
}

// Valid reports whether s is one of the recognized states.
func (s RelayState) Valid() bool {
	switch s {
	case RelayOn, RelayOff, RelayOpen, RelayClose:
		return true
	default:
		return false
	}
}

// Well-known actuator identifiers. The set an appliance actually exposes is
// configuration; these are the names the built-in rules produce.
const (
	ActuatorChlorinePump  = "chlorine_pump"
	ActuatorAlgicidePump  = "algicide_pump"
	ActuatorSodaPump      = "soda_pump"
	ActuatorPoolFilter    = "pool_filter"
	ActuatorPoolVacuum    = "pool_vacuum"
	ActuatorPoolHeater    = "pool_heater"
	ActuatorPoolCover     = "pool_cover"
	ActuatorLEDLights     = "led_lights"
	ActuatorWaterIn       = "water_in"
	ActuatorWaterOut      = "water_out"
	ActuatorPoolTankFill  = "pool_tank_fill"
	ActuatorPoolTankDrain = "pool_tank_drain"
)

// ActuatorIntent is a desired actuator action produced by the rule engine or
// received from the server. Ephemeral; consumed within the cycle it was
// produced in.
type ActuatorIntent struct {
	ActuatorID string     `json:"actuator_id"`
	Desired    RelayState `json:"desired"`
	Reason     string     `json:"reason"`
}

// ActuatorState is the authoritative per-actuator record, owned exclusively
// by the actuator registry.
type ActuatorState struct {
	ActuatorID      string     `json:"actuator_id"`
	State           RelayState `json:"state"`
	Registered      bool       `json:"registered"`
	ServerConfirmed bool       `json:"server_confirmed"`
	LastChangedAt   time.Time  `json:"last_changed_at"`
}

// StateChange records the outcome of applying an intent. Applied is false
// for a no-op confirmation (the actuator was already in the desired state and
// no drive call was made).
type StateChange struct {
	ActuatorID string     `json:"actuator_id"`
	From       RelayState `json:"from"`
	To         RelayState `json:"to"`
	Applied    bool       `json:"applied"`
	Reason     string     `json:"reason"`
	At         time.Time  `json:"at"`
}

// DesiredState is a server-declared actuator state map, keyed by actuator id.
type DesiredState map[string]RelayState
