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

// Range is a two-sided threshold for an analog sensor dimension.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v falls inside the range, bounds included.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// ThresholdConfig carries the per-sensor policy the rule engine evaluates
// against. It is supplied externally (device settings, refreshed from the
// server when reachable) and is read-only to the engine. Nil ranges disable
// the corresponding rule.
type ThresholdConfig struct {
	PH            *Range `json:"ph,omitempty"`
	Chlorine      *Range `json:"chlorine,omitempty"`
	ORP           *Range `json:"orp,omitempty"`
	WaterLevel    *Range `json:"water_level,omitempty"`
	PoolTankLevel *Range `json:"pool_tank_level,omitempty"`

	// TurbidityMax is one-sided: above it the filter and vacuum run.
	TurbidityMax *float64 `json:"turbidity_max,omitempty"`

	// DesiredTemperature enables the heater rule. The heater engages below
	// the desired temperature and disengages above desired + deadband.
	DesiredTemperature  *float64 `json:"desired_temperature,omitempty"`
	TemperatureDeadband float64  `json:"temperature_deadband,omitempty"`

	// Pool cover policy: when enabled, the cover closes at night, on a rainy
	// forecast, or when the water temperature drops under CoverTempFloor.
	CoverEnabled   bool    `json:"cover_enabled,omitempty"`
	CoverTempFloor float64 `json:"cover_temp_floor,omitempty"`
	NightStartHour int     `json:"night_start_hour,omitempty"`
	NightEndHour   int     `json:"night_end_hour,omitempty"`

	// LightsEnabled turns the LED rule on: lights engage at night or while
	// the pool is being cleaned.
	LightsEnabled bool `json:"lights_enabled,omitempty"`
}

const (
	defaultTemperatureDeadband = 2.0
	defaultCoverTempFloor      = 15.0
	defaultNightStartHour      = 18
	defaultNightEndHour        = 6
)

// Normalize fills zero-valued policy knobs with their defaults. Called once
// after loading; the engine assumes a normalized config.
func (c *ThresholdConfig) Normalize() {
	if c.TemperatureDeadband == 0 {
		c.TemperatureDeadband = defaultTemperatureDeadband
	}

	if c.CoverTempFloor == 0 {
		c.CoverTempFloor = defaultCoverTempFloor
	}

	if c.NightStartHour == 0 {
		c.NightStartHour = defaultNightStartHour
	}

	if c.NightEndHour == 0 {
		c.NightEndHour = defaultNightEndHour
	}
}
