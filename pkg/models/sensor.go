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

// Package models contains shared data types used across the poolguard agent.
package models

import "time"

// Reading is a single sensor observation. Exactly one of Value or State is
// set; a Reading with neither is never produced (absence is signalled by the
// sensor source returning ok=false instead).
type Reading struct {
	Value       *float64  `json:"value,omitempty"`
	State       *bool     `json:"state,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
}

// NumericReading builds an analog reading.
func NumericReading(v float64, at time.Time) Reading {
	return Reading{Value: &v, CollectedAt: at}
}

// DigitalReading builds a digital (on/off) reading.
func DigitalReading(s bool, at time.Time) Reading {
	return Reading{State: &s, CollectedAt: at}
}

// SensorSnapshot is an immutable record of the readings gathered at the top
// of a control cycle. Nil fields mean the reading was unavailable this cycle;
// rules that depend on them are suppressed, not fed zeros.
type SensorSnapshot struct {
	CollectedAt time.Time `json:"collected_at"`

	PH            *float64 `json:"ph,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	ORP           *float64 `json:"orp,omitempty"`
	UV            *float64 `json:"uv,omitempty"`
	Chlorine      *float64 `json:"chlorine,omitempty"`
	Turbidity     *float64 `json:"turbidity,omitempty"`
	WaterLevel    *float64 `json:"water_level,omitempty"`
	PoolTankLevel *float64 `json:"pool_tank_level,omitempty"`

	Motion           *bool `json:"motion,omitempty"`
	PoolBeingCleaned *bool `json:"pool_being_cleaned,omitempty"`

	// WeatherForecast comes from the server settings payload, not a local
	// sensor. Empty string means unknown.
	WeatherForecast string `json:"weather_forecast,omitempty"`
}

// Float returns a pointer to v. Convenience for building snapshots in tests
// and adapters.
func Float(v float64) *float64 {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
